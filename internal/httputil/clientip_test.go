package httputil

import (
	"errors"
	"net/http"
	"testing"
)

func TestClientIPRemoteAddr(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		r := &http.Request{RemoteAddr: tt.remoteAddr}
		if got := ClientIP(r, false); got != tt.want {
			t.Errorf("ClientIP(%q, false) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestClientIPTrustProxy(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		xri  string
		want string
	}{
		{name: "forwarded for", xff: "1.2.3.4", want: "1.2.3.4"},
		{name: "leftmost hop", xff: "1.2.3.4, 10.0.0.1, 10.0.0.2", want: "1.2.3.4"},
		{name: "real ip", xri: " 5.6.7.8 ", want: "5.6.7.8"},
		{name: "forwarded for wins", xff: "1.2.3.4", xri: "5.6.7.8", want: "1.2.3.4"},
		{name: "mapped v4", xff: "::ffff:1.2.3.4", want: "1.2.3.4"},
		{name: "garbage forwarded for", xff: "not-an-ip", xri: "5.6.7.8", want: "5.6.7.8"},
		{name: "garbage everywhere", xff: "x", xri: "y", want: "10.0.0.1"},
		{name: "no headers", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, true); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPIgnoresHeadersWhenNotTrusted(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Real-IP", "5.6.7.8")

	if got := ClientIP(r, false); got != "10.0.0.1" {
		t.Errorf("ClientIP(trustProxy=false) = %q, want 10.0.0.1", got)
	}
}

func TestMountHost(t *testing.T) {
	good := map[string]string{
		" 192.168.68.107 ": "192.168.68.107",
		"fe80::1":          "fe80::1",
		"mount.local":      "mount.local",
		"eq6-r.lan.":       "eq6-r.lan.",
	}
	for in, want := range good {
		got, err := MountHost(in)
		if err != nil || got != want {
			t.Errorf("MountHost(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "   ", "10.0.0.1:8888", "mount host", "-bad.lan", "a..b", "fe80::1%eth0", "http://10.0.0.1"} {
		if _, err := MountHost(in); !errors.Is(err, ErrBadMountHost) {
			t.Errorf("MountHost(%q) error = %v, want ErrBadMountHost", in, err)
		}
	}
}
