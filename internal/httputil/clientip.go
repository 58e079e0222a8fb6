// Package httputil holds request helpers shared by the API and the
// progress stream.
package httputil

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address used to key per-client limits.
//
// With trustProxy set, the leftmost X-Forwarded-For entry and then
// X-Real-IP are consulted; values that do not parse as an IP address are
// skipped so a forged header cannot mint arbitrary limiter keys.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}
		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

// ErrBadMountHost is returned by MountHost for values that are neither an
// IP address nor a host name.
var ErrBadMountHost = errors.New("mount address must be an IP address or host name without a port")

// MountHost trims and checks a mount address supplied by a client. The
// port is fixed by configuration, so host:port forms are rejected.
func MountHost(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrBadMountHost
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		if addr.Zone() != "" {
			return "", ErrBadMountHost
		}
		return addr.String(), nil
	}
	if len(s) > 253 {
		return "", ErrBadMountHost
	}
	for _, label := range strings.Split(strings.TrimSuffix(s, "."), ".") {
		if !validLabel(label) {
			return "", ErrBadMountHost
		}
	}
	return s, nil
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
