package pointing

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"testing"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestEncode(t *testing.T) {
	tests := []struct {
		eq   astro.Equatorial
		want string
	}{
		{astro.Equatorial{RA: 83.8221, Dec: -5.3911}, "83.8221,-5.3911"},
		{astro.Equatorial{RA: 0, Dec: 0}, "0.0000,0.0000"},
		{astro.Equatorial{RA: 359.99994, Dec: 90}, "359.9999,90.0000"},
		{astro.Equatorial{RA: 10.123456, Dec: -89.99999}, "10.1235,-90.0000"},
	}
	for _, tt := range tests {
		if got := string(Encode(tt.eq)); got != tt.want {
			t.Errorf("Encode(%+v) = %q, want %q", tt.eq, got, tt.want)
		}
	}
}

// TestEncodeRoundTrip checks encode-then-decode reproduces the input to four
// decimal places across the whole coordinate range.
func TestEncodeRoundTrip(t *testing.T) {
	for ra := 0.0; ra < 360; ra += 7.31234567 {
		for dec := -90.0; dec <= 90; dec += 3.98765432 {
			eq := astro.Equatorial{RA: ra, Dec: dec}
			got, err := Decode(Encode(eq))
			if err != nil {
				t.Fatalf("Decode(Encode(%+v)): %v", eq, err)
			}
			if math.Abs(got.RA-ra) > 0.5e-4+1e-12 || math.Abs(got.Dec-dec) > 0.5e-4+1e-12 {
				t.Fatalf("round trip %+v -> %+v exceeds 4-decimal precision", eq, got)
			}
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		ra, dec string
		want    astro.Equatorial
		wantErr bool
	}{
		{name: "plain", ra: "83.8221", dec: "-5.3911", want: astro.Equatorial{RA: 83.8221, Dec: -5.3911}},
		{name: "degree signs and spaces", ra: " 120.5° ", dec: "-30°", want: astro.Equatorial{RA: 120.5, Dec: -30}},
		{name: "integer", ra: "10", dec: "20", want: astro.Equatorial{RA: 10, Dec: 20}},
		{name: "non-numeric ra", ra: "abc", dec: "10", wantErr: true},
		{name: "non-numeric dec", ra: "10", dec: "ten", wantErr: true},
		{name: "empty", ra: "", dec: "10", wantErr: true},
		{name: "only degree sign", ra: "°", dec: "10", wantErr: true},
		{name: "NaN", ra: "NaN", dec: "10", wantErr: true},
		{name: "infinite", ra: "10", dec: "+Inf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCoordinate(tt.ra, tt.dec)
			if tt.wantErr {
				if !fault.Is(err, fault.InputError) {
					t.Fatalf("error = %v, want InputError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{"", "83.8221", "83.8221;-5.3911", "x,y", "1,2,3"} {
		if _, err := Decode([]byte(payload)); !fault.Is(err, fault.InputError) {
			t.Errorf("Decode(%q) error = %v, want InputError", payload, err)
		}
	}
}

// TestTransmitLoopback sends a command to a local listener and checks the
// exact bytes on the wire.
func TestTransmitLoopback(t *testing.T) {
	l, err := Listen("127.0.0.1:0", testLogger)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Command, 1)
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(ctx, func(c Command) { received <- c })
	}()

	port := l.Addr().(*net.UDPAddr).Port
	tx := NewTransmitter(Config{Port: port}, testLogger)

	eq := astro.Equatorial{RA: 83.8221, Dec: -5.3911}
	if err := tx.Send(context.Background(), "127.0.0.1", eq); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case c := <-received:
		if string(c.Raw) != "83.8221,-5.3911" {
			t.Errorf("wire payload = %q, want %q", c.Raw, "83.8221,-5.3911")
		}
		if c.Target != eq {
			t.Errorf("decoded target = %+v, want %+v", c.Target, eq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not receive the command")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestTransmitInvalidAddress(t *testing.T) {
	tx := NewTransmitter(Config{}, testLogger)

	for _, ip := range []string{"", "bad host name!"} {
		err := tx.Transmit(context.Background(), ip, []byte("1.0000,2.0000"))
		if !fault.Is(err, fault.NetworkError) {
			t.Errorf("Transmit(%q) error = %v, want NetworkError", ip, err)
		}
	}
}

func TestSendRejectsNonFinite(t *testing.T) {
	tx := NewTransmitter(Config{}, testLogger)
	err := tx.Send(context.Background(), "127.0.0.1", astro.Equatorial{RA: math.NaN(), Dec: 0})
	if !fault.Is(err, fault.InputError) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestNewTransmitterDefaults(t *testing.T) {
	tx := NewTransmitter(Config{}, testLogger)
	if tx.port != DefaultPort {
		t.Errorf("port = %d, want %d", tx.port, DefaultPort)
	}
	if tx.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", tx.timeout, DefaultTimeout)
	}
}
