package pointing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
)

// Command is a pointing command received by a Listener.
type Command struct {
	Target astro.Equatorial
	From   net.Addr
	Raw    []byte
}

// Read failures back off from initialReadDelay up to maxReadDelay; after
// maxReadErrors consecutive failures Serve gives up.
const (
	initialReadDelay = 5 * time.Millisecond
	maxReadDelay     = time.Second
	maxReadErrors    = 10
)

// Listener is a stand-in mount: it receives pointing datagrams and decodes them.
type Listener struct {
	conn      net.PacketConn
	logger    *slog.Logger
	readDelay time.Duration
}

// Listen opens a UDP listener on addr (e.g. ":8888").
func Listen(addr string, logger *slog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start UDP listener: %w", err)
	}
	return newListener(conn, logger), nil
}

func newListener(conn net.PacketConn, logger *slog.Logger) *Listener {
	return &Listener{conn: conn, logger: logger, readDelay: initialReadDelay}
}

// Addr returns the local address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled, calling handle for every
// well-formed command. Malformed datagrams are logged and dropped. Read
// errors are retried with backoff; a run of maxReadErrors is returned.
func (l *Listener) Serve(ctx context.Context, handle func(Command)) error {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, 512)
	var (
		failures int
		delay    time.Duration
	)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			failures++
			if failures >= maxReadErrors {
				return fmt.Errorf("reading UDP: %d consecutive failures: %w", failures, err)
			}
			if delay == 0 {
				delay = l.readDelay
			} else {
				delay = min(2*delay, maxReadDelay)
			}
			l.logger.Warn("error reading UDP, retrying", "error", err, "attempt", failures, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failures, delay = 0, 0

		raw := append([]byte(nil), buf[:n]...)
		eq, err := Decode(raw)
		if err != nil {
			l.logger.Warn("dropping malformed pointing command",
				"from", from.String(),
				"payload", string(raw),
				"error", err,
			)
			continue
		}

		l.logger.Info("pointing command received",
			"component", "mount-sim",
			"from", from.String(),
			"ra", eq.RA,
			"dec", eq.Dec,
		)
		if handle != nil {
			handle(Command{Target: eq, From: from, Raw: raw})
		}
	}
}

// Close stops the listener.
func (l *Listener) Close() error {
	return l.conn.Close()
}
