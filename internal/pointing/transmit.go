package pointing

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
)

// DefaultPort is the mount's command port.
const DefaultPort = 8888

// DefaultTimeout bounds the socket-level send.
const DefaultTimeout = 1500 * time.Millisecond

// Config holds transmitter settings.
type Config struct {
	Port    int           // UDP port on the mount (default: 8888)
	Timeout time.Duration // Send deadline (default: 1.5s)
}

// Transmitter sends pointing commands. A successful send means the datagram
// was accepted by the local network stack, not that the mount received it.
type Transmitter struct {
	port    int
	timeout time.Duration
	logger  *slog.Logger
}

// NewTransmitter creates a Transmitter, filling zero config fields with defaults.
func NewTransmitter(cfg Config, logger *slog.Logger) *Transmitter {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Transmitter{
		port:    cfg.Port,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Send encodes eq and transmits it to the mount at ip.
func (t *Transmitter) Send(ctx context.Context, ip string, eq astro.Equatorial) error {
	if !astro.Finite(eq.RA, eq.Dec) {
		return fault.New(fault.InputError, "pointing.send", "non-finite coordinate")
	}
	return t.Transmit(ctx, ip, Encode(eq))
}

// Transmit opens a UDP socket, writes payload to (ip, port) and closes the
// socket. There is no retry.
func (t *Transmitter) Transmit(ctx context.Context, ip string, payload []byte) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(t.port))
	if ip == "" {
		metrics.RecordPointingCommand("invalid_address")
		return fault.New(fault.NetworkError, "pointing.transmit", "mount address is empty")
	}

	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		metrics.RecordPointingCommand("dial_error")
		return fault.Wrap(fault.NetworkError, "pointing.transmit", fmt.Sprintf("cannot reach mount %s", addr), err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		t.logger.Debug("could not set write deadline", "error", err)
	}

	if _, err := conn.Write(payload); err != nil {
		metrics.RecordPointingCommand("send_error")
		return fault.Wrap(fault.NetworkError, "pointing.transmit", fmt.Sprintf("sending to mount %s", addr), err)
	}

	metrics.RecordPointingCommand("sent")
	t.logger.Info("pointing command sent",
		"component", "pointing",
		"addr", addr,
		"payload", string(payload),
	)
	return nil
}
