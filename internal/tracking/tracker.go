// Package tracking turns "where is body X now" into coordinates for the
// current observer and, on request, into a pointing command for the mount.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/clock"
	"github.com/syt1126/StarLink-Pro-app/internal/ephemeris"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// Sender transmits a pointing command to a mount.
type Sender interface {
	Send(ctx context.Context, ip string, eq astro.Equatorial) error
}

// Reading is a body's position for one observer at one instant.
type Reading struct {
	Body       ephemeris.Body     `json:"body"`
	JulianDate float64            `json:"julian_date"`
	Equatorial astro.Equatorial   `json:"equatorial"`
	Horizontal astro.Horizontal   `json:"horizontal"`
	Observer   transform.Observer `json:"observer"`
	At         time.Time          `json:"at"`
}

// AboveHorizon reports whether the body is up.
func (r Reading) AboveHorizon() bool {
	return r.Horizontal.Altitude > 0
}

// Tracker computes readings against the current observer snapshot.
type Tracker struct {
	observers *transform.ObserverStore
	clock     clock.Clock
	sender    Sender
	logger    *slog.Logger
}

// New creates a Tracker. sender may be nil when no mount is attached.
func New(observers *transform.ObserverStore, c clock.Clock, sender Sender, logger *slog.Logger) *Tracker {
	if c == nil {
		c = clock.Real()
	}
	return &Tracker{
		observers: observers,
		clock:     c,
		sender:    sender,
		logger:    logger,
	}
}

// Locate computes body's position now.
func (t *Tracker) Locate(body ephemeris.Body) (Reading, error) {
	now := t.clock.Now().UTC()
	jd := astro.JulianDate(now)
	obs := t.observers.Get()

	eq, err := ephemeris.Position(body, jd)
	if err != nil {
		t.recordFault(body, err)
		return Reading{}, err
	}
	h, err := transform.ToHorizontal(eq, obs, jd)
	if err != nil {
		t.recordFault(body, err)
		return Reading{}, err
	}

	return Reading{
		Body:       body,
		JulianDate: jd,
		Equatorial: eq,
		Horizontal: h,
		Observer:   obs,
		At:         now,
	}, nil
}

// LocateAll computes every supported body at the same instant.
func (t *Tracker) LocateAll() ([]Reading, error) {
	bodies := ephemeris.Bodies()
	out := make([]Reading, 0, len(bodies))
	for _, b := range bodies {
		r, err := t.Locate(b)
		if err != nil {
			return nil, fmt.Errorf("locating %s: %w", b, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Horizontal converts eq for the current observer and time.
func (t *Tracker) Horizontal(eq astro.Equatorial) (astro.Horizontal, error) {
	return transform.ToHorizontal(eq, t.observers.Get(), astro.JulianDate(t.clock.Now()))
}

// Point locates body and sends its coordinates to the mount at ip. A send
// failure is returned together with the reading.
func (t *Tracker) Point(ctx context.Context, ip string, body ephemeris.Body) (Reading, error) {
	r, err := t.Locate(body)
	if err != nil {
		return Reading{}, err
	}
	if err := t.send(ctx, ip, r.Equatorial); err != nil {
		return r, err
	}
	t.logger.Info("pointed at body",
		"component", "tracking",
		"body", body.String(),
		"ra", r.Equatorial.RA,
		"dec", r.Equatorial.Dec,
		"az", r.Horizontal.Azimuth,
		"alt", r.Horizontal.Altitude,
	)
	return r, nil
}

// PointAt sends eq to the mount at ip and returns its horizontal coordinates
// for the current observer.
func (t *Tracker) PointAt(ctx context.Context, ip string, eq astro.Equatorial) (astro.Horizontal, error) {
	h, err := t.Horizontal(eq)
	if err != nil {
		return astro.Horizontal{}, err
	}
	return h, t.send(ctx, ip, eq)
}

// Follow points at body every interval until ctx ends, calling fn with each
// reading. Send failures are reported to fn and do not stop the loop; a
// failure to compute the position does.
func (t *Tracker) Follow(ctx context.Context, ip string, body ephemeris.Body, every time.Duration, fn func(Reading, error)) error {
	if every <= 0 {
		return fault.New(fault.InputError, "tracking.follow", "interval must be positive")
	}
	t.logger.Info("tracking started",
		"component", "tracking",
		"body", body.String(),
		"mount_ip", ip,
		"interval", every.String(),
	)
	for {
		r, err := t.Point(ctx, ip, body)
		if fn != nil {
			fn(r, err)
		}
		if err != nil && !fault.Is(err, fault.NetworkError) {
			return err
		}
		if ctx.Err() != nil {
			t.logger.Info("tracking stopped", "component", "tracking", "body", body.String())
			return nil
		}

		select {
		case <-ctx.Done():
			t.logger.Info("tracking stopped", "component", "tracking", "body", body.String())
			return nil
		case <-t.clock.After(every):
		}
	}
}

func (t *Tracker) send(ctx context.Context, ip string, eq astro.Equatorial) error {
	if t.sender == nil {
		return fault.New(fault.NetworkError, "tracking.point", "no mount transmitter configured")
	}
	return t.sender.Send(ctx, ip, eq)
}

func (t *Tracker) recordFault(body ephemeris.Body, err error) {
	if fault.Is(err, fault.MathFault) {
		metrics.RecordEphemerisFault(body.String())
		t.logger.Error("coordinate computation failed", "component", "tracking", "body", body.String(), "error", err)
	}
}
