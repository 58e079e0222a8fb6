package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/clock"
	"github.com/syt1126/StarLink-Pro-app/internal/ephemeris"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

type recordingSender struct {
	mu   sync.Mutex
	ips  []string
	eqs  []astro.Equatorial
	fail error
}

func (s *recordingSender) Send(ctx context.Context, ip string, eq astro.Equatorial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips = append(s.ips, ip)
	s.eqs = append(s.eqs, eq)
	return s.fail
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.eqs)
}

func newTracker(sender Sender) (*Tracker, *clock.Fake, *transform.ObserverStore) {
	c := clock.NewFake(time.Date(2024, 6, 21, 4, 25, 0, 0, time.UTC))
	store := transform.NewObserverStore(transform.DefaultObserver())
	return New(store, c, sender, testLogger), c, store
}

func TestLocateMatchesEngine(t *testing.T) {
	tr, c, store := newTracker(nil)

	for _, body := range ephemeris.Bodies() {
		r, err := tr.Locate(body)
		if err != nil {
			t.Fatalf("Locate(%s): %v", body, err)
		}
		jd := astro.JulianDate(c.Now())
		eq, _ := ephemeris.Position(body, jd)
		h, _ := transform.ToHorizontal(eq, store.Get(), jd)
		if r.JulianDate != jd || r.Equatorial != eq || r.Horizontal != h {
			t.Errorf("%s: reading %+v disagrees with engine (%v, %v)", body, r, eq, h)
		}
		if r.Body != body || r.Observer != store.Get() || !r.At.Equal(c.Now()) {
			t.Errorf("%s: reading metadata %+v", body, r)
		}
	}
}

// At local noon near the June solstice the Sun is almost overhead in Hong Kong.
func TestLocateSunNoonHongKong(t *testing.T) {
	tr, _, _ := newTracker(nil)
	r, err := tr.Locate(ephemeris.Sun)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !r.AboveHorizon() || r.Horizontal.Altitude < 85 {
		t.Errorf("sun altitude = %.2f, want > 85", r.Horizontal.Altitude)
	}
}

func TestLocateUsesObserverSnapshot(t *testing.T) {
	tr, _, store := newTracker(nil)
	store.Set(transform.Observer{Latitude: -33.9, Longitude: 18.4})

	r, err := tr.Locate(ephemeris.Moon)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if r.Observer.Latitude != -33.9 || r.Observer.Longitude != 18.4 {
		t.Errorf("observer = %+v", r.Observer)
	}
}

func TestLocateAll(t *testing.T) {
	tr, _, _ := newTracker(nil)
	readings, err := tr.LocateAll()
	if err != nil {
		t.Fatalf("LocateAll: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	for i, b := range ephemeris.Bodies() {
		if readings[i].Body != b {
			t.Errorf("reading %d body = %v, want %v", i, readings[i].Body, b)
		}
		if readings[i].JulianDate != readings[0].JulianDate {
			t.Error("readings taken at different instants")
		}
	}
}

func TestLocateUnknownBody(t *testing.T) {
	tr, _, _ := newTracker(nil)
	if _, err := tr.Locate(ephemeris.Body(42)); !fault.Is(err, fault.InputError) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestPointSendsEquatorial(t *testing.T) {
	tx := &recordingSender{}
	tr, _, _ := newTracker(tx)

	r, err := tr.Point(context.Background(), "10.0.0.7", ephemeris.Mars)
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	if tx.count() != 1 || tx.ips[0] != "10.0.0.7" || tx.eqs[0] != r.Equatorial {
		t.Errorf("sent %v to %v, want %v to 10.0.0.7", tx.eqs, tx.ips, r.Equatorial)
	}
}

func TestPointSendFailureKeepsReading(t *testing.T) {
	tx := &recordingSender{fail: fault.New(fault.NetworkError, "pointing.transmit", "unreachable")}
	tr, _, _ := newTracker(tx)

	r, err := tr.Point(context.Background(), "10.0.0.7", ephemeris.Sun)
	if !fault.Is(err, fault.NetworkError) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
	if r.Body != ephemeris.Sun || r.JulianDate == 0 {
		t.Errorf("reading not returned with send failure: %+v", r)
	}
}

func TestPointWithoutSender(t *testing.T) {
	tr, _, _ := newTracker(nil)
	if _, err := tr.Point(context.Background(), "10.0.0.7", ephemeris.Sun); !fault.Is(err, fault.NetworkError) {
		t.Errorf("error = %v, want NetworkError", err)
	}
}

func TestPointAt(t *testing.T) {
	tx := &recordingSender{}
	tr, c, store := newTracker(tx)

	eq := astro.Equatorial{RA: 83.8221, Dec: -5.3911}
	h, err := tr.PointAt(context.Background(), "10.0.0.7", eq)
	if err != nil {
		t.Fatalf("PointAt: %v", err)
	}
	want, _ := transform.ToHorizontal(eq, store.Get(), astro.JulianDate(c.Now()))
	if h != want {
		t.Errorf("horizontal = %+v, want %+v", h, want)
	}
	if tx.count() != 1 || tx.eqs[0] != eq {
		t.Errorf("sent %v", tx.eqs)
	}

	if _, err := tr.PointAt(context.Background(), "10.0.0.7", astro.Equatorial{RA: 10, Dec: 100}); !fault.Is(err, fault.InputError) {
		t.Errorf("out-of-range dec error = %v, want InputError", err)
	}
	if tx.count() != 1 {
		t.Error("invalid coordinate was transmitted")
	}
}

func TestFollowRepeatsUntilCancelled(t *testing.T) {
	tx := &recordingSender{}
	tr, c, _ := newTracker(tx)
	start := c.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readings []Reading
	err := tr.Follow(ctx, "10.0.0.7", ephemeris.Moon, 2*time.Second, func(r Reading, err error) {
		if err != nil {
			t.Errorf("reading error: %v", err)
		}
		readings = append(readings, r)
		if len(readings) == 4 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(readings) != 4 || tx.count() != 4 {
		t.Fatalf("readings = %d, sends = %d; want 4", len(readings), tx.count())
	}
	for i, r := range readings {
		want := start.Add(time.Duration(i) * 2 * time.Second)
		if !r.At.Equal(want) {
			t.Errorf("reading %d at %v, want %v", i, r.At, want)
		}
	}
	if readings[3].Equatorial == readings[0].Equatorial {
		t.Error("moon did not move between readings")
	}
}

func TestFollowSurvivesSendFailures(t *testing.T) {
	tx := &recordingSender{fail: fault.New(fault.NetworkError, "pointing.transmit", "unreachable")}
	tr, _, _ := newTracker(tx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failures := 0
	err := tr.Follow(ctx, "10.0.0.7", ephemeris.Sun, time.Second, func(r Reading, err error) {
		if err != nil {
			failures++
		}
		if failures == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if failures != 3 {
		t.Errorf("failures = %d, want 3", failures)
	}
}

func TestFollowStopsOnComputeError(t *testing.T) {
	tr, _, _ := newTracker(&recordingSender{})
	err := tr.Follow(context.Background(), "10.0.0.7", ephemeris.Body(0), time.Second, nil)
	if !fault.Is(err, fault.InputError) {
		t.Errorf("error = %v, want InputError", err)
	}
}

func TestFollowRejectsBadInterval(t *testing.T) {
	tr, _, _ := newTracker(nil)
	err := tr.Follow(context.Background(), "x", ephemeris.Sun, 0, nil)
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.InputError {
		t.Errorf("error = %v, want InputError", err)
	}
}
