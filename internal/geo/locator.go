// Package geo looks up the observer's approximate location from the public
// IP address.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// DefaultURL is the IP geolocation endpoint.
const DefaultURL = "https://ipapi.co/json/"

// DefaultTimeout bounds one lookup.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps the body read from the provider.
const maxResponseBytes = 64 * 1024

// Locator fetches the observer location from an IP geolocation service.
type Locator struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLocator creates a Locator for url. A zero timeout uses DefaultTimeout.
func NewLocator(url string, timeout time.Duration, logger *slog.Logger) *Locator {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Locator{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// URL returns the configured provider URL.
func (l *Locator) URL() string {
	return l.url
}

type locationResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	Country   string   `json:"country_name"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

// Locate performs one lookup.
func (l *Locator) Locate(ctx context.Context) (transform.Observer, error) {
	const op = "geo.locate"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return transform.Observer{}, fault.Wrap(fault.InputError, op, "creating request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return transform.Observer{}, fault.Wrap(fault.NetworkError, op, "fetching location", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transform.Observer{}, fault.New(fault.ProtocolError, op, fmt.Sprintf("unexpected status code %d from %s", resp.StatusCode, l.url))
	}

	var body locationResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return transform.Observer{}, fault.Wrap(fault.ProtocolError, op, "decoding response", err)
	}
	if body.Error {
		return transform.Observer{}, fault.New(fault.RemoteRejection, op, body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return transform.Observer{}, fault.New(fault.ProtocolError, op, "response has no latitude/longitude")
	}

	obs := transform.Observer{Latitude: *body.Latitude, Longitude: *body.Longitude}
	if err := obs.Validate(); err != nil {
		return transform.Observer{}, fault.Wrap(fault.ProtocolError, op, "provider returned an invalid location", err)
	}

	l.logger.Debug("location resolved",
		"component", "geo",
		"city", body.City,
		"country", body.Country,
	)
	return obs, nil
}

// Refresh looks up the location once and stores it. On failure the store is
// left unchanged and a warning is logged.
func Refresh(ctx context.Context, l *Locator, store *transform.ObserverStore, logger *slog.Logger) (transform.Observer, error) {
	obs, err := l.Locate(ctx)
	if err != nil {
		metrics.RecordObserverLocation("error")
		logger.Warn("observer location lookup failed, keeping current location",
			"component", "geo",
			"url", l.URL(),
			"current", store.Get(),
			"error", err,
		)
		return store.Get(), err
	}
	store.Set(obs)
	metrics.RecordObserverLocation("updated")
	logger.Info("observer location updated",
		"component", "geo",
		"latitude", obs.Latitude,
		"longitude", obs.Longitude,
	)
	return obs, nil
}

// RefreshInBackground runs Refresh on its own goroutine so callers can serve
// with the seeded location while the lookup is in flight. The returned
// channel is closed once the lookup has finished, successfully or not.
func RefreshInBackground(ctx context.Context, l *Locator, store *transform.ObserverStore, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		Refresh(ctx, l, store, logger)
	}()
	return done
}
