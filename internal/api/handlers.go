package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/ephemeris"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/httputil"
	"github.com/syt1126/StarLink-Pro-app/internal/pointing"
	"github.com/syt1126/StarLink-Pro-app/internal/tracking"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// maxJSONBody caps request bodies for the JSON endpoints.
const maxJSONBody = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFault reports err with the status code for its kind.
func writeFault(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	writeJSON(w, statusFor(kind), map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.InputError:
		return http.StatusBadRequest
	case fault.MathFault, fault.RemoteRejection:
		return http.StatusUnprocessableEntity
	case fault.NetworkError, fault.ProtocolError:
		return http.StatusBadGateway
	case fault.TimeoutError:
		return http.StatusGatewayTimeout
	case fault.Cancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// coordinateText accepts a coordinate as a JSON string ("83.82°") or number.
type coordinateText string

func (c *coordinateText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = coordinateText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("coordinate must be a string or number")
	}
	*c = coordinateText(n.String())
	return nil
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "starlink",
		"endpoints": []string{
			"GET /api/v1/observer",
			"PUT /api/v1/observer",
			"GET /api/v1/bodies",
			"GET /api/v1/bodies/{body}",
			"POST /api/v1/horizontal",
			"POST /api/v1/point",
			"POST /api/v1/track/{body}",
			"POST /api/v1/solve",
			"GET /api/v1/solve",
			"DELETE /api/v1/solve",
			"GET /api/v1/solve/stream",
		},
	})
}

// GET /api/v1/observer
func observerGetHandler(store *transform.ObserverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Get())
	}
}

// PUT /api/v1/observer {"latitude": 51.48, "longitude": -0.0015}
func observerPutHandler(store *transform.ObserverStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Latitude == nil || req.Longitude == nil {
			writeJSONError(w, http.StatusBadRequest, "latitude and longitude are required")
			return
		}
		obs := transform.Observer{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := obs.Validate(); err != nil {
			writeFault(w, err)
			return
		}
		store.Set(obs)
		logger.Info("observer updated", "component", "api", "latitude", obs.Latitude, "longitude", obs.Longitude)
		writeJSON(w, http.StatusOK, obs)
	}
}

// GET /api/v1/bodies
func bodiesHandler(tracker *tracking.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readings, err := tracker.LocateAll()
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bodies": readings})
	}
}

// GET /api/v1/bodies/{body}
func bodyHandler(tracker *tracking.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := ephemeris.ParseBody(r.PathValue("body"))
		if err != nil {
			writeFault(w, err)
			return
		}
		reading, err := tracker.Locate(body)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reading)
	}
}

type coordinateRequest struct {
	RA  coordinateText `json:"ra"`
	Dec coordinateText `json:"dec"`
}

func (c coordinateRequest) parse() (astro.Equatorial, error) {
	eq, err := pointing.ParseCoordinate(string(c.RA), string(c.Dec))
	if err != nil {
		return astro.Equatorial{}, err
	}
	eq.RA = astro.Normalize360(eq.RA)
	if !eq.Valid() {
		return astro.Equatorial{}, fault.New(fault.InputError, "api.coordinate", "declination outside [-90, 90]")
	}
	return eq, nil
}

// POST /api/v1/horizontal {"ra": "83.8221", "dec": "-5.3911"}
func horizontalHandler(tracker *tracking.Tracker, store *transform.ObserverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coordinateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		eq, err := req.parse()
		if err != nil {
			writeFault(w, err)
			return
		}
		h, err := tracker.Horizontal(eq)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"equatorial": eq,
			"horizontal": h,
			"observer":   store.Get(),
		})
	}
}

// mountAddress picks the request's mount address or the configured default.
func mountAddress(w http.ResponseWriter, requested, fallback string) (string, bool) {
	ip := strings.TrimSpace(requested)
	if ip == "" {
		ip = fallback
	}
	if ip == "" {
		writeJSONError(w, http.StatusBadRequest, "mount ip is required")
		return "", false
	}
	host, err := httputil.MountHost(ip)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return host, true
}

func rateLimited(w http.ResponseWriter, r *http.Request, limiter *clientLimiter, trustProxy bool, logger *slog.Logger) bool {
	client := httputil.ClientIP(r, trustProxy)
	if limiter.allow(client) {
		return false
	}
	logger.Warn("pointing rate limit exceeded", "component", "api", "remote_ip", client)
	w.Header().Set("Retry-After", "1")
	writeJSONError(w, http.StatusTooManyRequests, "too many pointing commands")
	return true
}

// POST /api/v1/point {"ip": "192.168.68.107", "ra": "83.8221", "dec": "-5.3911"}
func pointHandler(tracker *tracking.Tracker, limiter *clientLimiter, cfg Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IP string `json:"ip"`
			coordinateRequest
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		ip, ok := mountAddress(w, req.IP, cfg.MountIP)
		if !ok {
			return
		}
		eq, err := req.parse()
		if err != nil {
			writeFault(w, err)
			return
		}
		if rateLimited(w, r, limiter, cfg.TrustProxy, logger) {
			return
		}

		h, err := tracker.PointAt(r.Context(), ip, eq)
		if err != nil {
			writeFault(w, err)
			return
		}
		logger.Info("pointing command sent", "component", "api", "mount_ip", ip, "ra", eq.RA, "dec", eq.Dec)
		writeJSON(w, http.StatusOK, map[string]any{
			"ip":         ip,
			"command":    string(pointing.Encode(eq)),
			"equatorial": eq,
			"horizontal": h,
		})
	}
}

// POST /api/v1/track/{body} {"ip": "192.168.68.107"}
func trackHandler(tracker *tracking.Tracker, limiter *clientLimiter, cfg Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := ephemeris.ParseBody(r.PathValue("body"))
		if err != nil {
			writeFault(w, err)
			return
		}
		var req struct {
			IP string `json:"ip"`
		}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		ip, ok := mountAddress(w, req.IP, cfg.MountIP)
		if !ok {
			return
		}
		if rateLimited(w, r, limiter, cfg.TrustProxy, logger) {
			return
		}

		reading, err := tracker.Point(r.Context(), ip, body)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ip":      ip,
			"command": string(pointing.Encode(reading.Equatorial)),
			"reading": reading,
		})
	}
}
