package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starlink_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	pointingCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_pointing_commands_total",
			Help: "Pointing commands handed to the network stack, by result.",
		},
		[]string{"result"},
	)

	ephemerisFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_ephemeris_faults_total",
			Help: "Coordinate computations that ended in a math fault, by body.",
		},
		[]string{"body"},
	)

	solveJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_solve_jobs_total",
			Help: "Completed plate-solve jobs, by terminal phase.",
		},
		[]string{"outcome"},
	)

	solvePollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_solve_polls_total",
			Help: "Plate-solve poll attempts, by phase and result.",
		},
		[]string{"phase", "result"},
	)

	solveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "starlink_solve_duration_seconds",
			Help:    "Wall time of plate-solve jobs from login to terminal phase.",
			Buckets: []float64{5, 15, 30, 60, 90, 120, 180},
		},
	)

	solveActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starlink_solve_active",
			Help: "1 while a plate-solve job is running.",
		},
	)

	observerLocationUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_observer_location_updates_total",
			Help: "Observer location lookups, by result.",
		},
		[]string{"result"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_stream_connections_total",
			Help: "Progress stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starlink_streams_active",
			Help: "Open progress streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starlink_stream_messages_total",
			Help: "Messages written to progress streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlink_stream_errors_total",
			Help: "Progress stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(pointingCommandsTotal)
	prometheus.MustRegister(ephemerisFaultsTotal)
	prometheus.MustRegister(solveJobsTotal)
	prometheus.MustRegister(solvePollsTotal)
	prometheus.MustRegister(solveDurationSeconds)
	prometheus.MustRegister(solveActive)
	prometheus.MustRegister(observerLocationUpdatesTotal)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamErrorsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPointingCommand counts one transmission attempt.
func RecordPointingCommand(result string) {
	pointingCommandsTotal.WithLabelValues(result).Inc()
}

// RecordEphemerisFault counts a math fault for body.
func RecordEphemerisFault(body string) {
	ephemerisFaultsTotal.WithLabelValues(body).Inc()
}

// RecordSolvePoll counts one poll attempt in phase.
func RecordSolvePoll(phase, result string) {
	solvePollsTotal.WithLabelValues(phase, result).Inc()
}

// RecordSolveOutcome counts a finished job and its duration.
func RecordSolveOutcome(outcome string, d time.Duration) {
	solveJobsTotal.WithLabelValues(outcome).Inc()
	solveDurationSeconds.Observe(d.Seconds())
}

// SetSolveActive flips the running-job gauge.
func SetSolveActive(active bool) {
	if active {
		solveActive.Set(1)
		return
	}
	solveActive.Set(0)
}

// RecordObserverLocation counts a location lookup.
func RecordObserverLocation(result string) {
	observerLocationUpdatesTotal.WithLabelValues(result).Inc()
}

// IncStreamConnections counts a stream connect or disconnect.
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamMessages counts one message written to a stream.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// IncStreamErrors counts a stream error.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are exact API paths kept as their own label.
var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/observer":     true,
	"/api/v1/bodies":       true,
	"/api/v1/point":        true,
	"/api/v1/horizontal":   true,
	"/api/v1/solve":        true,
	"/api/v1/solve/stream": true,
}

// normalizeRoute collapses parameterized and unknown paths so label
// cardinality stays bounded.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/bodies/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/bodies/{body}"
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/track/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/track/{body}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the underlying writer so SSE keeps working behind
// the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
