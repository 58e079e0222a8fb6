// Package api serves the HTTP surface: body positions, observer settings,
// mount pointing, plate solving and its progress stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/auth"
	"github.com/syt1126/StarLink-Pro-app/internal/health"
	"github.com/syt1126/StarLink-Pro-app/internal/httputil"
	"github.com/syt1126/StarLink-Pro-app/internal/logging"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
	"github.com/syt1126/StarLink-Pro-app/internal/stream"
	"github.com/syt1126/StarLink-Pro-app/internal/tracking"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// Config holds HTTP-facing settings.
type Config struct {
	Addr           string
	TrustProxy     bool
	MaxUploadBytes int64
	Auth           auth.Config
	Stream         stream.Config

	// MountIP is used when a pointing request names no mount.
	MountIP string
	// CommandRate and CommandBurst pace pointing requests per client.
	CommandRate  float64
	CommandBurst int
}

// Deps are the services the handlers drive. Solver may be nil, which
// disables the plate-solve endpoints.
type Deps struct {
	Observers *transform.ObserverStore
	Tracker   *tracking.Tracker
	Solver    *platesolve.Solver
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	solves     *solveManager
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	solves := newSolveManager(deps.Solver, logger)
	limiter := newClientLimiter(cfg.CommandRate, cfg.CommandBurst)
	streamHandler := stream.NewHandler(solves, cfg.Stream, cfg.TrustProxy, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(map[string]health.Check{
		"observer": func() error { return deps.Observers.Get().Validate() },
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", indexHandler)

	mux.HandleFunc("GET /api/v1/observer", observerGetHandler(deps.Observers))
	mux.HandleFunc("PUT /api/v1/observer", observerPutHandler(deps.Observers, logger))
	mux.HandleFunc("GET /api/v1/bodies", bodiesHandler(deps.Tracker))
	mux.HandleFunc("GET /api/v1/bodies/{body}", bodyHandler(deps.Tracker))
	mux.HandleFunc("POST /api/v1/horizontal", horizontalHandler(deps.Tracker, deps.Observers))
	mux.HandleFunc("POST /api/v1/point", pointHandler(deps.Tracker, limiter, cfg, logger))
	mux.HandleFunc("POST /api/v1/track/{body}", trackHandler(deps.Tracker, limiter, cfg, logger))

	mux.HandleFunc("POST /api/v1/solve", solveStartHandler(solves, cfg))
	mux.HandleFunc("GET /api/v1/solve", solveStatusHandler(solves))
	mux.HandleFunc("DELETE /api/v1/solve", solveCancelHandler(solves, logger))
	mux.HandleFunc("GET /api/v1/solve/stream", streamHandler.HandleSolveProgress)

	// Build middleware chain: metrics -> request id -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = logging.Middleware(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       60 * time.Second, // large image uploads
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		solves: solves,
		logger: logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown cancels any running solve and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.solves.close()
	return s.httpServer.Shutdown(ctx)
}

// quietPath reports whether path is a health or readiness check that logs at DEBUG.
func quietPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if quietPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logging.FromContext(r.Context(), logger).Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
