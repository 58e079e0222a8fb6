// Package stream implements Server-Sent Events (SSE) streaming of plate-solve
// progress. Clients connect via GET /api/v1/solve/stream and follow the
// current solve job until it reaches a terminal phase.
//
// Each message is a named event whose data repeats the name in "type":
//
//	event: progress
//	id: 3
//	data: {"type":"progress","id":"...","event":{"phase":"polling job status","message":"..."}}
//
// The first message is a snapshot of the job's progress log, or an idle
// event when no job has been started:
//
//	event: snapshot
//	data: {"type":"snapshot","id":"...","file":"star.jpg","events":[...]}
//
//	event: idle
//	data: {"type":"idle"}
//
// The last message carries the job result, after which the server closes the
// stream. Keep-alive comments (:\n\n) are sent every KeepaliveInterval.
package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/httputil"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
)

// Defaults applied by the config layer.
const (
	DefaultMaxConcurrentPerIP = 10
	DefaultKeepaliveInterval  = 30 * time.Second
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
}

// Source yields the solve job a new stream should follow.
type Source interface {
	// Current returns the most recently started job, or nil.
	Current() *platesolve.Run
}

// Handler manages SSE streaming connections.
type Handler struct {
	source     Source
	config     Config
	trustProxy bool
	limiter    *streamLimiter
	logger     *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, config Config, trustProxy bool, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = DefaultMaxConcurrentPerIP
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = DefaultKeepaliveInterval
	}
	return &Handler{
		source:     source,
		config:     config,
		trustProxy: trustProxy,
		limiter:    newStreamLimiter(config.MaxConcurrentPerIP, defaultMaxTotal),
		logger:     logger.With("component", "stream"),
	}
}

// HandleSolveProgress serves the SSE progress stream.
// GET /api/v1/solve/stream
func (h *Handler) HandleSolveProgress(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.trustProxy)
	if err := h.limiter.acquire(ip); err != nil {
		reason := "client_limit"
		if errors.Is(err, errTotalStreams) {
			reason = "global_limit"
		}
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream rejected",
			"remote_ip", ip,
			"reason", reason,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A solve can outlast the server's WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &subscriber{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.retry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	run := h.source.Current()
	if run == nil {
		if err := c.event("idle", idleMessage{Type: "idle"}); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (idle)", "remote_ip", ip, "error", err)
		}
		return
	}

	progress := run.Progress()
	// Take the channel before the snapshot so no append is missed.
	changed := progress.Changed()
	events := progress.Events()
	if err := c.event("snapshot", snapshotMessage{
		Type:     "snapshot",
		ID:       run.ID(),
		FileName: run.FileName(),
		Events:   events,
	}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (snapshot)", "remote_ip", ip, "error", err)
		return
	}
	sent := len(events)

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-changed:
			changed = progress.Changed()
			if err := h.sendLatest(c, run, &sent); err != nil {
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-run.Done():
			if err := h.sendLatest(c, run, &sent); err != nil {
				return
			}
			if err := c.event("result", resultMessage{Type: "result", Result: run.Result()}); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error (result)", "remote_ip", ip, "error", err)
			}
			return

		case <-keepaliveTicker.C:
			if err := c.ping(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendLatest sends the newest event if the log has grown since the last
// send. Intermediate events a slow client missed are skipped.
func (h *Handler) sendLatest(c *subscriber, run *platesolve.Run, sent *int) error {
	n, e := run.Progress().Snapshot()
	if n <= *sent {
		return nil
	}
	*sent = n
	if err := c.event("progress", progressMessage{Type: "progress", ID: run.ID(), Event: e}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", c.ip, "error", err)
		return err
	}
	return nil
}

// SSE message payload types.

type idleMessage struct {
	Type string `json:"type"`
}

type snapshotMessage struct {
	Type     string             `json:"type"`
	ID       string             `json:"id"`
	FileName string             `json:"file"`
	Events   []platesolve.Event `json:"events"`
}

type progressMessage struct {
	Type  string           `json:"type"`
	ID    string           `json:"id"`
	Event platesolve.Event `json:"event"`
}

type resultMessage struct {
	Type   string             `json:"type"`
	Result *platesolve.Result `json:"result"`
}
