package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/syt1126/StarLink-Pro-app/internal/httputil"
	"github.com/syt1126/StarLink-Pro-app/internal/platesolve"
)

var (
	errSolveBusy          = errors.New("a solve job is already running")
	errSolveNotConfigured = errors.New("plate solving is not configured: set STARLINK_ASTROMETRY_API_KEY")
)

// solveManager owns the single current solve job. Finished jobs stay
// readable until the next one starts.
type solveManager struct {
	solver *platesolve.Solver
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *platesolve.Run
}

func newSolveManager(solver *platesolve.Solver, logger *slog.Logger) *solveManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &solveManager{
		solver: solver,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Current returns the running or most recently finished job, or nil.
func (m *solveManager) Current() *platesolve.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *solveManager) configured() bool {
	return m.solver != nil && m.solver.Config().APIKey != ""
}

// start launches req unless a job is still running, in which case that job
// is returned with errSolveBusy.
func (m *solveManager) start(req platesolve.Request) (*platesolve.Run, error) {
	if !m.configured() {
		return nil, errSolveNotConfigured
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Result() == nil {
		return m.current, errSolveBusy
	}
	m.current = m.solver.Start(m.ctx, req)
	return m.current, nil
}

// close cancels every job started through the manager.
func (m *solveManager) close() {
	m.cancel()
}

type solveStatus struct {
	ID       string             `json:"id"`
	FileName string             `json:"file"`
	Phase    platesolve.Phase   `json:"phase"`
	Running  bool               `json:"running"`
	Events   []platesolve.Event `json:"events"`
	Result   *platesolve.Result `json:"result,omitempty"`
}

func statusOf(run *platesolve.Run) solveStatus {
	res := run.Result()
	return solveStatus{
		ID:       run.ID(),
		FileName: run.FileName(),
		Phase:    run.Phase(),
		Running:  res == nil,
		Events:   run.Progress().Events(),
		Result:   res,
	}
}

// POST /api/v1/solve (multipart: image, optional mount_ip)
func solveStartHandler(m *solveManager, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.configured() {
			writeJSONError(w, http.StatusServiceUnavailable, errSolveNotConfigured.Error())
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		if err := r.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "expected a multipart form with an image field")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, hdr, err := r.FormFile("image")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "missing image field")
			return
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "could not read image")
			return
		}
		if len(image) == 0 {
			writeJSONError(w, http.StatusBadRequest, "image is empty")
			return
		}

		mountIP := strings.TrimSpace(r.FormValue("mount_ip"))
		if mountIP == "" {
			mountIP = cfg.MountIP
		}
		if mountIP != "" {
			if mountIP, err = httputil.MountHost(mountIP); err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		run, err := m.start(platesolve.Request{
			Image:    image,
			FileName: hdr.Filename,
			MountIP:  mountIP,
		})
		if errors.Is(err, errSolveBusy) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
				"id":    run.ID(),
			})
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}

		w.Header().Set("Location", "/api/v1/solve")
		writeJSON(w, http.StatusAccepted, statusOf(run))
	}
}

// GET /api/v1/solve
func solveStatusHandler(m *solveManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := m.Current()
		if run == nil {
			writeJSONError(w, http.StatusNotFound, "no solve job")
			return
		}
		writeJSON(w, http.StatusOK, statusOf(run))
	}
}

// DELETE /api/v1/solve
func solveCancelHandler(m *solveManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := m.Current()
		if run == nil {
			writeJSONError(w, http.StatusNotFound, "no solve job")
			return
		}
		if run.Result() != nil {
			writeJSONError(w, http.StatusConflict, "solve job already finished")
			return
		}
		run.Cancel()
		logger.Info("solve cancel requested", "component", "api", "solve_id", run.ID())
		writeJSON(w, http.StatusAccepted, statusOf(run))
	}
}
