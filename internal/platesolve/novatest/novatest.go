// Package novatest provides an in-process astrometry API for tests.
package novatest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Fixed identifiers handed out by the simulated service.
const (
	Session      = "nova-session"
	SubmissionID = 101
	JobID        = 202

	RA  = 83.8221
	Dec = -5.3911
)

// Behavior scripts the service. The zero value assigns the job on the first
// submission poll, solves it on the first status poll and reports M42.
type Behavior struct {
	RejectUpload bool

	// AssignAfter is the submission poll, counted after FailSubmissions,
	// that first lists the job. Zero means the first.
	AssignAfter     int
	FailSubmissions int // leading submission polls answered with 500

	Statuses     []string // status per poll, the last one repeats; empty means "success"
	FailStatuses int      // leading status polls answered with 503

	Calibration     string // raw calibration body; empty means RA and Dec
	FailCalibration bool
	Info            string // raw info body; empty lists M42 and the Orion Nebula
	FailInfo        bool

	// OnSubmission runs before every submission poll is answered.
	OnSubmission func(poll int, r *http.Request)
}

// Counts are the requests received per endpoint.
type Counts struct {
	Logins       int
	Uploads      int
	Submissions  int
	Statuses     int
	Calibrations int
}

// Upload is what the last upload request carried.
type Upload struct {
	Meta     map[string]any
	File     []byte
	FileName string
}

// Server answers login, upload, submission, job status, calibration and
// info requests according to its Behavior. Status polls block while Hold
// is in effect.
type Server struct {
	*httptest.Server

	apiKey string

	mu       sync.Mutex
	behavior Behavior
	hold     chan struct{}
	counts   Counts
	upload   Upload
}

// New starts a server that accepts apiKey and closes it when t ends.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()
	s := &Server{apiKey: apiKey}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Script replaces the server's behavior.
func (s *Server) Script(b Behavior) {
	s.mu.Lock()
	s.behavior = b
	s.mu.Unlock()
}

// SetStatus makes every status poll report status, e.g. "failure".
func (s *Server) SetStatus(status string) {
	s.mu.Lock()
	s.behavior.Statuses = []string{status}
	s.mu.Unlock()
}

// Hold makes status polls block until Release is called or the request
// is cancelled.
func (s *Server) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold == nil {
		s.hold = make(chan struct{})
	}
}

// Release unblocks held status polls.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

// Counts returns the requests received so far.
func (s *Server) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// StatusPolls returns the number of job status requests received.
func (s *Server) StatusPolls() int {
	return s.Counts().Statuses
}

// Uploads returns the number of upload requests received.
func (s *Server) Uploads() int {
	return s.Counts().Uploads
}

// LastUpload returns the most recent upload.
func (s *Server) LastUpload() Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts.Logins++
		s.mu.Unlock()

		var req struct {
			APIKey string `json:"apikey"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("request-json")), &req); err != nil || req.APIKey != s.apiKey {
			writeJSON(w, map[string]string{"status": "error", "errormessage": "bad apikey"})
			return
		}
		writeJSON(w, map[string]string{"status": "success", "message": "authenticated user", "session": Session})
	})

	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.counts.Uploads++

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("request-json")), &meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		s.upload = Upload{Meta: meta, File: data, FileName: hdr.Filename}

		if s.behavior.RejectUpload || meta["session"] != Session {
			writeJSON(w, map[string]string{"status": "error", "errormessage": "no session"})
			return
		}
		writeJSON(w, map[string]any{"status": "success", "subid": SubmissionID, "hash": "abc"})
	})

	mux.HandleFunc(fmt.Sprintf("GET /api/submissions/%d", SubmissionID), func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts.Submissions++
		poll := s.counts.Submissions
		b := s.behavior
		s.mu.Unlock()

		if b.OnSubmission != nil {
			b.OnSubmission(poll, r)
		}
		if poll <= b.FailSubmissions {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		if poll < b.FailSubmissions+max(b.AssignAfter, 1) {
			fmt.Fprint(w, `{"processing_started":"2024-03-10","jobs":[null]}`)
			return
		}
		fmt.Fprintf(w, `{"processing_started":"2024-03-10","jobs":[null, %d]}`, JobID)
	})

	mux.HandleFunc(fmt.Sprintf("GET /api/jobs/%d", JobID), func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts.Statuses++
		poll := s.counts.Statuses
		hold := s.hold
		b := s.behavior
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if poll <= b.FailStatuses {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		status := "success"
		if len(b.Statuses) > 0 {
			status = b.Statuses[min(poll-b.FailStatuses, len(b.Statuses))-1]
		}
		writeJSON(w, map[string]string{"status": status})
	})

	mux.HandleFunc(fmt.Sprintf("GET /api/jobs/%d/calibration", JobID), func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.counts.Calibrations++
		b := s.behavior
		s.mu.Unlock()

		if b.FailCalibration {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if b.Calibration != "" {
			fmt.Fprint(w, b.Calibration)
			return
		}
		writeJSON(w, map[string]float64{"ra": RA, "dec": Dec, "radius": 0.8, "pixscale": 2.1, "orientation": 90.5, "parity": 1})
	})

	mux.HandleFunc(fmt.Sprintf("GET /api/jobs/%d/info/", JobID), func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		b := s.behavior
		s.mu.Unlock()

		if b.FailInfo {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if b.Info != "" {
			fmt.Fprint(w, b.Info)
			return
		}
		writeJSON(w, map[string]any{"status": "success", "objects_in_field": []string{"M42", "Orion Nebula"}})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
