package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
)

const writeTimeout = 30 * time.Second

// subscriber writes one client's event stream. Every event carries the
// message type as its SSE event name and a per-connection sequence number.
type subscriber struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	seq int
}

// retry tells the browser how long to wait before reconnecting.
func (s *subscriber) retry(d time.Duration) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return fmt.Errorf("write retry: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// event writes v as JSON under the given event name.
func (s *subscriber) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}

	s.extendDeadline()
	s.seq++
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", name, s.seq, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	metrics.IncStreamMessages()
	return nil
}

// ping writes a comment line so idle proxies keep the connection open.
func (s *subscriber) ping() error {
	s.extendDeadline()
	if _, err := fmt.Fprint(s.w, ":\n\n"); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *subscriber) extendDeadline() {
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Debug("could not set write deadline", "error", err)
	}
}
