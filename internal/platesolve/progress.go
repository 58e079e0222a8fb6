package platesolve

import (
	"sync"
	"time"
)

// Event is one entry in a job's progress log.
type Event struct {
	Phase   Phase         `json:"phase"`
	Message string        `json:"message"`
	Elapsed time.Duration `json:"elapsed_ns"`
	At      time.Time     `json:"at"`
}

// Progress is an append-only log of progress events. The solve worker is the
// only writer; any number of readers may poll it or wait on Changed.
type Progress struct {
	mu      sync.RWMutex
	events  []Event
	changed chan struct{}
}

func newProgress() *Progress {
	return &Progress{changed: make(chan struct{})}
}

// append adds e and wakes every waiter. Waiters that miss intermediate
// events see only the latest state when they next read.
func (p *Progress) append(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Changed returns a channel that is closed on the next append.
func (p *Progress) Changed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}

// Events returns a copy of the log.
func (p *Progress) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Latest returns the most recent event.
func (p *Progress) Latest() (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	return p.events[len(p.events)-1], true
}

// Snapshot returns the log length and its newest event, read together so
// the event is always entry n-1. A zero n means the log is empty.
func (p *Progress) Snapshot() (n int, latest Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n = len(p.events)
	if n > 0 {
		latest = p.events[n-1]
	}
	return n, latest
}
