package stream

import (
	"errors"
	"sync"
)

var (
	errClientStreams = errors.New("too many progress streams from this client")
	errTotalStreams  = errors.New("too many progress streams")
)

const defaultMaxTotal = 1000

// streamLimiter caps open progress streams per client address and overall.
type streamLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	perIP    int
	maxTotal int
}

func newStreamLimiter(perIP, maxTotal int) *streamLimiter {
	return &streamLimiter{open: make(map[string]int), perIP: perIP, maxTotal: maxTotal}
}

// acquire reserves a stream slot for ip, or reports which cap is full.
func (l *streamLimiter) acquire(ip string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.total >= l.maxTotal:
		return errTotalStreams
	case l.open[ip] >= l.perIP:
		return errClientStreams
	}
	l.open[ip]++
	l.total++
	return nil
}

// release frees a slot taken by acquire. Unknown addresses are ignored.
func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.open[ip]
	if !ok {
		return
	}
	l.total--
	if n <= 1 {
		delete(l.open, ip)
		return
	}
	l.open[ip] = n - 1
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}
