package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused per-client limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter paces pointing commands per client address so one caller
// cannot flood the mount with datagrams.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	r       rate.Limit
	b       int
	now     func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 4
	}
	return &clientLimiter{
		clients: make(map[string]*clientEntry),
		r:       rate.Limit(perSecond),
		b:       burst,
		now:     time.Now,
	}
}

// allow reports whether ip may send a command now.
func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[ip]
	if !ok {
		l.sweep(now)
		e = &clientEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.clients[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than idleLimiterTTL. Called with mu held.
func (l *clientLimiter) sweep(now time.Time) {
	for ip, e := range l.clients {
		if now.Sub(e.lastSeen) > idleLimiterTTL {
			delete(l.clients, ip)
		}
	}
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
