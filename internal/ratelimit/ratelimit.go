// Package ratelimit provides per-client fixed-window rate limiting and
// short-horizon request deduplication for the analysis endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// ResetSeconds returns the window reset delay rounded up to whole
// seconds, suitable for Retry-After headers.
func (d Decision) ResetSeconds() int {
	secs := int((d.ResetIn + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

type window struct {
	start time.Time
	count int
}

// Limiter enforces a fixed-window request limit per client. Counts reset
// when the window elapses; there is no sliding credit across windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewLimiter creates a Limiter allowing max requests per client within
// each window.
func NewLimiter(max int, windowDur time.Duration) *Limiter {
	return &Limiter{
		clients: make(map[string]*window),
		max:     max,
		window:  windowDur,
		now:     time.Now,
	}
}

// Check records a request attempt for clientID and returns whether it is
// allowed. The attempt is counted only when allowed; rejected requests do
// not extend or inflate the window.
func (l *Limiter) Check(clientID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.clients[clientID] = w
	}

	resetIn := l.window - now.Sub(w.start)
	if w.count >= l.max {
		return Decision{Allowed: false, Remaining: 0, ResetIn: resetIn}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: l.max - w.count,
		ResetIn:   resetIn,
	}
}

// Prune drops client entries whose window ended more than the window
// duration ago. Called periodically to bound memory on churny client
// populations.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.clients {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}
