// Package ratelimit guards the engine-bound operations. Simulation runs and
// agent comparisons are expensive for the engine; a small token bucket keeps
// a misbehaving client from queueing dozens of them.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket: capacity tokens, refilled at rate per second.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

func NewLimiter(capacity int, perSecond float64) *Limiter {
	l := &Limiter{
		capacity: float64(capacity),
		rate:     perSecond,
		tokens:   float64(capacity),
		now:      time.Now,
	}
	l.last = l.now()
	return l
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
