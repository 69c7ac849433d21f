// Package server throttles inbound events per connection with a token
// bucket so one chatty client cannot crowd out the rest of a room.
package server

import (
	"sync"
	"time"
)

// eventLimiter is a per-connection token bucket. A connection may burst up
// to its configured budget of events at once; the budget refills evenly
// across the refill interval. Events arriving with the budget exhausted are
// discarded by the read pump, never queued.
type eventLimiter struct {
	mu       sync.Mutex
	budget   float64
	burst    float64
	perSec   float64
	lastSeen time.Time
}

// newEventLimiter builds a limiter admitting up to burst events at once,
// refilled over the given interval. Non-positive inputs fall back to one
// event per second rather than disabling the limiter.
func newEventLimiter(burst int, refill time.Duration) *eventLimiter {
	if burst <= 0 {
		burst = 1
	}
	if refill <= 0 {
		refill = time.Second
	}

	perSec := float64(burst) / refill.Seconds()
	if perSec <= 0 {
		perSec = float64(burst)
	}

	return &eventLimiter{
		budget:   float64(burst),
		burst:    float64(burst),
		perSec:   perSec,
		lastSeen: time.Now(),
	}
}

// allowEvent spends one event from the budget, reporting false when the
// connection has burst through it and must wait for refill.
func (l *eventLimiter) allowEvent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastSeen).Seconds()
	l.lastSeen = now

	if elapsed > 0 {
		l.budget += elapsed * l.perSec
		if l.budget > l.burst {
			l.budget = l.burst
		}
	}

	if l.budget < 1 {
		return false
	}
	l.budget--
	return true
}
