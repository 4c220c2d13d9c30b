// Package ratelimit provides an in-memory token-bucket rate limiter and an
// HTTP middleware that throttles credential endpoints per client IP.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a single token-bucket rate limiter.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens added per second
	burst      float64 // maximum token capacity
	tokens     float64 // current token count
	lastRefill time.Time
	now        func() time.Time
}

// New creates a Limiter allowing ratePerSecond requests/s with a burst capacity.
// If burst <= 0, it defaults to ratePerSecond (no extra burst).
func New(ratePerSecond, burst float64) *Limiter {
	return newLimiter(ratePerSecond, burst, time.Now)
}

func newLimiter(ratePerSecond, burst float64, now func() time.Time) *Limiter {
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &Limiter{
		rate:       ratePerSecond,
		burst:      burst,
		tokens:     burst,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes one token and returns true if the request is permitted.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens--
		return true
	}
	return false
}

// full reports whether the bucket has refilled completely.
func (l *Limiter) full() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	elapsed := l.now().Sub(l.lastRefill).Seconds()
	return l.tokens+elapsed*l.rate >= l.burst
}

// Store maintains per-key Limiter instances.
type Store struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	rate     float64
	burst    float64
	now      func() time.Time
}

// NewStore creates a Store whose per-key limiters share the same rate/burst.
func NewStore(ratePerSecond, burst float64) *Store {
	return &Store{
		limiters: make(map[string]*Limiter),
		rate:     ratePerSecond,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow checks (and creates if needed) the limiter for key.
func (s *Store) Allow(key string) bool {
	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l.Allow()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.limiters[key]; ok {
		return l.Allow()
	}
	l = newLimiter(s.rate, s.burst, s.now)
	s.limiters[key] = l
	return l.Allow()
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// Prune drops limiters whose bucket has fully refilled; such keys behave
// exactly like unseen ones. It returns the number removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, l := range s.limiters {
		if l.full() {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}
