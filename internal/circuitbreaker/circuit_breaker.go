// Package circuitbreaker tracks database availability for the portal API.
// The breaker is fed by a background pinger (Watch) and by store calls made
// from request handlers; while it is open the API answers 503 without
// touching the database or the response cache.
//
// State transitions:
//
//	Closed → Open        when consecutive failures ≥ FailureThreshold
//	Open   → HalfOpen   after RetryAfter elapses
//	HalfOpen → Closed   when consecutive successes ≥ SuccessThreshold
//	HalfOpen → Open     on any failure
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the breaker's current state.
type State int

const (
	// StateClosed: the database is reachable and requests pass through.
	StateClosed State = iota
	// StateOpen: the database is considered down; requests are rejected.
	StateOpen
	// StateHalfOpen: requests are let through to test recovery.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrUnavailable is returned by Do when the breaker is open.
var ErrUnavailable = errors.New("database unavailable")

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds breaker thresholds. Zero values select the defaults:
// FailureThreshold=3, SuccessThreshold=1, RetryAfter=10s.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	RetryAfter       time.Duration
	// OnStateChange, when set, is called outside the lock after every
	// transition.
	OnStateChange func(from, to State)
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Breaker guards the database.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	retryAfter       time.Duration
	openUntil        time.Time
	onChange         func(from, to State)
	now              func() time.Time
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		retryAfter:       cfg.RetryAfter,
		onChange:         cfg.OnStateChange,
		now:              cfg.Now,
	}
}

// State returns the current state, moving Open→HalfOpen once RetryAfter has
// elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	var changes []transition
	state := b.resolveState(&changes)
	b.mu.Unlock()
	b.notify(changes)
	return state
}

// Allow reports whether a request may use the database.
func (b *Breaker) Allow() bool {
	return b.State() != StateOpen
}

// Record feeds the outcome of a database call into the breaker.
func (b *Breaker) Record(err error) {
	if err != nil {
		b.RecordFailure()
		return
	}
	b.RecordSuccess()
}

// Do runs fn when the breaker allows it and records the result.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrUnavailable
	}
	err := fn()
	b.Record(err)
	return err
}

// RecordSuccess notifies the breaker that a database call succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var changes []transition
	switch b.resolveState(&changes) {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.setState(StateClosed, &changes)
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
	b.mu.Unlock()
	b.notify(changes)
}

// RecordFailure notifies the breaker that a database call failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var changes []transition
	switch b.resolveState(&changes) {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.trip(&changes)
		}
	case StateHalfOpen:
		b.trip(&changes)
	}
	b.mu.Unlock()
	b.notify(changes)
}

// Watch pings p every interval until ctx is done, recording each result.
// The first ping happens immediately.
func (b *Breaker) Watch(ctx context.Context, p Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := p.Ping(pingCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		b.Record(err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type transition struct {
	from, to State
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State, changes *[]transition) {
	if b.state != to {
		*changes = append(*changes, transition{from: b.state, to: to})
	}
	b.state = to
}

// trip must be called with b.mu held.
func (b *Breaker) trip(changes *[]transition) {
	b.setState(StateOpen, changes)
	b.openUntil = b.now().Add(b.retryAfter)
	b.successCount = 0
}

// resolveState must be called with b.mu held.
func (b *Breaker) resolveState(changes *[]transition) State {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.setState(StateHalfOpen, changes)
		b.successCount = 0
	}
	return b.state
}

func (b *Breaker) notify(changes []transition) {
	if b.onChange == nil {
		return
	}
	for _, c := range changes {
		b.onChange(c.from, c.to)
	}
}
