package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the freshness window used when NewMemory is given a
// non-positive TTL.
const DefaultTTL = time.Minute

type memoryEntry struct {
	key      string
	payload  any
	storedAt time.Time
}

// Memory is a thread-safe in-memory response cache with TTL staleness.
// It has no capacity bound.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]*memoryEntry
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock replaces the time source used to stamp and age entries.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates a new in-memory cache whose entries stay fresh for ttl.
func NewMemory(ttl time.Duration, opts ...Option) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*memoryEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the freshness window shared by all entries.
func (m *Memory) TTL() time.Duration {
	return m.ttl
}

// Get returns the cached payload for key, or false if missing or stale.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(entry.storedAt) >= m.ttl {
		return nil, false
	}
	return entry.payload, true
}

// Put stores payload under key, replacing any previous entry.
func (m *Memory) Put(key string, payload any) {
	entry := &memoryEntry{
		key:     key,
		payload: payload,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry.storedAt = m.now()
	m.items[key] = entry
}

// InvalidateBySubstring removes every entry whose key contains fragment.
// Every key contains the empty fragment.
func (m *Memory) InvalidateBySubstring(fragment string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.items {
		if strings.Contains(key, fragment) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, stale ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Clear removes all entries from the cache.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*memoryEntry)
}
