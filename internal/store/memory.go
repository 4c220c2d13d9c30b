package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User // phone -> user
	payments map[string][]Payment
	services map[string]map[string]bool
	pingErr  error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		payments: make(map[string][]Payment),
		services: make(map[string]map[string]bool),
	}
}

// SetPingError makes subsequent Ping calls return err (nil restores health).
func (s *MemoryStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Ping reports the configured health error.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Create inserts u, assigning an ID and defaults.
func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Phone]; ok {
		return ErrPhoneTaken
	}
	applyDefaults(u, time.Now().UTC())
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	stored := *u
	s.users[u.Phone] = &stored
	return nil
}

// FindByPhone returns a copy of the user registered under phone.
func (s *MemoryStore) FindByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// UpdateFIO changes the user's full name.
func (s *MemoryStore) UpdateFIO(_ context.Context, phone, fio string) (*User, error) {
	return s.mutate(phone, func(u *User) { u.FIO = fio })
}

// TopUp adds amount to the balance and records a payment.
func (s *MemoryStore) TopUp(_ context.Context, phone string, amount float64, method string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phone]
	if !ok {
		return nil, ErrNotFound
	}
	u.Balance += amount
	s.payments[phone] = append(s.payments[phone], Payment{
		ID:        uuid.NewString(),
		Phone:     phone,
		Amount:    amount,
		Method:    method,
		Status:    PaymentSucceeded,
		CreatedAt: time.Now().UTC(),
	})
	out := *u
	return &out, nil
}

// ChangeTariff switches the user's plan.
func (s *MemoryStore) ChangeTariff(_ context.Context, phone, tariffID string) (*User, error) {
	return s.mutate(phone, func(u *User) { u.Tariff = tariffID })
}

// ListClients returns clients, newest first.
func (s *MemoryStore) ListClients(_ context.Context, q ClientQuery) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	out := make([]*User, 0)
	for _, u := range s.users {
		if u.Role != RoleClient {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.FIO), search) &&
			!strings.Contains(strings.ToLower(u.Phone), search) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Phone < out[j].Phone
	})
	if limit := clampLimit(q.Limit, MaxClients); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Debtors returns clients with a negative balance, most indebted first.
func (s *MemoryStore) Debtors(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, 0)
	for _, u := range s.users {
		if u.Role == RoleClient && u.Balance < 0 {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Balance < out[j].Balance
	})
	return out, nil
}

// Payments returns the phone's payments, newest first.
func (s *MemoryStore) Payments(_ context.Context, phone string, limit int) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.payments[phone]
	out := make([]Payment, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	if limit = clampLimit(limit, MaxPayments); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetService records whether the named service is active for phone.
func (s *MemoryStore) SetService(_ context.Context, phone, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[phone]; !ok {
		return ErrNotFound
	}
	m, ok := s.services[phone]
	if !ok {
		m = make(map[string]bool)
		s.services[phone] = m
	}
	m[name] = active
	return nil
}

// Services returns the per-user service overrides for phone.
func (s *MemoryStore) Services(_ context.Context, phone string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.services[phone]))
	for k, v := range s.services[phone] {
		out[k] = v
	}
	return out, nil
}

// BackfillTariffs assigns tariffID to every user without a tariff.
func (s *MemoryStore) BackfillTariffs(_ context.Context, tariffID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.users {
		if u.Tariff == "" {
			u.Tariff = tariffID
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) mutate(phone string, fn func(*User)) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phone]
	if !ok {
		return nil, ErrNotFound
	}
	fn(u)
	out := *u
	return &out, nil
}
