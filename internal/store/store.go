// Package store persists portal subscribers, their payments and service
// subscriptions. MemoryStore backs tests and throwaway runs; SQLStore backs
// production with SQLite or Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferro-labs/operator-portal/internal/tariff"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Defaults applied by Create.
const (
	DefaultCreditLimit = 100
	DefaultStatus      = "active"
	MaxClients         = 100
	MaxPayments        = 50
)

// PaymentSucceeded is the status recorded for completed top-ups.
const PaymentSucceeded = "succeeded"

var (
	// ErrNotFound is returned when no user matches the given phone.
	ErrNotFound = errors.New("user not found")
	// ErrPhoneTaken is returned by Create when the phone is already registered.
	ErrPhoneTaken = errors.New("phone already registered")
)

// User is a subscriber account.
type User struct {
	ID           string    `json:"id"`
	FIO          string    `json:"fio"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Balance      float64   `json:"balance"`
	Tariff       string    `json:"tariff"`
	CreditLimit  float64   `json:"creditLimit"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Payment is a recorded balance top-up.
type Payment struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClientQuery filters ListClients.
type ClientQuery struct {
	// Search matches FIO or phone case-insensitively as a substring.
	Search string
	Limit  int
}

// Store defines the subscriber persistence operations used by the API.
type Store interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, u *User) error
	FindByPhone(ctx context.Context, phone string) (*User, error)
	UpdateFIO(ctx context.Context, phone, fio string) (*User, error)
	TopUp(ctx context.Context, phone string, amount float64, method string) (*User, error)
	ChangeTariff(ctx context.Context, phone, tariffID string) (*User, error)
	ListClients(ctx context.Context, q ClientQuery) ([]*User, error)
	Debtors(ctx context.Context) ([]*User, error)
	Payments(ctx context.Context, phone string, limit int) ([]Payment, error)
	SetService(ctx context.Context, phone, name string, active bool) error
	Services(ctx context.Context, phone string) (map[string]bool, error)
	BackfillTariffs(ctx context.Context, tariffID string) (int64, error)
	Close() error
}

// Open returns a SQL-backed store for driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*SQLStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// EnsureAdmin creates the administrator account unless a user with phone
// already exists. It reports whether a new account was created.
func EnsureAdmin(ctx context.Context, s Store, fio, phone, passwordHash string) (bool, error) {
	_, err := s.FindByPhone(ctx, phone)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}
	err = s.Create(ctx, &User{
		FIO:          fio,
		Phone:        phone,
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
		Tariff:       tariff.DefaultID,
	})
	if errors.Is(err, ErrPhoneTaken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

func applyDefaults(u *User, now time.Time) {
	if u.Role == "" {
		u.Role = RoleClient
	}
	if u.Tariff == "" {
		u.Tariff = tariff.DefaultID
	}
	if u.CreditLimit == 0 {
		u.CreditLimit = DefaultCreditLimit
	}
	if u.Status == "" {
		u.Status = DefaultStatus
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
}

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}
