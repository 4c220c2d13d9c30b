package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

const userColumns = `id, fio, phone, password, role, balance, tariff, credit_limit, status, created_at`

// SQLStore persists subscribers in SQL backends (SQLite or Postgres).
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore creates a SQLite-backed store.
// dsn can be a file path (e.g. /tmp/portal.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "portal.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	store := &SQLStore{db: db, dialect: dialectSQLite}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectPostgres}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	fio TEXT NOT NULL,
	phone TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	balance DOUBLE PRECISION NOT NULL DEFAULT 0,
	tariff TEXT NULL,
	credit_limit DOUBLE PRECISION NOT NULL DEFAULT 100,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_role_balance ON users(role, balance);
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	method TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_phone ON payments(phone, created_at);
CREATE TABLE IF NOT EXISTS user_services (
	phone TEXT NOT NULL,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (phone, name)
);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	fio TEXT NOT NULL,
	phone TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	balance REAL NOT NULL DEFAULT 0,
	tariff TEXT NULL,
	credit_limit REAL NOT NULL DEFAULT 100,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_role_balance ON users(role, balance);
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	amount REAL NOT NULL,
	method TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_phone ON payments(phone, created_at);
CREATE TABLE IF NOT EXISTS user_services (
	phone TEXT NOT NULL,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (phone, name)
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}
	return nil
}

// Create inserts a new user, assigning an ID and defaults.
func (s *SQLStore) Create(ctx context.Context, u *User) error {
	applyDefaults(u, time.Now().UTC())
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	q := s.bind(`INSERT INTO users(` + userColumns + `) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.FIO, u.Phone, u.PasswordHash, u.Role, u.Balance, u.Tariff, u.CreditLimit, u.Status, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrPhoneTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByPhone returns the user registered under phone.
func (s *SQLStore) FindByPhone(ctx context.Context, phone string) (*User, error) {
	q := s.bind(`SELECT ` + userColumns + ` FROM users WHERE phone = ?`)
	u, err := scanUser(s.db.QueryRowContext(ctx, q, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// UpdateFIO changes the user's full name.
func (s *SQLStore) UpdateFIO(ctx context.Context, phone, fio string) (*User, error) {
	return s.updateAndFetch(ctx, `UPDATE users SET fio = ? WHERE phone = ?`, fio, phone)
}

// ChangeTariff switches the user's plan.
func (s *SQLStore) ChangeTariff(ctx context.Context, phone, tariffID string) (*User, error) {
	return s.updateAndFetch(ctx, `UPDATE users SET tariff = ? WHERE phone = ?`, tariffID, phone)
}

// TopUp atomically adds amount to the balance and records a payment.
func (s *SQLStore) TopUp(ctx context.Context, phone string, amount float64, method string) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin top-up: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, s.bind(`UPDATE users SET balance = balance + ? WHERE phone = ?`), amount, phone)
	if err != nil {
		return nil, fmt.Errorf("top up balance: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		s.bind(`INSERT INTO payments(id, phone, amount, method, status, created_at) VALUES(?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), phone, amount, method, PaymentSucceeded, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	u, err := scanUser(tx.QueryRowContext(ctx, s.bind(`SELECT `+userColumns+` FROM users WHERE phone = ?`), phone))
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit top-up: %w", err)
	}
	return u, nil
}

// ListClients returns clients matching q, newest first.
func (s *SQLStore) ListClients(ctx context.Context, q ClientQuery) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ?`
	args := []interface{}{RoleClient}
	if q.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		query += ` AND (LOWER(fio) LIKE ? ESCAPE '\' OR LOWER(phone) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC, phone ASC LIMIT ?`
	args = append(args, clampLimit(q.Limit, MaxClients))

	return s.queryUsers(ctx, s.bind(query), args...)
}

// Debtors returns clients with a negative balance, most indebted first.
func (s *SQLStore) Debtors(ctx context.Context) ([]*User, error) {
	q := s.bind(`SELECT ` + userColumns + ` FROM users WHERE role = ? AND balance < 0 ORDER BY balance ASC`)
	return s.queryUsers(ctx, q, RoleClient)
}

// Payments returns the phone's payments, newest first.
func (s *SQLStore) Payments(ctx context.Context, phone string, limit int) ([]Payment, error) {
	q := s.bind(`
SELECT id, phone, amount, method, status, created_at
FROM payments
WHERE phone = ?
ORDER BY created_at DESC
LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, q, phone, clampLimit(limit, MaxPayments))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]Payment, 0)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Phone, &p.Amount, &p.Method, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// SetService records whether the named service is active for phone.
func (s *SQLStore) SetService(ctx context.Context, phone, name string, active bool) error {
	if _, err := s.FindByPhone(ctx, phone); err != nil {
		return err
	}
	q := s.bind(`
INSERT INTO user_services(phone, name, active, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(phone, name) DO UPDATE SET active = excluded.active, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, phone, name, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set service: %w", err)
	}
	return nil
}

// Services returns the per-user service overrides for phone.
func (s *SQLStore) Services(ctx context.Context, phone string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT name, active FROM user_services WHERE phone = ?`), phone)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			name   string
			active bool
		)
		if err := rows.Scan(&name, &active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out[name] = active
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

// BackfillTariffs assigns tariffID to every user without a tariff.
func (s *SQLStore) BackfillTariffs(ctx context.Context, tariffID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`UPDATE users SET tariff = ? WHERE tariff IS NULL OR tariff = ''`), tariffID)
	if err != nil {
		return 0, fmt.Errorf("backfill tariffs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) updateAndFetch(ctx context.Context, stmt string, args ...interface{}) (*User, error) {
	res, err := s.db.ExecContext(ctx, s.bind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	phone, _ := args[len(args)-1].(string)
	return s.FindByPhone(ctx, phone)
}

func (s *SQLStore) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*User, error) {
	var (
		u      User
		tariff sql.NullString
	)
	err := scanner.Scan(
		&u.ID,
		&u.FIO,
		&u.Phone,
		&u.PasswordHash,
		&u.Role,
		&u.Balance,
		&tariff,
		&u.CreditLimit,
		&u.Status,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Tariff = tariff.String
	return &u, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
