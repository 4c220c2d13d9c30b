package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStoreImplementsStore(_ *testing.T) {
	var _ Store = (*MemoryStore)(nil)
}

func TestSQLStoreImplementsStore(_ *testing.T) {
	var _ Store = (*SQLStore)(nil)
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, newSQLiteTestStore(t))
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("PORTAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set PORTAL_TEST_POSTGRES_DSN to run Postgres store integration tests")
	}

	store, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	clean := func() {
		for _, table := range []string{"user_services", "payments", "users"} {
			_, _ = store.db.Exec("DELETE FROM " + table)
		}
	}
	t.Cleanup(func() {
		clean()
		_ = store.Close()
	})

	clean()
	runStoreContract(t, store)
}

func newSQLiteTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	alice := &User{FIO: "Alice Petrova", Phone: "+375291111111", PasswordHash: "hash-a", CreatedAt: base}
	if err := store.Create(ctx, alice); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if alice.ID == "" {
		t.Fatal("expected created user to have an id")
	}
	if alice.Role != RoleClient || alice.Tariff != "standard" || alice.CreditLimit != DefaultCreditLimit || alice.Status != DefaultStatus {
		t.Fatalf("expected defaults applied, got %+v", alice)
	}

	bob := &User{FIO: "Bob Ivanov", Phone: "+375292222222", PasswordHash: "hash-b", CreatedAt: base.Add(time.Minute)}
	if err := store.Create(ctx, bob); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	admin := &User{FIO: "Admin", Phone: "+375250000000", PasswordHash: "hash-admin", Role: RoleAdmin}
	if err := store.Create(ctx, admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	dup := &User{FIO: "Someone", Phone: alice.Phone, PasswordHash: "x"}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}

	got, err := store.FindByPhone(ctx, alice.Phone)
	if err != nil {
		t.Fatalf("find alice: %v", err)
	}
	if got.FIO != alice.FIO || got.PasswordHash != "hash-a" || got.ID != alice.ID {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := store.FindByPhone(ctx, "+000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	renamed, err := store.UpdateFIO(ctx, alice.Phone, "Alice Sidorova")
	if err != nil {
		t.Fatalf("update fio: %v", err)
	}
	if renamed.FIO != "Alice Sidorova" {
		t.Fatalf("expected renamed user, got %s", renamed.FIO)
	}
	if _, err := store.UpdateFIO(ctx, "+000", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}

	topped, err := store.TopUp(ctx, alice.Phone, 25.5, "card")
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if topped.Balance != 25.5 {
		t.Fatalf("expected balance 25.5, got %v", topped.Balance)
	}
	if _, err := store.TopUp(ctx, alice.Phone, 4.5, "erip"); err != nil {
		t.Fatalf("second top up: %v", err)
	}
	if _, err := store.TopUp(ctx, "+000", 1, "card"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on top up, got %v", err)
	}

	payments, err := store.Payments(ctx, alice.Phone, 0)
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].Method != "erip" || payments[0].Status != PaymentSucceeded {
		t.Fatalf("expected newest payment first, got %+v", payments[0])
	}
	if limited, _ := store.Payments(ctx, alice.Phone, 1); len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	changed, err := store.ChangeTariff(ctx, bob.Phone, "premium")
	if err != nil {
		t.Fatalf("change tariff: %v", err)
	}
	if changed.Tariff != "premium" {
		t.Fatalf("expected premium, got %s", changed.Tariff)
	}

	clients, err := store.ListClients(ctx, ClientQuery{})
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients (admin excluded), got %d", len(clients))
	}
	if clients[0].Phone != bob.Phone {
		t.Fatalf("expected newest client first, got %s", clients[0].Phone)
	}

	found, err := store.ListClients(ctx, ClientQuery{Search: "sidor"})
	if err != nil {
		t.Fatalf("search clients: %v", err)
	}
	if len(found) != 1 || found[0].Phone != alice.Phone {
		t.Fatalf("expected search to match alice, got %v", found)
	}
	byPhone, _ := store.ListClients(ctx, ClientQuery{Search: "2222"})
	if len(byPhone) != 1 || byPhone[0].Phone != bob.Phone {
		t.Fatalf("expected phone search to match bob, got %v", byPhone)
	}
	none, _ := store.ListClients(ctx, ClientQuery{Search: "%"})
	if len(none) != 0 {
		t.Fatalf("expected literal %% search to match nothing, got %d", len(none))
	}

	if _, err := store.TopUp(ctx, bob.Phone, -40, "adjustment"); err != nil {
		t.Fatalf("debit bob: %v", err)
	}
	debtors, err := store.Debtors(ctx)
	if err != nil {
		t.Fatalf("debtors: %v", err)
	}
	if len(debtors) != 1 || debtors[0].Phone != bob.Phone {
		t.Fatalf("expected bob as only debtor, got %v", debtors)
	}

	if err := store.SetService(ctx, alice.Phone, "Antivirus", true); err != nil {
		t.Fatalf("set service: %v", err)
	}
	if err := store.SetService(ctx, alice.Phone, "Antivirus", false); err != nil {
		t.Fatalf("reset service: %v", err)
	}
	if err := store.SetService(ctx, alice.Phone, "Mobile TV", true); err != nil {
		t.Fatalf("set second service: %v", err)
	}
	if err := store.SetService(ctx, "+000", "Antivirus", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on set service, got %v", err)
	}
	services, err := store.Services(ctx, alice.Phone)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if len(services) != 2 || services["Antivirus"] || !services["Mobile TV"] {
		t.Fatalf("unexpected services: %v", services)
	}
	if empty, _ := store.Services(ctx, bob.Phone); len(empty) != 0 {
		t.Fatalf("expected no overrides for bob, got %v", empty)
	}

	if _, err := store.BackfillTariffs(ctx, "standard"); err != nil {
		t.Fatalf("backfill: %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := EnsureAdmin(ctx, s, "Administrator", "+375256082909", "hash")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if !created {
		t.Fatal("expected admin to be created")
	}
	u, err := s.FindByPhone(ctx, "+375256082909")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	if u.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", u.Role)
	}

	created, err = EnsureAdmin(ctx, s, "Administrator", "+375256082909", "hash")
	if err != nil {
		t.Fatalf("second ensure admin: %v", err)
	}
	if created {
		t.Fatal("expected existing admin to be kept")
	}
}

func TestMemoryStoreBackfillTariffs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, &User{FIO: "A", Phone: "+375291111111", PasswordHash: "h"})
	_ = s.Create(ctx, &User{FIO: "B", Phone: "+375292222222", PasswordHash: "h"})
	s.users["+375291111111"].Tariff = ""

	n, err := s.BackfillTariffs(ctx, "standard")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 backfilled user, got %d", n)
	}
}

func TestSQLiteStoreBackfillTariffs(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteTestStore(t)
	_ = s.Create(ctx, &User{FIO: "A", Phone: "+375291111111", PasswordHash: "h"})
	_ = s.Create(ctx, &User{FIO: "B", Phone: "+375292222222", PasswordHash: "h"})
	if _, err := s.db.Exec(`UPDATE users SET tariff = NULL WHERE phone = ?`, "+375291111111"); err != nil {
		t.Fatalf("clear tariff: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE users SET tariff = '' WHERE phone = ?`, "+375292222222"); err != nil {
		t.Fatalf("blank tariff: %v", err)
	}

	n, err := s.BackfillTariffs(ctx, "standard")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 backfilled users, got %d", n)
	}
	u, _ := s.FindByPhone(ctx, "+375291111111")
	if u.Tariff != "standard" {
		t.Fatalf("expected standard tariff, got %q", u.Tariff)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "portal.db")

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Create(ctx, &User{FIO: "A", Phone: "+375291111111", PasswordHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = first.Close()

	second, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if _, err := second.FindByPhone(ctx, "+375291111111"); err != nil {
		t.Fatalf("expected user to persist: %v", err)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	if _, err := NewPostgresStore("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestBindPostgresPlaceholders(t *testing.T) {
	s := &SQLStore{dialect: dialectPostgres}
	got := s.bind(`UPDATE users SET fio = ? WHERE phone = ?`)
	want := `UPDATE users SET fio = $1 WHERE phone = $2`
	if got != want {
		t.Fatalf("bind = %q, want %q", got, want)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("escapeLike = %q", got)
	}
}
