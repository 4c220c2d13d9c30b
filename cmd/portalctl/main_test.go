package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferro-labs/operator-portal/internal/password"
	"github.com/ferro-labs/operator-portal/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "portal.db")
	cfgPath := filepath.Join(dir, "portal.yaml")
	data := "database:\n  driver: sqlite\n  dsn: " + dbPath + "\nadmin:\n  seed: true\n  fio: Root\n  phone: \"+375250000000\"\n  password: pass123\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dbPath
}

func TestValidate(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := run(t, "validate", cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Config is valid") || !strings.Contains(out, "sqlite") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"cache":{"ttl":"forever"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "validate", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "portalctl ") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hash-password", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !password.Check(strings.TrimSpace(out), "s3cret") {
		t.Errorf("printed hash does not verify: %q", out)
	}
}

func TestSeedAdminBackfillAndClients(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := run(t, "seed-admin", "--config", cfgPath)
	if err != nil {
		t.Fatalf("seed-admin: %v\n%s", err, out)
	}
	if !strings.Contains(out, "created") {
		t.Errorf("unexpected seed output: %s", out)
	}
	out, _ = run(t, "seed-admin", "--config", cfgPath)
	if !strings.Contains(out, "already exists") {
		t.Errorf("expected second seed to be a no-op, got: %s", out)
	}

	users, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := users.Create(ctx, &store.User{FIO: "Ivan Petrov", Phone: "+375291112233", PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}
	_ = users.Close()

	out, err = run(t, "backfill-tariffs", "--config", cfgPath)
	if err != nil {
		t.Fatalf("backfill-tariffs: %v\n%s", err, out)
	}
	if !strings.Contains(out, "updated 0 user(s)") {
		t.Errorf("unexpected backfill output: %s", out)
	}

	out, err = run(t, "clients", "--config", cfgPath, "--search", "ivan")
	if err != nil {
		t.Fatalf("clients: %v\n%s", err, out)
	}
	if !strings.Contains(out, "+375291112233") || strings.Contains(out, "+375250000000") {
		t.Errorf("unexpected client listing: %s", out)
	}
}
