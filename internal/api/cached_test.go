package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferro-labs/operator-portal/internal/circuitbreaker"
	"github.com/ferro-labs/operator-portal/internal/store"
)

// blockingStore holds Payments calls until release is closed.
type blockingStore struct {
	*store.MemoryStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (s *blockingStore) Payments(ctx context.Context, phone string, limit int) ([]store.Payment, error) {
	s.calls.Add(1)
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Payments(ctx, phone, limit)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// startWaiters issues n concurrent requests for target and returns their
// recorders once all of them have completed.
func startWaiters(env *testEnv, n int, target string) func() []*httptest.ResponseRecorder {
	var wg sync.WaitGroup
	results := make([]*httptest.ResponseRecorder, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.serve(httptest.NewRequest(http.MethodGet, target, nil))
		}(i)
	}
	return func() []*httptest.ResponseRecorder {
		wg.Wait()
		return results
	}
}

func seedPayment(t *testing.T, users *blockingStore) {
	t.Helper()
	ctx := context.Background()
	if err := users.Create(ctx, &store.User{FIO: "Ivan Petrov", Phone: clientPhone, PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := users.TopUp(ctx, clientPhone, 10, "card"); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentMissesShareOneCompute(t *testing.T) {
	users := newBlockingStore()
	seedPayment(t, users)
	env := setupTestRouter(t, func(h *Handlers) { h.Users = users })
	target := phoneQuery("/api/user/payments", clientPhone)

	leader := startWaiters(env, 1, target)
	<-users.entered
	waiters := startWaiters(env, 8, target)
	time.Sleep(50 * time.Millisecond)
	close(users.release)

	results := append(leader(), waiters()...)
	if got := users.calls.Load(); got != 1 {
		t.Errorf("expected one store call, got %d", got)
	}
	want := results[0].Body.String()
	for i, w := range results {
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		if w.Body.String() != want {
			t.Errorf("request %d: body %s, want %s", i, w.Body.String(), want)
		}
	}
	if w := env.do(http.MethodGet, target, ""); w.Header().Get("X-Cache") != "HIT" {
		t.Errorf("expected shared result to be cached")
	}
}

func TestCancelledLeaderDoesNotFailWaiters(t *testing.T) {
	users := newBlockingStore()
	seedPayment(t, users)
	env := setupTestRouter(t, func(h *Handlers) { h.Users = users })
	target := phoneQuery("/api/user/payments", clientPhone)

	ctx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		leaderDone <- env.serve(httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx))
	}()
	<-users.entered
	waiters := startWaiters(env, 4, target)
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(users.release)

	<-leaderDone
	for i, w := range waiters() {
		if w.Code != http.StatusOK {
			t.Errorf("waiter %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}
	if got := users.calls.Load(); got != 1 {
		t.Errorf("expected one store call, got %d", got)
	}
}

func TestCancelledRequestsDoNotTripBreaker(t *testing.T) {
	users, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = users.Close() })
	if err := users.Create(context.Background(), &store.User{FIO: "Ivan Petrov", Phone: clientPhone, PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{})
	env := setupTestRouter(t, func(h *Handlers) {
		h.Users = users
		h.Breaker = breaker
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, phoneQuery("/api/user/data", clientPhone), nil).WithContext(ctx)
		if w := env.serve(req); w.Code != http.StatusInternalServerError {
			t.Fatalf("request %d: expected 500 for a cancelled lookup, got %d", i, w.Code)
		}
	}
	if breaker.State() != circuitbreaker.StateClosed {
		t.Fatalf("breaker = %s, want closed", breaker.State())
	}

	req := httptest.NewRequest(http.MethodGet, phoneQuery("/api/user/usage", clientPhone), nil).WithContext(ctx)
	if w := env.serve(req); w.Code != http.StatusOK {
		t.Errorf("expected cached route to compute despite cancellation, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodGet, phoneQuery("/api/user/data", clientPhone), ""); w.Code != http.StatusOK {
		t.Errorf("expected healthy request to succeed, got %d: %s", w.Code, w.Body.String())
	}
}
