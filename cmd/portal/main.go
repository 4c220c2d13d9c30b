package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	portal "github.com/ferro-labs/operator-portal"
	"github.com/ferro-labs/operator-portal/internal/api"
	"github.com/ferro-labs/operator-portal/internal/cache"
	"github.com/ferro-labs/operator-portal/internal/circuitbreaker"
	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/internal/metrics"
	"github.com/ferro-labs/operator-portal/internal/password"
	"github.com/ferro-labs/operator-portal/internal/ratelimit"
	"github.com/ferro-labs/operator-portal/internal/store"
	"github.com/ferro-labs/operator-portal/internal/tariff"
	"github.com/ferro-labs/operator-portal/internal/version"
)

const limiterPruneInterval = time.Minute

func main() {
	log := logging.Logger

	cfg, err := loadConfig(os.Getenv("PORTAL_CONFIG"), os.Getenv)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	users, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = users.Close() }()

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breaker, err := newBreaker(cfg)
	if err != nil {
		log.Error("invalid database settings", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	pingEvery, _ := cfg.Database.PingEvery()
	go breaker.Watch(ctx, users, pingEvery)

	var limiter *ratelimit.Store
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimit.NewStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go pruneLimiter(ctx, limiter)
	}

	ttl, _ := cfg.CacheTTL()
	responses := cache.NewMemory(ttl)
	go func() {
		_ = bootstrapWhenReady(ctx, breaker, pingEvery, cfg, users, responses)
	}()

	handlers := &api.Handlers{
		Users:   users,
		Cache:   responses,
		Breaker: breaker,
		Limiter: limiter,
		Debug:   cfg.Server.Debug,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(handlers, cfg.Server.CORSOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	log.Info("portal listening",
		"version", version.Short(),
		"addr", cfg.Server.Addr,
		"driver", cfg.Database.Driver,
		"cache_ttl", ttl.String(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("server stopped")
}

// loadConfig builds the runtime configuration: defaults, then the optional
// config file at path, then environment overrides.
func loadConfig(path string, getenv func(string) string) (portal.Config, error) {
	cfg := portal.DefaultConfig()
	if path != "" {
		loaded, err := portal.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	portal.ApplyEnv(&cfg, getenv)
	if err := portal.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// bootstrapWhenReady runs bootstrap through the breaker, retrying every
// interval until it succeeds or ctx is done. The server keeps answering 503
// in the meantime.
func bootstrapWhenReady(ctx context.Context, breaker *circuitbreaker.Breaker, interval time.Duration, cfg portal.Config, users store.Store, responses cache.Cache) error {
	for {
		err := breaker.Do(func() error {
			return bootstrap(ctx, cfg, users, responses)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, circuitbreaker.ErrUnavailable) {
			logging.Logger.Info("database unavailable, bootstrap postponed", "retry_in", interval.String())
		} else {
			logging.Logger.Error("bootstrap failed", "error", err, "retry_in", interval.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// bootstrap seeds the administrator account and assigns the default tariff
// to users created before tariffs existed. Cached responses are dropped when
// tariffs change since they embed tariff info.
func bootstrap(ctx context.Context, cfg portal.Config, users store.Store, responses cache.Cache) error {
	log := logging.Logger
	if cfg.Admin.Seed {
		hash, err := password.Hash(cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		created, err := store.EnsureAdmin(ctx, users, cfg.Admin.FIO, cfg.Admin.Phone, hash)
		if err != nil {
			return err
		}
		if created {
			log.Info("administrator created", "phone", logging.MaskPhone(cfg.Admin.Phone))
		}
	}

	n, err := users.BackfillTariffs(ctx, tariff.DefaultID)
	if err != nil {
		return fmt.Errorf("backfill tariffs: %w", err)
	}
	if n > 0 {
		responses.Clear()
		metrics.CacheEntries.Set(0)
		log.Info("tariffs backfilled", "users", n, "tariff", tariff.DefaultID)
	}
	return nil
}

func newBreaker(cfg portal.Config) (*circuitbreaker.Breaker, error) {
	retryAfter, err := cfg.Database.RetryAfterDuration()
	if err != nil {
		return nil, err
	}
	metrics.DatabaseUp.Set(1)
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Database.FailureThreshold,
		RetryAfter:       retryAfter,
		OnStateChange: func(from, to circuitbreaker.State) {
			up := 1.0
			if to == circuitbreaker.StateOpen {
				up = 0
				logging.Logger.Warn("database unavailable", "from", from.String(), "to", to.String())
			} else {
				logging.Logger.Info("database state changed", "from", from.String(), "to", to.String())
			}
			metrics.DatabaseUp.Set(up)
		},
	}), nil
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Store) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

// newRouter builds the HTTP router.
func newRouter(handlers *api.Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(logging.AccessLog)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", pageHandler("login.html"))
	r.Get("/client", pageHandler("client.html"))
	r.Get("/admin", pageHandler("admin.html"))

	r.Mount("/api", handlers.Routes())

	return r
}
