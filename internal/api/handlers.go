// Package api provides the HTTP handlers of the operator portal: subscriber
// login and registration, account management, usage pages and the
// administrator reports. Read-only pages are served through the response
// cache; every mutation invalidates the cached responses of the affected
// subscriber.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/ferro-labs/operator-portal/internal/cache"
	"github.com/ferro-labs/operator-portal/internal/circuitbreaker"
	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/internal/ratelimit"
	"github.com/ferro-labs/operator-portal/internal/store"
)

// Handlers holds dependencies for the portal API handlers.
type Handlers struct {
	Users store.Store
	Cache cache.Cache
	// Breaker gates every route on database availability. Nil disables the
	// check.
	Breaker *circuitbreaker.Breaker
	// Limiter throttles login and registration per client IP. Nil disables
	// throttling.
	Limiter *ratelimit.Store
	// Debug mounts /debug/user.
	Debug bool

	flights singleflight.Group
}

// Routes returns a chi.Router with all API endpoints mounted. It is meant to
// be mounted under /api.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireDatabase)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", "", "route_not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", "method_not_allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(h.Limiter, "auth"))
		r.Post("/login", h.login)
		r.Post("/register", h.register)
	})

	r.Get("/user/data", h.userData)
	r.Put("/user/settings", h.updateSettings)
	r.Get("/user/credit-info", h.creditInfo)
	r.Post("/payment/topup", h.topUp)
	r.Post("/user/tariff/change", h.changeTariff)
	r.Post("/user/services/toggle", h.toggleService)

	r.Get("/user/calls", h.calls)
	r.Get("/user/payments", h.payments)
	r.Get("/user/services", h.services)
	r.Get("/user/usage", h.usage)
	r.Get("/user/notifications", h.notifications)
	r.Get("/tariffs", h.tariffs)

	r.Get("/clients", h.clients)
	r.Get("/reports/debtors", h.debtors)

	if h.Debug {
		r.Get("/debug/user", h.debugUser)
	}

	return r
}

// requireDatabase rejects requests with 503 while the breaker is open. It
// runs before any handler so the cache is never consulted either.
func (h *Handlers) requireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Breaker != nil && !h.Breaker.Allow() {
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusServiceUnavailable, "database unavailable, try again later", "", "database_unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// record feeds a store result into the breaker. Lookup misses and conflicts
// prove the database answered. A cancelled or timed-out request context says
// nothing about the database and is not recorded.
func (h *Handlers) record(err error) {
	if h.Breaker == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrPhoneTaken) {
		err = nil
	}
	h.Breaker.Record(err)
}

// storeError answers a failed store call: 404 for unknown subscribers,
// otherwise 500 with message. The underlying error is logged, not returned.
func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found", "", "user_not_found")
		return
	}
	logging.FromContext(r.Context()).Error("store call failed",
		"route", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, message, "", "internal_error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	if errType == "" {
		errType = defaultErrType(status)
	}
	if code == "" {
		code = errType
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}

func defaultErrType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusConflict:
		return "conflict_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status == http.StatusServiceUnavailable:
		return "unavailable_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}
