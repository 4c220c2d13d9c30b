// Package metrics registers the Prometheus metrics exported by the portal.
// All metrics are registered on import; the server mounts promhttp on
// /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request counters and histograms.
var (
	// RequestsTotal counts completed requests labelled by chi route pattern,
	// method and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of HTTP requests handled by the portal.",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration observes request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route", "method"},
	)
)

// Response cache metrics.
var (
	// CacheLookups counts cache reads by result ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	// CacheInvalidated counts entries dropped by substring invalidation.
	CacheInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_cache_invalidated_entries_total",
			Help: "Response cache entries removed by invalidation.",
		},
	)

	// CacheEntries tracks stored entries, stale ones included.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_cache_entries",
			Help: "Number of entries currently held by the response cache.",
		},
	)
)

var (
	// DatabaseUp is 1 while the database breaker allows traffic, else 0.
	DatabaseUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_database_up",
			Help: "Whether the database is considered reachable (1) or not (0).",
		},
	)

	// RateLimitRejections counts requests rejected by per-IP throttling.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
		[]string{"route"},
	)
)

// Middleware records RequestsTotal and RequestDuration. Unmatched requests
// are labelled "unmatched" to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
