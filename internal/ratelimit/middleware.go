package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/metrics"
)

// Middleware rejects requests with 429 once the client IP has exhausted its
// bucket. route labels the rejection metric. A nil store disables limiting.
func Middleware(store *Store, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store.Allow(clientIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RateLimitRejections.WithLabelValues(route).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{
					"message": "too many requests, slow down",
					"type":    "rate_limit_error",
					"code":    "rate_limited",
				},
			})
		})
	}
}

// clientIP expects chi's RealIP middleware to have normalised RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
