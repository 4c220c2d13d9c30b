package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/internal/metrics"
)

// Cache header values.
const (
	cacheHeader = "X-Cache"
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
)

// cached serves a read-only response through the response cache. The key is
// the full request target. On a miss compute runs once per key even under
// concurrent requests; its payload is stored only when it succeeds, so
// errors are never cached. compute gets a context detached from the
// request's cancellation because its result is shared with every waiter.
// onError writes the failure response; nil selects a plain 500.
func (h *Handlers) cached(w http.ResponseWriter, r *http.Request, compute func(ctx context.Context) (any, error), onError func(error)) {
	key := r.URL.RequestURI()
	if payload, ok := h.Cache.Get(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		w.Header().Set(cacheHeader, cacheHit)
		writeJSON(w, http.StatusOK, payload)
		return
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	ctx := context.WithoutCancel(r.Context())
	payload, err, _ := h.flights.Do(key, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		h.Cache.Put(key, v)
		metrics.CacheEntries.Set(float64(h.Cache.Len()))
		return v, nil
	})
	if err != nil {
		if onError == nil {
			writeError(w, http.StatusInternalServerError, "failed to build response", "", "internal_error")
			return
		}
		onError(err)
		return
	}
	w.Header().Set(cacheHeader, cacheMiss)
	writeJSON(w, http.StatusOK, payload)
}

// invalidate drops every cached response whose key mentions phone, in raw or
// query-escaped form, plus any extra key fragments. An empty phone would
// match every key and is skipped.
func (h *Handlers) invalidate(r *http.Request, phone string, extra ...string) {
	var fragments []string
	if phone != "" {
		fragments = append(fragments, phone)
		if escaped := url.QueryEscape(phone); escaped != phone {
			fragments = append(fragments, escaped)
		}
	}
	fragments = append(fragments, extra...)

	removed := 0
	for _, f := range fragments {
		removed += h.Cache.InvalidateBySubstring(f)
	}
	metrics.CacheInvalidated.Add(float64(removed))
	metrics.CacheEntries.Set(float64(h.Cache.Len()))
	if removed > 0 {
		logging.FromContext(r.Context()).Debug("cache invalidated",
			"phone", logging.MaskPhone(phone),
			"entries", removed,
		)
	}
}
