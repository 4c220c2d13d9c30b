package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api/things/{id}", http.MethodGet, "418"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))

	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api/things/{id}", http.MethodGet, "418"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestMiddlewareDefaultsStatusOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/quiet", func(_ http.ResponseWriter, _ *http.Request) {})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/quiet", http.MethodGet, "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/quiet", http.MethodGet, "200"))
	if after-before != 1 {
		t.Fatalf("expected 200 to be recorded, got delta %v", after-before)
	}
}
