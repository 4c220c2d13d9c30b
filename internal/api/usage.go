package api

import (
	"context"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/schema"
	"github.com/ferro-labs/operator-portal/internal/store"
	"github.com/ferro-labs/operator-portal/internal/tariff"
)

func (h *Handlers) calls(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, func(context.Context) (any, error) {
		return callHistory, nil
	}, nil)
}

func (h *Handlers) notifications(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, func(context.Context) (any, error) {
		return notificationFeed, nil
	}, nil)
}

func (h *Handlers) payments(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func(ctx context.Context) (any, error) {
		payments, err := h.Users.Payments(ctx, phone, store.MaxPayments)
		h.record(err)
		return payments, err
	}, func(err error) {
		h.storeError(w, r, err, "failed to load payment history")
	})
}

func (h *Handlers) services(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func(ctx context.Context) (any, error) {
		if _, err := h.Users.FindByPhone(ctx, phone); err != nil {
			h.record(err)
			return nil, err
		}
		overrides, err := h.Users.Services(ctx, phone)
		h.record(err)
		if err != nil {
			return nil, err
		}
		out := make([]service, len(serviceCatalog))
		for i, s := range serviceCatalog {
			if active, ok := overrides[s.Name]; ok {
				s.Active = active
			}
			out[i] = s
		}
		return out, nil
	}, func(err error) {
		h.storeError(w, r, err, "failed to load services")
	})
}

func (h *Handlers) usage(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func(ctx context.Context) (any, error) {
		u, err := h.Users.FindByPhone(ctx, phone)
		h.record(err)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"internet": internetQuota,
			"calls":    callsQuota,
			"sms":      smsQuota,
			"tariff":   tariff.Lookup(u.Tariff),
		}, nil
	}, func(err error) {
		h.storeError(w, r, err, "failed to load usage")
	})
}

func (h *Handlers) toggleService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone       string `json:"phone"`
		ServiceName string `json:"serviceName"`
		Activate    bool   `json:"activate"`
	}
	if !decodeBody(w, r, schema.ServiceToggle, &body) {
		return
	}
	if !knownService(body.ServiceName) {
		writeError(w, http.StatusNotFound, "unknown service: "+body.ServiceName, "", "unknown_service")
		return
	}

	err := h.Users.SetService(r.Context(), body.Phone, body.ServiceName, body.Activate)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to update service")
		return
	}
	h.invalidate(r, body.Phone)

	verb := "deactivated"
	if body.Activate {
		verb = "activated"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": `service "` + body.ServiceName + `" ` + verb,
	})
}
