package api

import (
	"context"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/store"
	"github.com/ferro-labs/operator-portal/internal/tariff"
)

// clientRow is a subscriber as listed on the administrator pages.
type clientRow struct {
	*store.User
	TariffInfo tariff.Info `json:"tariffInfo"`
}

func withTariffInfo(users []*store.User) []clientRow {
	rows := make([]clientRow, len(users))
	for i, u := range users {
		rows[i] = clientRow{User: u, TariffInfo: tariff.Lookup(u.Tariff)}
	}
	return rows
}

func (h *Handlers) tariffs(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, func(context.Context) (any, error) {
		return tariff.Plans(), nil
	}, nil)
}

func (h *Handlers) clients(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	h.cached(w, r, func(ctx context.Context) (any, error) {
		users, err := h.Users.ListClients(ctx, store.ClientQuery{Search: search, Limit: store.MaxClients})
		h.record(err)
		if err != nil {
			return nil, err
		}
		return withTariffInfo(users), nil
	}, func(err error) {
		h.storeError(w, r, err, "failed to list clients")
	})
}

func (h *Handlers) debtors(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, func(ctx context.Context) (any, error) {
		users, err := h.Users.Debtors(ctx)
		h.record(err)
		if err != nil {
			return nil, err
		}
		return withTariffInfo(users), nil
	}, func(err error) {
		h.storeError(w, r, err, "failed to build debtors report")
	})
}

func (h *Handlers) debugUser(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	u, err := h.Users.FindByPhone(r.Context(), phone)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":            u,
		"tariffInfo":      tariff.Lookup(u.Tariff),
		"currentTariffId": u.Tariff,
	})
}
