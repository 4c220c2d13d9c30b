package api

import (
	"math"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/internal/schema"
	"github.com/ferro-labs/operator-portal/internal/tariff"
)

// Key fragments of the administrator pages, invalidated when a mutation can
// change their content.
const (
	clientsFragment = "/api/clients"
	debtorsFragment = "/api/reports/debtors"
)

func (h *Handlers) userData(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	u, err := h.Users.FindByPhone(r.Context(), phone)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to load user data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fio":             u.FIO,
		"phone":           u.Phone,
		"balance":         u.Balance,
		"creditLimit":     u.CreditLimit,
		"status":          u.Status,
		"tariff":          tariff.Lookup(u.Tariff),
		"currentTariffId": u.Tariff,
	})
}

func (h *Handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FIO   string `json:"fio"`
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, schema.Settings, &body) {
		return
	}

	u, err := h.Users.UpdateFIO(r.Context(), body.Phone, body.FIO)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to save settings")
		return
	}
	h.invalidate(r, body.Phone, clientsFragment)

	p := newProfile(u)
	p.Role = ""
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "settings saved",
		"user":    p,
	})
}

func (h *Handlers) topUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone  string  `json:"phone"`
		Amount float64 `json:"amount"`
		Method string  `json:"method"`
	}
	if !decodeBody(w, r, schema.TopUp, &body) {
		return
	}
	if body.Method == "" {
		body.Method = "card"
	}

	u, err := h.Users.TopUp(r.Context(), body.Phone, body.Amount, body.Method)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to top up balance")
		return
	}
	h.invalidate(r, body.Phone, debtorsFragment, clientsFragment)

	logging.FromContext(r.Context()).Info("balance topped up",
		"phone", logging.MaskPhone(body.Phone),
		"amount", body.Amount,
		"method", body.Method,
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "balance topped up",
		"newBalance": u.Balance,
	})
}

func (h *Handlers) creditInfo(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	u, err := h.Users.FindByPhone(r.Context(), phone)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to load credit info")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"currentBalance":  u.Balance,
		"creditLimit":     u.CreditLimit,
		"availableCredit": math.Max(0, u.CreditLimit+u.Balance),
		"isInDebt":        u.Balance < 0,
		"tariff":          tariff.Lookup(u.Tariff),
	})
}

func (h *Handlers) changeTariff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone    string `json:"phone"`
		TariffID string `json:"tariffId"`
	}
	if !decodeBody(w, r, schema.TariffChange, &body) {
		return
	}
	if !tariff.Valid(body.TariffID) {
		writeError(w, http.StatusBadRequest, "unknown tariff: "+body.TariffID, "", "unknown_tariff")
		return
	}

	_, err := h.Users.ChangeTariff(r.Context(), body.Phone, body.TariffID)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to change tariff")
		return
	}
	h.invalidate(r, body.Phone, clientsFragment, debtorsFragment)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "tariff changed",
		"newTariff": body.TariffID,
	})
}
