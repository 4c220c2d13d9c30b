package api

import (
	"errors"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/internal/password"
	"github.com/ferro-labs/operator-portal/internal/schema"
	"github.com/ferro-labs/operator-portal/internal/store"
	"github.com/ferro-labs/operator-portal/internal/tariff"
)

// profile is the user view returned by login, registration and settings.
type profile struct {
	FIO         string      `json:"fio"`
	Phone       string      `json:"phone"`
	Role        string      `json:"role,omitempty"`
	Balance     float64     `json:"balance"`
	CreditLimit float64     `json:"creditLimit"`
	Status      string      `json:"status"`
	Tariff      tariff.Info `json:"tariff"`
}

func newProfile(u *store.User) profile {
	return profile{
		FIO:         u.FIO,
		Phone:       u.Phone,
		Role:        u.Role,
		Balance:     u.Balance,
		CreditLimit: u.CreditLimit,
		Status:      u.Status,
		Tariff:      tariff.Lookup(u.Tariff),
	}
}

func redirectFor(role string) string {
	if role == store.RoleAdmin {
		return "/admin"
	}
	return "/client"
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, schema.Login, &body) {
		return
	}

	u, err := h.Users.FindByPhone(r.Context(), body.Phone)
	h.record(err)
	if err != nil {
		h.storeError(w, r, err, "failed to log in")
		return
	}
	if !password.Check(u.PasswordHash, body.Password) {
		logging.FromContext(r.Context()).Info("login rejected", "phone", logging.MaskPhone(body.Phone))
		writeError(w, http.StatusUnauthorized, "invalid password", "", "invalid_password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"redirect": redirectFor(u.Role),
		"user":     newProfile(u),
	})
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FIO      string `json:"fio"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, schema.Register, &body) {
		return
	}

	hash, err := password.Hash(body.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", "invalid_password")
		return
	}

	u := &store.User{
		FIO:          body.FIO,
		Phone:        body.Phone,
		PasswordHash: hash,
		Role:         store.RoleClient,
		Tariff:       tariff.DefaultID,
	}
	err = h.Users.Create(r.Context(), u)
	h.record(err)
	if errors.Is(err, store.ErrPhoneTaken) {
		writeError(w, http.StatusConflict, "a user with this phone already exists", "", "phone_taken")
		return
	}
	if err != nil {
		h.storeError(w, r, err, "failed to register")
		return
	}
	h.invalidate(r, u.Phone, clientsFragment)

	logging.FromContext(r.Context()).Info("user registered", "phone", logging.MaskPhone(u.Phone))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":  true,
		"message":  "registration successful",
		"redirect": "/client",
		"user":     newProfile(u),
	})
}
