package api

import (
	"errors"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/schema"
)

// decodeBody validates the request body against the named schema and decodes
// it into dst. On failure it writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	err := schema.Decode(r.Body, name, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, schema.ErrBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "", "body_too_large")
		return false
	}
	var verr *schema.Error
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error(), "", "invalid_body")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request body", "", "invalid_body")
	return false
}

// phoneParam returns the phone query parameter, answering 400 when it is
// missing.
func phoneParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone query parameter is required", "", "missing_phone")
		return "", false
	}
	return phone, true
}
