// Package httpapi wires the redemption engine, revocation path, and
// telemetry onto the two-listener HTTP surface of §6, grounded on the
// teacher's internal/api and internal/handlers handler-factory shape
// (func HandleX(dep) http.HandlerFunc) and its gorilla/mux routing.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ocx/backend/internal/apierr"
)

// writeJSON encodes v as the response body with a 200 status, matching the
// teacher's bare json.NewEncoder(w).Encode(v) convention.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeJSONStatus encodes v with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the stable {"error": "<human-readable>"} contract of §6.
type errorBody struct {
	Error string `json:"error"`
}

// writeError translates err's apierr.Kind to a status code and writes the
// stable error body. Anything not recognized as an *apierr.Error defaults
// to the most conservative 500, the same posture as apierr.KindOf.
func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	message := "internal error"

	var apiErr *apierr.Error
	hasMessage := errors.As(err, &apiErr)

	switch kind {
	case apierr.Input:
		status = http.StatusBadRequest
		if hasMessage {
			message = apiErr.Message
		}
	case apierr.NotFound:
		status = http.StatusNotFound
		if hasMessage {
			message = apiErr.Message
		}
	case apierr.Conflict:
		status = http.StatusConflict
		if hasMessage {
			message = apiErr.Message
		}
	case apierr.Storage, apierr.Upstream, apierr.Config:
		status = http.StatusInternalServerError
		message = "internal error"
	}

	writeJSONStatus(w, status, errorBody{Error: message})
}
