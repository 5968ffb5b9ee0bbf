package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/revoke"
)

type revokeRequest struct {
	Reason     *string `json:"reason,omitempty"`
	AbuseScore *int16  `json:"abuse_score,omitempty"`
}

// HandleRevoke serves POST /api/v1/token/{token}/revoke on the internal
// listener: first call transitions active -> revoked; subsequent calls
// are idempotent no-ops returning the prevailing state (§4.5).
func HandleRevoke(path *revoke.Path) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHex := mux.Vars(r)["token"]

		var body revokeRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, apierr.Wrap(apierr.Input, "malformed request body", err))
				return
			}
		}

		rec, err := path.Revoke(r.Context(), revoke.Request{
			Token:      tokenHex,
			Reason:     body.Reason,
			AbuseScore: body.AbuseScore,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, tokenStatusRecord(rec))
	}
}
