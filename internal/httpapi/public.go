package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/redeem"
	"github.com/ocx/backend/internal/revoke"
	"github.com/ocx/backend/internal/storage"
)

type redeemRequest struct {
	PID string `json:"pid"`
}

type redeemResponse struct {
	Status       redeem.Status `json:"status"`
	ServiceToken string        `json:"service_token"`
	Balance      int64         `json:"balance"`
}

// HandleRedeem serves POST /api/v1/redeem on the public listener: parse,
// cache-gate, atomically claim, mint a deterministic token.
func HandleRedeem(engine *redeem.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req redeemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierr.Wrap(apierr.Input, "malformed request body", err))
			return
		}

		resp, err := engine.Redeem(r.Context(), req.PID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, redeemResponse{
			Status:       resp.Status,
			ServiceToken: resp.ServiceToken.String(),
			Balance:      resp.Balance,
		})
	}
}

type tokenStatusResponse struct {
	Status     string  `json:"status"`
	Amount     int64   `json:"amount"`
	IssuedAt   string  `json:"issued_at"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
	AbuseScore int16   `json:"abuse_score"`
}

// HandleTokenStatus serves GET /api/v1/token/{token} on the public
// listener: a read-only status lookup, never mutates state.
func HandleTokenStatus(tokens storage.TokenStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHex := mux.Vars(r)["token"]

		rec, err := revoke.Status(r.Context(), tokens, tokenHex)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, tokenStatusRecord(rec))
	}
}

func tokenStatusRecord(rec *domain.ServiceTokenRecord) tokenStatusResponse {
	status := "active"
	var revokedAt *string
	if rec.IsRevoked() {
		status = "revoked"
		ts := rec.RevokedAt.UTC().Format(rfc3339Milli)
		revokedAt = &ts
	}
	return tokenStatusResponse{
		Status:     status,
		Amount:     rec.Amount,
		IssuedAt:   rec.IssuedAt.UTC().Format(rfc3339Milli),
		RevokedAt:  revokedAt,
		AbuseScore: rec.AbuseScore,
	}
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
