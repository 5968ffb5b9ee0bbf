// Package redeem implements the redemption engine of §4.3: parse the PID,
// consult the absence cache to absorb probing load, atomically claim the
// payment, and mint a deterministic token idempotently.
package redeem

import (
	"context"
	"errors"
	"time"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storage"
	"github.com/ocx/backend/internal/telemetry"
)

// Status is the outcome tag of a redemption response.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusAlreadyClaimed Status = "already_claimed"
)

// Response is the redemption result returned to the HTTP layer on success
// or duplicate redemption.
type Response struct {
	Status       Status
	ServiceToken domain.ServiceToken
	Balance      int64
}

// AbsenceCache is the subset of cache.Absence the engine needs.
type AbsenceCache interface {
	BloomMightContain(pid domain.PaymentId) bool
	MarkPresent(pid domain.PaymentId)
}

// Engine is the redemption engine, closed over its dependencies the way the
// teacher's handler factories close over *database.SupabaseClient.
type Engine struct {
	payments storage.PaymentStore
	tokens   storage.TokenStore
	cache    AbsenceCache
	metrics  *telemetry.Metrics
}

// New constructs an Engine.
func New(payments storage.PaymentStore, tokens storage.TokenStore, cache AbsenceCache, metrics *telemetry.Metrics) *Engine {
	return &Engine{payments: payments, tokens: tokens, cache: cache, metrics: metrics}
}

// Redeem runs the full §4.3 algorithm for pidHex.
func (e *Engine) Redeem(ctx context.Context, pidHex string) (*Response, error) {
	pid, err := domain.ParsePID(pidHex)
	if err != nil {
		e.metrics.RecordRedeemRequest("invalid_pid")
		return nil, apierr.Wrap(apierr.Input, "invalid payment id", err)
	}

	// Bloom probe: a false result is the probing-attack short-circuit --
	// zero storage queries for a PID that was never persisted.
	if !e.cache.BloomMightContain(pid) {
		e.metrics.RecordCacheHint("bloom_absent")
		e.metrics.RecordRedeemRequest("not_found")
		return nil, apierr.New(apierr.NotFound, "payment not found")
	}
	e.metrics.RecordCacheHint("bloom_present")

	e.metrics.RecordStorageQuery("claim_payment")
	outcome, err := e.payments.ClaimPayment(ctx, pid)
	if err != nil {
		e.metrics.RecordRedeemRequest("storage_error")
		return nil, apierr.Wrap(apierr.Storage, "claim payment", err)
	}

	if outcome != nil {
		return e.handleSuccess(ctx, pid, outcome)
	}
	return e.handleAbsent(ctx, pid)
}

// handleSuccess runs §4.3 step 4: a fresh claim mints a new token.
func (e *Engine) handleSuccess(ctx context.Context, pid domain.PaymentId, outcome *domain.ClaimOutcome) (*Response, error) {
	token := domain.DeriveServiceToken(pid, outcome.TxID)

	e.metrics.RecordStorageQuery("insert_token")
	_, err := e.tokens.InsertToken(ctx, domain.NewServiceToken{
		Token:    token,
		PID:      pid,
		Amount:   outcome.Amount,
		IssuedAt: outcome.ClaimedAt,
	})
	if err != nil && !errors.Is(err, storage.ErrTokenExists) {
		e.metrics.RecordRedeemRequest("storage_error")
		return nil, apierr.Wrap(apierr.Storage, "insert token", err)
	}
	// A uniqueness violation here means a concurrent caller derived and
	// inserted the same token first; that's a benign race, not an error,
	// since claim_payment already guaranteed this caller is the sole
	// successful claimant.

	e.cache.MarkPresent(pid)
	e.metrics.RecordRedeemRequest("success")
	return &Response{Status: StatusSuccess, ServiceToken: token, Balance: outcome.Amount}, nil
}

// handleAbsent runs §4.3 step 5: claim_payment returned "absent", meaning
// the PID either doesn't exist, was already claimed, or (defensively) was
// observed in some non-Claimed, non-Unclaimed state.
func (e *Engine) handleAbsent(ctx context.Context, pid domain.PaymentId) (*Response, error) {
	e.metrics.RecordStorageQuery("find_payment")
	rec, err := e.payments.FindPayment(ctx, pid)
	if err != nil {
		e.metrics.RecordRedeemRequest("storage_error")
		return nil, apierr.Wrap(apierr.Storage, "find payment", err)
	}

	if rec == nil {
		// The Bloom filter's "true" was a false positive, or the PID truly
		// never existed. Either way: 404. Never mark absent -- the Bloom
		// filter alone is the absence authority.
		e.metrics.RecordRedeemRequest("not_found")
		return nil, apierr.New(apierr.NotFound, "payment not found")
	}

	if rec.Status != domain.PaymentClaimed {
		// Defensive branch: ingestion today only ever writes Unclaimed, so
		// this is unreachable in the current system, but kept per §9's
		// open question on a possible future pending status.
		e.cache.MarkPresent(pid)
		e.metrics.RecordRedeemRequest("not_found")
		return nil, apierr.New(apierr.NotFound, "payment not found")
	}

	return e.handleDuplicateRedemption(ctx, rec)
}

// handleDuplicateRedemption re-derives the same deterministic token and
// responds with the identical payload (modulo the status tag) as the
// original successful redemption.
func (e *Engine) handleDuplicateRedemption(ctx context.Context, rec *domain.PaymentRecord) (*Response, error) {
	token := domain.DeriveServiceToken(rec.PID, rec.TxID)

	e.metrics.RecordStorageQuery("find_token")
	tokRec, err := e.tokens.FindToken(ctx, token)
	if err != nil {
		e.metrics.RecordRedeemRequest("storage_error")
		return nil, apierr.Wrap(apierr.Storage, "find token", err)
	}

	if tokRec == nil {
		// Rare data-skew: the token row never got written (e.g. the
		// inserting process crashed after claim_payment but before
		// insert_token). Re-insert, tolerating a uniqueness race.
		issuedAt := time.Now()
		if rec.ClaimedAt != nil {
			issuedAt = *rec.ClaimedAt
		}
		e.metrics.RecordStorageQuery("insert_token")
		inserted, err := e.tokens.InsertToken(ctx, domain.NewServiceToken{
			Token:    token,
			PID:      rec.PID,
			Amount:   rec.Amount,
			IssuedAt: issuedAt,
		})
		switch {
		case err == nil:
			tokRec = inserted
		case errors.Is(err, storage.ErrTokenExists):
			e.metrics.RecordStorageQuery("find_token")
			tokRec, err = e.tokens.FindToken(ctx, token)
			if err != nil {
				e.metrics.RecordRedeemRequest("storage_error")
				return nil, apierr.Wrap(apierr.Storage, "find token after race", err)
			}
		default:
			e.metrics.RecordRedeemRequest("storage_error")
			return nil, apierr.Wrap(apierr.Storage, "insert token", err)
		}
	}

	e.cache.MarkPresent(rec.PID)
	e.metrics.RecordRedeemRequest("already_claimed")
	return &Response{Status: StatusAlreadyClaimed, ServiceToken: token, Balance: tokRec.Amount}, nil
}
