// Package revoke implements the admin-only revocation path of §4.5: an
// idempotent write-once state transition on a service token, served only
// from the internal listener (§9's "Two listeners" trust boundary).
package revoke

import (
	"context"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storage"
)

// Request is the admin revocation input.
type Request struct {
	Token      string
	Reason     *string
	AbuseScore *int16
}

// Path is the revocation path, grounded on storage.TokenStore's
// write-once RevokeToken contract.
type Path struct {
	tokens storage.TokenStore
}

// New constructs a Path.
func New(tokens storage.TokenStore) *Path {
	return &Path{tokens: tokens}
}

// Revoke parses and revokes req.Token. First call transitions active ->
// revoked; subsequent calls are no-ops returning the prevailing state.
func (p *Path) Revoke(ctx context.Context, req Request) (*domain.ServiceTokenRecord, error) {
	token, err := domain.ParseToken(req.Token)
	if err != nil {
		return nil, apierr.Wrap(apierr.Input, "invalid service token", err)
	}

	rec, err := p.tokens.RevokeToken(ctx, domain.RevokeTokenRequest{
		Token:      token,
		Reason:     req.Reason,
		AbuseScore: req.AbuseScore,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Storage, "revoke token", err)
	}
	if rec == nil {
		return nil, apierr.New(apierr.NotFound, "service token not found")
	}
	return rec, nil
}

// Status looks up the current status of a token for the public
// GET /api/v1/token/{token} endpoint, which never mutates state.
func Status(ctx context.Context, tokens storage.TokenStore, tokenHex string) (*domain.ServiceTokenRecord, error) {
	token, err := domain.ParseToken(tokenHex)
	if err != nil {
		return nil, apierr.Wrap(apierr.Input, "invalid service token", err)
	}
	rec, err := tokens.FindToken(ctx, token)
	if err != nil {
		return nil, apierr.Wrap(apierr.Storage, "find token", err)
	}
	if rec == nil {
		return nil, apierr.New(apierr.NotFound, "service token not found")
	}
	return rec, nil
}
