package storage

import (
	"context"

	"github.com/ocx/backend/internal/domain"
)

// PaymentStore is the subset of storage capabilities the ingestion worker
// and redemption engine need against payments. *Store implements it; tests
// use hand-written fakes instead of a real Postgres.
type PaymentStore interface {
	InsertPayment(ctx context.Context, p domain.NewPayment) error
	ClaimPayment(ctx context.Context, pid domain.PaymentId) (*domain.ClaimOutcome, error)
	FindPayment(ctx context.Context, pid domain.PaymentId) (*domain.PaymentRecord, error)
	AllPaymentIDs(ctx context.Context) ([]domain.PaymentId, error)
}

// TokenStore is the subset of storage capabilities the redemption engine
// and revocation path need against service tokens.
type TokenStore interface {
	InsertToken(ctx context.Context, t domain.NewServiceToken) (*domain.ServiceTokenRecord, error)
	FindToken(ctx context.Context, token domain.ServiceToken) (*domain.ServiceTokenRecord, error)
	RevokeToken(ctx context.Context, req domain.RevokeTokenRequest) (*domain.ServiceTokenRecord, error)
}

// MonitorStateStore is the subset of storage capabilities the ingestion
// worker needs against its persisted cursor.
type MonitorStateStore interface {
	LastProcessedHeight(ctx context.Context) (*int64, error)
	UpsertLastProcessedHeight(ctx context.Context, height int64) error
}

var (
	_ PaymentStore      = (*Store)(nil)
	_ TokenStore        = (*Store)(nil)
	_ MonitorStateStore = (*Store)(nil)
)
