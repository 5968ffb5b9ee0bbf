// Package storagefake hand-writes an in-memory implementation of
// storage.PaymentStore/TokenStore/MonitorStateStore for package tests,
// following the teacher's own practice of hand-written mocks (e.g.
// internal/federation's MockTrustAttestationLedger) rather than generated
// ones.
package storagefake

import (
	"context"
	"sync"
	"time"

	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storage"
)

// Store is an in-memory, mutex-guarded fake implementing the storage
// capability contracts with the same atomicity guarantees the real
// Postgres-backed store provides (single-success ClaimPayment, write-once
// RevokeToken).
type Store struct {
	mu sync.Mutex

	payments map[domain.PaymentId]*domain.PaymentRecord
	tokens   map[domain.ServiceToken]*domain.ServiceTokenRecord
	cursor   *int64

	// InsertPaymentErr, ClaimPaymentErr, etc. let tests inject storage
	// failures to exercise error propagation paths.
	InsertPaymentErr error
	ClaimPaymentErr  error
	FindPaymentErr   error

	// Queries counts calls per operation, for asserting the "Bloom miss =>
	// zero storage queries" property.
	Queries map[string]int
}

// New returns an empty fake store.
func New() *Store {
	return &Store{
		payments: make(map[domain.PaymentId]*domain.PaymentRecord),
		tokens:   make(map[domain.ServiceToken]*domain.ServiceTokenRecord),
		Queries:  make(map[string]int),
	}
}

func (s *Store) count(op string) {
	s.Queries[op]++
}

func (s *Store) InsertPayment(ctx context.Context, p domain.NewPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("insert_payment")
	if s.InsertPaymentErr != nil {
		return s.InsertPaymentErr
	}
	if _, exists := s.payments[p.PID]; exists {
		return nil // idempotent no-op on conflict
	}
	s.payments[p.PID] = &domain.PaymentRecord{
		PID:         p.PID,
		TxID:        p.TxID,
		Amount:      p.Amount,
		BlockHeight: p.BlockHeight,
		Status:      domain.PaymentUnclaimed,
		CreatedAt:   p.DetectedAt,
	}
	return nil
}

func (s *Store) ClaimPayment(ctx context.Context, pid domain.PaymentId) (*domain.ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("claim_payment")
	if s.ClaimPaymentErr != nil {
		return nil, s.ClaimPaymentErr
	}
	rec, ok := s.payments[pid]
	if !ok || rec.Status != domain.PaymentUnclaimed {
		return nil, nil
	}
	now := time.Now()
	rec.Status = domain.PaymentClaimed
	rec.ClaimedAt = &now
	return &domain.ClaimOutcome{
		PID:         pid,
		TxID:        rec.TxID,
		Amount:      rec.Amount,
		BlockHeight: rec.BlockHeight,
		ClaimedAt:   now,
	}, nil
}

func (s *Store) FindPayment(ctx context.Context, pid domain.PaymentId) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("find_payment")
	if s.FindPaymentErr != nil {
		return nil, s.FindPaymentErr
	}
	rec, ok := s.payments[pid]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) AllPaymentIDs(ctx context.Context) ([]domain.PaymentId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("all_payment_ids")
	ids := make([]domain.PaymentId, 0, len(s.payments))
	for pid := range s.payments {
		ids = append(ids, pid)
	}
	return ids, nil
}

func (s *Store) InsertToken(ctx context.Context, t domain.NewServiceToken) (*domain.ServiceTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("insert_token")
	if _, exists := s.tokens[t.Token]; exists {
		return nil, storage.ErrTokenExists
	}
	rec := &domain.ServiceTokenRecord{
		Token:    t.Token,
		PID:      t.PID,
		Amount:   t.Amount,
		IssuedAt: t.IssuedAt,
	}
	s.tokens[t.Token] = rec
	cp := *rec
	return &cp, nil
}

func (s *Store) FindToken(ctx context.Context, token domain.ServiceToken) (*domain.ServiceTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("find_token")
	rec, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) RevokeToken(ctx context.Context, req domain.RevokeTokenRequest) (*domain.ServiceTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("revoke_token")
	rec, ok := s.tokens[req.Token]
	if !ok {
		return nil, nil
	}
	if rec.RevokedAt == nil {
		now := time.Now()
		rec.RevokedAt = &now
		if req.Reason != nil {
			rec.RevokeReason = req.Reason
		}
		if req.AbuseScore != nil {
			rec.AbuseScore = *req.AbuseScore
		}
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) LastProcessedHeight(ctx context.Context) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("last_processed_height")
	if s.cursor == nil {
		return nil, nil
	}
	h := *s.cursor
	return &h, nil
}

func (s *Store) UpsertLastProcessedHeight(ctx context.Context, height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("upsert_last_processed_height")
	s.cursor = &height
	return nil
}
