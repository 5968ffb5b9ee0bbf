// Package storage implements the storage capability contracts of §4.4
// directly against Postgres, via database/sql and lib/pq -- the same
// foundation the teacher already uses in internal/gvisor/database_state.go
// and cmd/server/main.go, rather than a REST wrapper.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ocx/backend/internal/domain"
)

// ErrTokenExists is returned by InsertToken when a row with the same token
// already exists. The redemption engine treats this as a benign race
// between two concurrent derivations of the same deterministic token and
// re-reads.
var ErrTokenExists = errors.New("storage: service token already exists")

const uniqueViolation = "23505"

// monitorCursorKey is the fixed key used in monitor_state for the single
// scalar MonitorCursor.
const monitorCursorKey = "last_processed_height"

// Store wraps a *sql.DB opened against Postgres. Connection pooling is
// database/sql's own concern; Store never holds a lock across I/O.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dbURL, pings it, and ensures the schema
// exists. Schema creation is idempotent (CREATE TABLE/INDEX IF NOT EXISTS)
// so repeated boots never fail.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the three tables and their supporting indexes if they do
// not already exist.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			pid BYTEA PRIMARY KEY,
			txid TEXT NOT NULL,
			amount BIGINT NOT NULL,
			block_height BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			claimed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE TABLE IF NOT EXISTS service_tokens (
			token BYTEA PRIMARY KEY,
			pid BYTEA NOT NULL,
			amount BIGINT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			revoke_reason TEXT,
			abuse_score SMALLINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_service_tokens_pid ON service_tokens(pid)`,
		`CREATE TABLE IF NOT EXISTS monitor_state (
			key TEXT PRIMARY KEY,
			value_int BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertPayment inserts a newly observed confirmed transfer. A second
// insert with the same PID is a silent no-op (idempotent on conflict).
func (s *Store) InsertPayment(ctx context.Context, p domain.NewPayment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (pid, txid, amount, block_height, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pid) DO NOTHING`,
		p.PID.Bytes(), p.TxID, p.Amount, p.BlockHeight, domain.PaymentUnclaimed, p.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert payment: %w", err)
	}
	return nil
}

// ClaimPayment atomically transitions the row for pid from Unclaimed to
// Claimed in a single round trip, returning the updated fields iff exactly
// one row was affected. The WHERE status = 'unclaimed' predicate plus
// Postgres row-level MVCC give single-success semantics under concurrent
// callers without a separate transaction.
func (s *Store) ClaimPayment(ctx context.Context, pid domain.PaymentId) (*domain.ClaimOutcome, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $1, claimed_at = now()
		WHERE pid = $2 AND status = $3
		RETURNING txid, amount, block_height, claimed_at`,
		domain.PaymentClaimed, pid.Bytes(), domain.PaymentUnclaimed,
	)

	var out domain.ClaimOutcome
	out.PID = pid
	if err := row.Scan(&out.TxID, &out.Amount, &out.BlockHeight, &out.ClaimedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: claim payment: %w", err)
	}
	return &out, nil
}

// FindPayment performs a snapshot read of a payment row.
func (s *Store) FindPayment(ctx context.Context, pid domain.PaymentId) (*domain.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pid, txid, amount, block_height, status, created_at, claimed_at
		FROM payments WHERE pid = $1`, pid.Bytes())

	var rec domain.PaymentRecord
	var pidBytes []byte
	var status string
	var claimedAt sql.NullTime
	if err := row.Scan(&pidBytes, &rec.TxID, &rec.Amount, &rec.BlockHeight, &status, &rec.CreatedAt, &claimedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: find payment: %w", err)
	}

	parsedPID, err := domain.PIDFromBytes(pidBytes)
	if err != nil {
		return nil, fmt.Errorf("storage: find payment: %w", err)
	}
	rec.PID = parsedPID
	rec.Status = domain.PaymentStatus(status)
	if claimedAt.Valid {
		t := claimedAt.Time
		rec.ClaimedAt = &t
	}
	return &rec, nil
}

// InsertToken inserts a newly minted token. A uniqueness violation on token
// surfaces as ErrTokenExists so the redemption engine can re-read per the
// accepted benign-race behavior.
func (s *Store) InsertToken(ctx context.Context, t domain.NewServiceToken) (*domain.ServiceTokenRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_tokens (token, pid, amount, issued_at, abuse_score)
		VALUES ($1, $2, $3, $4, 0)`,
		t.Token.Bytes(), t.PID.Bytes(), t.Amount, t.IssuedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrTokenExists
		}
		return nil, fmt.Errorf("storage: insert token: %w", err)
	}
	return &domain.ServiceTokenRecord{
		Token:    t.Token,
		PID:      t.PID,
		Amount:   t.Amount,
		IssuedAt: t.IssuedAt,
	}, nil
}

// FindToken performs a snapshot read of a service token row.
func (s *Store) FindToken(ctx context.Context, token domain.ServiceToken) (*domain.ServiceTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, pid, amount, issued_at, revoked_at, revoke_reason, abuse_score
		FROM service_tokens WHERE token = $1`, token.Bytes())

	return scanTokenRow(row)
}

// RevokeToken stamps revoked_at on first call and is idempotent thereafter:
// if the row is already revoked, the existing state is returned unchanged.
func (s *Store) RevokeToken(ctx context.Context, req domain.RevokeTokenRequest) (*domain.ServiceTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE service_tokens
		SET revoked_at = now(),
			revoke_reason = COALESCE($2, revoke_reason),
			abuse_score = COALESCE($3, abuse_score)
		WHERE token = $1 AND revoked_at IS NULL
		RETURNING token, pid, amount, issued_at, revoked_at, revoke_reason, abuse_score`,
		req.Token.Bytes(), req.Reason, req.AbuseScore,
	)

	rec, err := scanTokenRow(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: revoke token: %w", err)
	}

	// Zero rows affected: either the token doesn't exist, or it was already
	// revoked. Re-select to distinguish the two and return the prevailing
	// state for the idempotent case.
	return s.FindToken(ctx, req.Token)
}

func scanTokenRow(row *sql.Row) (*domain.ServiceTokenRecord, error) {
	var rec domain.ServiceTokenRecord
	var tokenBytes, pidBytes []byte
	var revokedAt sql.NullTime
	var revokeReason sql.NullString

	if err := row.Scan(&tokenBytes, &pidBytes, &rec.Amount, &rec.IssuedAt, &revokedAt, &revokeReason, &rec.AbuseScore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("storage: scan token: %w", err)
	}

	tok, err := domain.TokenFromBytes(tokenBytes)
	if err != nil {
		return nil, err
	}
	pid, err := domain.PIDFromBytes(pidBytes)
	if err != nil {
		return nil, err
	}
	rec.Token = tok
	rec.PID = pid
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	if revokeReason.Valid {
		r := revokeReason.String
		rec.RevokeReason = &r
	}
	return &rec, nil
}

// LastProcessedHeight returns the persisted monitor cursor, or nil if it has
// never been written.
func (s *Store) LastProcessedHeight(ctx context.Context) (*int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value_int FROM monitor_state WHERE key = $1`, monitorCursorKey)
	var height int64
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: last processed height: %w", err)
	}
	return &height, nil
}

// UpsertLastProcessedHeight writes the monitor cursor, creating the fixed
// key row on first call.
func (s *Store) UpsertLastProcessedHeight(ctx context.Context, height int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_state (key, value_int) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value_int = EXCLUDED.value_int`,
		monitorCursorKey, height,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert last processed height: %w", err)
	}
	return nil
}

// AllPaymentIDs bulk-reads every known PID for cache prewarm.
func (s *Store) AllPaymentIDs(ctx context.Context) ([]domain.PaymentId, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pid FROM payments`)
	if err != nil {
		return nil, fmt.Errorf("storage: all payment ids: %w", err)
	}
	defer rows.Close()

	var ids []domain.PaymentId
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("storage: all payment ids: %w", err)
		}
		pid, err := domain.PIDFromBytes(b)
		if err != nil {
			return nil, err
		}
		ids = append(ids, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: all payment ids: %w", err)
	}
	return ids, nil
}
