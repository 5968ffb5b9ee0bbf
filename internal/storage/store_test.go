package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/domain"
)

// openTestStore connects to a real Postgres instance named by
// STORAGE_TEST_DATABASE_URL, skipping the test when it is unset. The
// storage contract is exercised end-to-end here; storagefake covers the
// same contract for every package that only needs the interface.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("STORAGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STORAGE_TEST_DATABASE_URL not set, skipping Postgres-backed storage test")
	}
	s, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_InsertAndClaimPayment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pid, err := domain.ParsePID("1111111111111111")
	require.NoError(t, err)

	err = s.InsertPayment(ctx, domain.NewPayment{
		PID: pid, TxID: "tx-claim-1", Amount: 1_000_000, BlockHeight: 100, DetectedAt: time.Now(),
	})
	require.NoError(t, err)

	out, err := s.ClaimPayment(ctx, pid)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, "tx-claim-1", out.TxID)

	again, err := s.ClaimPayment(ctx, pid)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestStore_RevokeTokenIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pid, err := domain.ParsePID("2222222222222222")
	require.NoError(t, err)
	tok := domain.DeriveServiceToken(pid, "tx-revoke-1")

	_, err = s.InsertToken(ctx, domain.NewServiceToken{Token: tok, PID: pid, Amount: 5, IssuedAt: time.Now()})
	require.NoError(t, err)

	first, err := s.RevokeToken(ctx, domain.RevokeTokenRequest{Token: tok})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, first.RevokedAt)

	second, err := s.RevokeToken(ctx, domain.RevokeTokenRequest{Token: tok})
	require.NoError(t, err)
	require.Equal(t, first.RevokedAt, second.RevokedAt)
}
