package redeem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storagefake"
	"github.com/ocx/backend/internal/telemetry"
)

// fakeCache is a hand-written stand-in for cache.Absence that lets tests
// control Bloom membership directly without depending on the cache
// package's real ristretto/bloom internals.
type fakeCache struct {
	known map[domain.PaymentId]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{known: make(map[domain.PaymentId]bool)}
}

func (c *fakeCache) BloomMightContain(pid domain.PaymentId) bool {
	return c.known[pid]
}

func (c *fakeCache) MarkPresent(pid domain.PaymentId) {
	c.known[pid] = true
}

func mustPID(t *testing.T, s string) domain.PaymentId {
	t.Helper()
	pid, err := domain.ParsePID(s)
	require.NoError(t, err)
	return pid
}

func newTestEngine() (*Engine, *storagefake.Store, *fakeCache) {
	store := storagefake.New()
	c := newFakeCache()
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	return New(store, store, c, m), store, c
}

func TestRedeem_HappyPath(t *testing.T) {
	ctx := context.Background()
	engine, store, cache := newTestEngine()
	pid := mustPID(t, "1111111111111111")

	require.NoError(t, store.InsertPayment(ctx, domain.NewPayment{
		PID: pid, TxID: "tx1", Amount: 1_000_000, BlockHeight: 100, DetectedAt: time.Now(),
	}))
	cache.MarkPresent(pid)

	resp, err := engine.Redeem(ctx, pid.String())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, int64(1_000_000), resp.Balance)
	assert.Equal(t, domain.DeriveServiceToken(pid, "tx1"), resp.ServiceToken)
}

func TestRedeem_SecondRedemptionIsAlreadyClaimedWithSameToken(t *testing.T) {
	ctx := context.Background()
	engine, store, cache := newTestEngine()
	pid := mustPID(t, "1111111111111111")

	require.NoError(t, store.InsertPayment(ctx, domain.NewPayment{
		PID: pid, TxID: "tx1", Amount: 1_000_000, BlockHeight: 100, DetectedAt: time.Now(),
	}))
	cache.MarkPresent(pid)

	first, err := engine.Redeem(ctx, pid.String())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, first.Status)

	second, err := engine.Redeem(ctx, pid.String())
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyClaimed, second.Status)
	assert.Equal(t, first.ServiceToken, second.ServiceToken)
	assert.Equal(t, first.Balance, second.Balance)
}

func TestRedeem_InvalidFormat(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine()

	_, err := engine.Redeem(ctx, "short")
	require.Error(t, err)
	assert.Equal(t, apierr.Input, apierr.KindOf(err))
	assert.True(t, errors.Is(err, domain.ErrInvalidPID))
}

func TestRedeem_BloomMissPerformsZeroStorageQueries(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine()
	pid := mustPID(t, "0123456789abcdef")

	_, err := engine.Redeem(ctx, pid.String())
	require.Error(t, err)

	assert.Empty(t, store.Queries, "a Bloom miss must not touch storage at all")
}

func TestRedeem_UnknownPIDWithBloomFalsePositiveIsNotFound(t *testing.T) {
	ctx := context.Background()
	engine, _, cache := newTestEngine()
	pid := mustPID(t, "0123456789abcdef")

	// Simulate a Bloom false positive: the filter says "might contain" but
	// storage has never heard of this PID.
	cache.MarkPresent(pid)

	_, err := engine.Redeem(ctx, pid.String())
	require.Error(t, err)
	assert.Equal(t, apierr.NotFound, apierr.KindOf(err))
}
