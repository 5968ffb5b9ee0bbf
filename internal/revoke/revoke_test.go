package revoke

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/apierr"
	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storagefake"
)

func TestRevoke_IdempotentAcrossCalls(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	pid, err := domain.ParsePID("1111111111111111")
	require.NoError(t, err)
	tok := domain.DeriveServiceToken(pid, "tx1")

	_, err = store.InsertToken(ctx, domain.NewServiceToken{Token: tok, PID: pid, Amount: 10, IssuedAt: time.Now()})
	require.NoError(t, err)

	path := New(store)
	reason := "abuse"

	first, err := path.Revoke(ctx, Request{Token: tok.String(), Reason: &reason})
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	second, err := path.Revoke(ctx, Request{Token: tok.String()})
	require.NoError(t, err)
	assert.Equal(t, first.RevokedAt, second.RevokedAt)
}

func TestRevoke_UnknownTokenIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	path := New(store)

	pid, err := domain.ParsePID("1111111111111111")
	require.NoError(t, err)
	tok := domain.DeriveServiceToken(pid, "tx1")

	_, err = path.Revoke(ctx, Request{Token: tok.String()})
	require.Error(t, err)
	assert.Equal(t, apierr.NotFound, apierr.KindOf(err))
}

func TestRevoke_InvalidFormat(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	path := New(store)

	_, err := path.Revoke(ctx, Request{Token: "not-hex"})
	require.Error(t, err)
	assert.Equal(t, apierr.Input, apierr.KindOf(err))
}

func TestStatus_ReturnsActiveThenRevoked(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	pid, err := domain.ParsePID("1111111111111111")
	require.NoError(t, err)
	tok := domain.DeriveServiceToken(pid, "tx1")

	_, err = store.InsertToken(ctx, domain.NewServiceToken{Token: tok, PID: pid, Amount: 10, IssuedAt: time.Now()})
	require.NoError(t, err)

	rec, err := Status(ctx, store, tok.String())
	require.NoError(t, err)
	assert.False(t, rec.IsRevoked())

	_, err = New(store).Revoke(ctx, Request{Token: tok.String()})
	require.NoError(t, err)

	rec, err = Status(ctx, store, tok.String())
	require.NoError(t, err)
	assert.True(t, rec.IsRevoked())
}
