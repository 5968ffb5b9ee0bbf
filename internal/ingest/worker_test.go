package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storagefake"
	"github.com/ocx/backend/internal/telemetry"
)

// recordingSource is a hand-written TransferSource fake, grounded on the
// original implementation's RecordingSource/PreparedSource test doubles.
type recordingSource struct {
	height    int64
	heightErr error
	batch     []Transfer
	batchErr  error
	fetchedMin, fetchedMax int64
}

func (s *recordingSource) WalletHeight(ctx context.Context) (int64, error) {
	if s.heightErr != nil {
		return 0, s.heightErr
	}
	return s.height, nil
}

func (s *recordingSource) FetchTransfers(ctx context.Context, minHeight, maxHeight int64) ([]Transfer, error) {
	s.fetchedMin, s.fetchedMax = minHeight, maxHeight
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return s.batch, nil
}

func rawPID(s string) *string { return &s }

func newTestWorker(source TransferSource, store *storagefake.Store, cfg Config) *Worker {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	return New(source, store, store, &markPresentAdapter{store: store}, m, cfg)
}

// markPresentAdapter adapts storagefake.Store (which has no cache) into a
// MarkPresenter that only records the PIDs it is given, since worker tests
// only assert on storage/cursor
// state, not cache coordination (covered in internal/cache and
// internal/redeem).
type markPresentAdapter struct {
	store *storagefake.Store
	marked []domain.PaymentId
}

func (a *markPresentAdapter) MarkPresent(pid domain.PaymentId) {
	a.marked = append(a.marked, pid)
}

func TestWorker_AdvancesOnlyToSafeHeight(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	source := &recordingSource{
		height: 105,
		batch: []Transfer{
			{TxID: "tx1", RawPID: rawPID("1111111111111111"), Confirmed: true, Amount: 2_000_000, BlockHeight: 100},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	// safe_height = 105 + 1 - 10 = 96; the lone confirmed entry sits at
	// height 100, above the window, so max_seen+1 = 101 is clamped down to
	// the safe_height+1 ceiling of 97.
	assert.Equal(t, int64(97), *h)
}

func TestWorker_CursorAdvancesToMaxSeenPlusOne(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	source := &recordingSource{
		height: 200,
		batch: []Transfer{
			{TxID: "tx1", RawPID: rawPID("1111111111111111"), Confirmed: true, Amount: 2_000_000, BlockHeight: 50},
			{TxID: "tx2", RawPID: rawPID("2222222222222222"), Confirmed: true, Amount: 2_000_000, BlockHeight: 55},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(56), *h)
}

func TestWorker_SkipsWhenCursorAboveSafeWindow(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	require.NoError(t, store.UpsertLastProcessedHeight(ctx, 200))
	source := &recordingSource{height: 105} // safe_height = 96, well below cursor
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(200), *h, "cursor must not move when ahead of the safe window")
}

func TestWorker_StorageErrorDoesNotAdvanceCursor(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	store.InsertPaymentErr = errors.New("boom")
	source := &recordingSource{
		height: 15,
		batch: []Transfer{
			{TxID: "tx1", RawPID: rawPID("1111111111111111"), Confirmed: true, Amount: 2_000_000, BlockHeight: 4},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	// The only entry failed to persist, so the batch aborts before the
	// cursor is touched at all -- a never-before-seen cursor stays nil,
	// not advanced to safe_height+1. Otherwise this payment would never be
	// retried, since ingestion never re-fetches below the cursor.
	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestWorker_StorageErrorLeavesPriorCursorUntouchedAndAbortsRestOfBatch(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	require.NoError(t, store.UpsertLastProcessedHeight(ctx, 3))
	store.InsertPaymentErr = errors.New("boom")
	source := &recordingSource{
		height: 15,
		batch: []Transfer{
			{TxID: "tx-fails", RawPID: rawPID("1111111111111111"), Confirmed: true, Amount: 2_000_000, BlockHeight: 4},
			{TxID: "tx-after", RawPID: rawPID("2222222222222222"), Confirmed: true, Amount: 2_000_000, BlockHeight: 5},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, int64(3), *h, "cursor must stay at its prior value when any entry fails to persist")

	store.InsertPaymentErr = nil
	pid, err := domain.ParsePID("2222222222222222")
	require.NoError(t, err)
	rec, err := store.FindPayment(ctx, pid)
	require.NoError(t, err)
	assert.Nil(t, rec, "the entry after the failing one must never be processed")
}

func TestWorker_DustIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	source := &recordingSource{
		height: 15,
		batch: []Transfer{
			{TxID: "tx-dust", RawPID: rawPID("1111111111111111"), Confirmed: true, Amount: 5, BlockHeight: 4},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	pid, err := domain.ParsePID("1111111111111111")
	require.NoError(t, err)
	rec, err := store.FindPayment(ctx, pid)
	require.NoError(t, err)
	assert.Nil(t, rec, "dust below min_payment_amount must never be persisted")
}

func TestWorker_InvalidPIDIsRejectedNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	source := &recordingSource{
		height: 15,
		batch: []Transfer{
			{TxID: "tx-bad", RawPID: rawPID("not-hex-at-all!!"), Confirmed: true, Amount: 2_000_000, BlockHeight: 4},
		},
	}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	ids, err := store.AllPaymentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWorker_WalletHeightErrorSkipsTickWithoutAdvancingCursor(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	source := &recordingSource{heightErr: errors.New("rpc down")}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	h, err := store.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestWorker_FetchTransfersUsesSafeWindowBounds(t *testing.T) {
	ctx := context.Background()
	store := storagefake.New()
	require.NoError(t, store.UpsertLastProcessedHeight(ctx, 10))
	source := &recordingSource{height: 105}
	cfg := Config{StartHeight: 0, MinPaymentAmount: 1_000_000, MinConfirmations: 10, PollInterval: time.Millisecond}
	w := newTestWorker(source, store, cfg)

	w.Tick(ctx)

	assert.Equal(t, int64(10), source.fetchedMin)
	assert.Equal(t, int64(96), source.fetchedMax)
}
