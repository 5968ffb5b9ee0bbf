// Package ingest implements the ingestion worker of §4.2: poll -> filter ->
// persist -> advance cursor -> notify cache, tailing an opaque
// TransferSource for newly confirmed incoming transfers.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ocx/backend/internal/storage"
	"github.com/ocx/backend/internal/telemetry"
)

// Config holds the worker's tunables, sourced from config.MonitorConfig.
type Config struct {
	StartHeight      int64
	MinPaymentAmount int64
	PollInterval     time.Duration
	MinConfirmations int64
}

// Worker runs the ingestion state machine: Starting -> Polling <-> Fetching
// <-> Persisting <-> Sleeping -> Cancelled. The only persistent state is
// the cursor; everything else is transient.
type Worker struct {
	source   TransferSource
	payments storage.PaymentStore
	monitor  storage.MonitorStateStore
	cache    MarkPresenter
	metrics  *telemetry.Metrics
	cfg      Config
	breaker  *rpcBreaker
}

// New constructs a Worker. Every TransferSource RPC call is wrapped in a
// breaker so a flapping wallet daemon fast-fails (logged) rather than
// blocking the poll loop.
func New(source TransferSource, payments storage.PaymentStore, monitor storage.MonitorStateStore, cache MarkPresenter, metrics *telemetry.Metrics, cfg Config) *Worker {
	return &Worker{
		source:   source,
		payments: payments,
		monitor:  monitor,
		cache:    cache,
		metrics:  metrics,
		cfg:      cfg,
		breaker:  newWalletRPCBreaker("wallet-rpc"),
	}
}

// Run loops until ctx is cancelled, ticking once per PollInterval. An
// in-flight tick always runs to completion before the cancellation is
// observed, matching the teacher's own shutdown-between-iterations idiom.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("ingest: worker starting", "start_height", w.cfg.StartHeight, "poll_interval", w.cfg.PollInterval)
	for {
		w.Tick(ctx)

		select {
		case <-ctx.Done():
			slog.Info("ingest: worker cancelled")
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Tick runs one iteration of the operating loop of §4.2. It never panics on
// an individual entry error; storage/RPC failures are logged and retried
// next tick without cursor advance.
func (w *Worker) Tick(ctx context.Context) {
	walletHeight, err := w.walletHeight(ctx)
	if err != nil {
		slog.Warn("ingest: wallet_height failed, retrying next tick", "error", err)
		return
	}

	safeHeight := walletHeight + 1 - w.cfg.MinConfirmations

	cursor, err := w.currentCursor(ctx)
	if err != nil {
		slog.Warn("ingest: failed to read cursor, retrying next tick", "error", err)
		return
	}

	if cursor > safeHeight {
		slog.Debug("ingest: cursor ahead of safe window, sleeping", "cursor", cursor, "safe_height", safeHeight)
		return
	}

	batch, err := w.fetchTransfers(ctx, cursor, safeHeight)
	if err != nil {
		slog.Warn("ingest: fetch_transfers failed, retrying next tick", "error", err)
		return
	}
	w.metrics.ObserveBatchEntries(len(batch))

	next, err := w.handleBatch(ctx, batch, safeHeight)
	if err != nil {
		slog.Warn("ingest: storage failure in batch, cursor not advanced, retrying next tick", "error", err)
		return
	}
	if err := w.monitor.UpsertLastProcessedHeight(ctx, next); err != nil {
		slog.Warn("ingest: failed to persist cursor, retrying next tick", "error", err, "next", next)
		return
	}
	w.metrics.SetLastHeight(next)
}

// handleBatch runs the filter pipeline over each entry in order, tracking
// the maximum confirmed height seen, and computes the next cursor value:
// max_height_seen+1 if any confirmed entries were processed, else
// safe_height+1, clamped to never exceed safe_height+1. A storage failure
// on any entry aborts the rest of the batch and the tick's cursor advance
// entirely -- that payment would otherwise never be retried, since
// ingestion never re-fetches below the cursor.
func (w *Worker) handleBatch(ctx context.Context, batch []Transfer, safeHeight int64) (int64, error) {
	maxHeightSeen := int64(-1)
	sawConfirmed := false

	for _, t := range batch {
		result := processEntry(ctx, w.payments, w.cache, w.metrics, w.cfg.MinPaymentAmount, t)
		if result.err != nil {
			return 0, fmt.Errorf("txid=%s: %w", t.TxID, result.err)
		}
		if t.Confirmed {
			sawConfirmed = true
			if t.BlockHeight > maxHeightSeen {
				maxHeightSeen = t.BlockHeight
			}
		}
	}

	next := safeHeight + 1
	if sawConfirmed {
		next = maxHeightSeen + 1
	}
	if next > safeHeight+1 {
		next = safeHeight + 1
	}
	return next, nil
}

func (w *Worker) currentCursor(ctx context.Context) (int64, error) {
	h, err := w.monitor.LastProcessedHeight(ctx)
	if err != nil {
		return 0, err
	}
	if h == nil {
		return w.cfg.StartHeight, nil
	}
	return *h, nil
}

func (w *Worker) walletHeight(ctx context.Context) (int64, error) {
	result, err := w.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		h, err := w.source.WalletHeight(ctx)
		if err != nil {
			w.metrics.RecordRPCCall("error")
			return nil, err
		}
		w.metrics.RecordRPCCall("ok")
		return h, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

func (w *Worker) fetchTransfers(ctx context.Context, minHeight, maxHeight int64) ([]Transfer, error) {
	result, err := w.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		batch, err := w.source.FetchTransfers(ctx, minHeight, maxHeight)
		if err != nil {
			w.metrics.RecordRPCCall("error")
			return nil, err
		}
		w.metrics.RecordRPCCall("ok")
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Transfer), nil
}
