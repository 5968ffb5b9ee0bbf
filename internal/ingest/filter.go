package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocx/backend/internal/domain"
	"github.com/ocx/backend/internal/storage"
	"github.com/ocx/backend/internal/telemetry"
)

// entryResult is the labeled result of running one transfer through the
// §4.2.1 filter pipeline.
type entryResult struct {
	outcome string // "dust", "invalid_pid", "persisted", "unconfirmed", "storage_error"
	pid     *domain.PaymentId
	height  int64
	err     error
}

// MarkPresenter is the subset of cache.Absence the worker needs.
type MarkPresenter interface {
	MarkPresent(pid domain.PaymentId)
}

// processEntry runs the §4.2.1 filter pipeline for one transfer: reject for
// no PID/no confirmed height, reject dust, reject invalid PID format,
// otherwise insert and mark present.
func processEntry(ctx context.Context, payments storage.PaymentStore, cache MarkPresenter, metrics *telemetry.Metrics, minPaymentAmount int64, t Transfer) entryResult {
	if t.RawPID == nil || !t.Confirmed {
		metrics.RecordIngested("unconfirmed")
		return entryResult{outcome: "unconfirmed", height: t.BlockHeight}
	}

	if t.Amount < minPaymentAmount {
		metrics.RecordIngested("dust")
		return entryResult{outcome: "dust", height: t.BlockHeight}
	}

	pid, err := domain.ParsePID(*t.RawPID)
	if err != nil {
		slog.Warn("ingest: rejecting transfer with invalid pid", "txid", t.TxID, "raw_pid", *t.RawPID)
		metrics.RecordIngested("invalid_pid")
		return entryResult{outcome: "invalid_pid", height: t.BlockHeight}
	}

	np := domain.NewPayment{
		PID:         pid,
		TxID:        t.TxID,
		Amount:      t.Amount,
		BlockHeight: t.BlockHeight,
		DetectedAt:  time.Now(),
	}
	if err := payments.InsertPayment(ctx, np); err != nil {
		return entryResult{outcome: "storage_error", height: t.BlockHeight, err: err}
	}

	cache.MarkPresent(pid)
	metrics.RecordIngested("persisted")
	return entryResult{outcome: "persisted", pid: &pid, height: t.BlockHeight}
}
