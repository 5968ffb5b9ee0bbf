package cache

import (
	"context"

	"github.com/ocx/backend/internal/domain"
)

// Absence composes the positive cache and Bloom filter into the §4.1
// contract: might_contain_positive, mark_present, bloom_might_contain,
// prewarm. It never exposes a way to mark a PID absent -- the Bloom
// filter's append-only `false` is the only absence authority.
type Absence struct {
	positive *PositiveCache
	bloom    *BloomFilter
}

// NewAbsence composes an already-constructed PositiveCache and BloomFilter.
// bloom may be nil when API_ALLOW_NO_BLOOM permits degraded startup; in
// that case BloomMightContain always reports true (every PID falls through
// to storage, same as if the filter had seen it).
func NewAbsence(positive *PositiveCache, bloom *BloomFilter) *Absence {
	return &Absence{positive: positive, bloom: bloom}
}

// MightContainPositive reports whether a non-expired positive cache entry
// exists for pid.
func (a *Absence) MightContainPositive(pid domain.PaymentId) bool {
	return a.positive.MightContainPositive(pid)
}

// BloomMightContain is the probing-attack short-circuit of §4.3 step 2:
// false is a reliable absence signal.
func (a *Absence) BloomMightContain(pid domain.PaymentId) bool {
	if a.bloom == nil {
		return true
	}
	return a.bloom.MightContain(pid)
}

// MarkPresent inserts pid into both the positive cache and the Bloom
// filter. Called after any durable observation (insert or successful
// find), never after an absence.
func (a *Absence) MarkPresent(pid domain.PaymentId) {
	a.positive.set(pid)
	if a.bloom != nil {
		a.bloom.Add(pid)
	}
}

// PaymentIDLister supplies every known PID for Prewarm, satisfied by
// storage.PaymentStore's AllPaymentIDs.
type PaymentIDLister interface {
	AllPaymentIDs(ctx context.Context) ([]domain.PaymentId, error)
}

// Prewarm loads every known PID from storage into both structures at
// startup, enforcing the coordination invariant of §4.1 even for PIDs
// inserted before this process started.
func (a *Absence) Prewarm(ctx context.Context, store PaymentIDLister) error {
	ids, err := store.AllPaymentIDs(ctx)
	if err != nil {
		return err
	}
	for _, pid := range ids {
		a.MarkPresent(pid)
	}
	return nil
}
