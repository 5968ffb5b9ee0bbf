package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/ocx/backend/internal/domain"
)

// BloomFilter is an append-only probabilistic set over every known-present
// PID. It is never cleared for the life of the process: a `false` result is
// a reliable absence signal, a `true` result is a hint that degrades to a
// storage lookup.
type BloomFilter struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

// BloomFilterConfig sizes the filter for expected entries and target
// false-positive rate.
type BloomFilterConfig struct {
	Entries uint
	FPRate  float64
}

// NewBloomFilter constructs a BloomFilter sized by NewWithEstimates.
func NewBloomFilter(cfg BloomFilterConfig) *BloomFilter {
	return &BloomFilter{bf: bloom.NewWithEstimates(cfg.Entries, cfg.FPRate)}
}

// Add inserts pid. Safe for concurrent use; never removes anything.
func (b *BloomFilter) Add(pid domain.PaymentId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bf.Add(pid.Bytes())
}

// MightContain reports false only if pid was definitely never added --
// a reliable absence signal. true is a probabilistic hint.
func (b *BloomFilter) MightContain(pid domain.PaymentId) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bf.Test(pid.Bytes())
}
