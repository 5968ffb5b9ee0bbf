// Package cache implements the two-layer absence cache of §4.1: a TTL'd
// positive cache backed by ristretto, and an append-only Bloom filter
// backed by bits-and-blooms/bloom. It never reintroduces the historical
// negative-cache-with-grace-window anti-pattern -- there is no "mark
// absent" operation anywhere in this package.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/ocx/backend/internal/domain"
)

// PositiveCache maps PID bytes to "storage is known to contain this PID",
// with entry TTL and bounded capacity. Presence of a non-expired entry is
// the might_contain_positive hint of §4.1.
type PositiveCache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

// PositiveCacheConfig sizes the underlying ristretto cache.
type PositiveCacheConfig struct {
	TTL      time.Duration
	Capacity int64
}

// NewPositiveCache constructs a PositiveCache. NumCounters is set to 10x
// the capacity, ristretto's own recommended ratio for accurate admission
// statistics; MaxCost equals Capacity since every entry costs 1.
func NewPositiveCache(cfg PositiveCacheConfig) (*PositiveCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.Capacity * 10,
		MaxCost:     cfg.Capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &PositiveCache{c: c, ttl: cfg.TTL}, nil
}

// set inserts pid with the configured TTL, cost 1. Keyed by the PID's hex
// string since ristretto's default key hashing only understands strings,
// []byte, and integer types, not fixed-size byte arrays.
func (p *PositiveCache) set(pid domain.PaymentId) {
	p.c.SetWithTTL(pid.String(), struct{}{}, 1, p.ttl)
	p.c.Wait()
}

// MightContainPositive reports whether a non-expired positive entry exists
// for pid.
func (p *PositiveCache) MightContainPositive(pid domain.PaymentId) bool {
	_, ok := p.c.Get(pid.String())
	return ok
}

// Close releases ristretto's background goroutines.
func (p *PositiveCache) Close() {
	p.c.Close()
}
