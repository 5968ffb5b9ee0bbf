package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// breakerState is the wallet-RPC circuit's lifecycle.
type breakerState int

const (
	breakerClosed   breakerState = iota // calls pass through normally
	breakerOpen                         // calls fail fast without reaching the wallet
	breakerHalfOpen                     // calls pass through as probes to test recovery
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var errBreakerOpen = errors.New("ingest: wallet rpc circuit open")

// rpcBreaker isolates the worker from a stalled or flapping wallet-RPC
// endpoint. It trips after tripThreshold consecutive RPC failures, refuses
// calls for cooldown, then turns half-open and lets calls through as probes;
// probeTarget consecutive probe successes close it again, any probe failure
// reopens it.
// Unlike a general-purpose breaker this has no per-request concurrency
// limit and no sliding window -- wallet_height/fetch_transfers calls are
// already serialized one-at-a-time by the poll loop, so consecutive
// failure counts are all the state a single caller needs.
type rpcBreaker struct {
	name        string
	tripAfter   uint32
	probeTarget uint32
	cooldown    time.Duration

	mu            sync.Mutex
	state         breakerState
	consecFails   uint32
	consecProbeOK uint32
	openedAt      time.Time
}

// newWalletRPCBreaker returns a breaker tuned for the wallet daemon: five
// consecutive failures trip it, a 30s cooldown before the next probe is
// allowed, three consecutive probe successes before calls resume normally.
func newWalletRPCBreaker(name string) *rpcBreaker {
	return &rpcBreaker{
		name:        name,
		tripAfter:   5,
		probeTarget: 3,
		cooldown:    30 * time.Second,
		state:       breakerClosed,
	}
}

// ExecuteContext runs req if the breaker currently allows it, then records
// the outcome against the breaker's state machine.
func (b *rpcBreaker) ExecuteContext(ctx context.Context, req func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	result, err := req(ctx)
	b.record(err == nil)
	return result, err
}

func (b *rpcBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != breakerOpen {
		return nil
	}
	if time.Since(b.openedAt) < b.cooldown {
		return errBreakerOpen
	}
	b.state = breakerHalfOpen
	b.consecProbeOK = 0
	slog.Info("ingest: wallet rpc breaker probing recovery", "name", b.name)
	return nil
}

func (b *rpcBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.consecFails = 0
		if b.state == breakerHalfOpen {
			b.consecProbeOK++
			if b.consecProbeOK >= b.probeTarget {
				b.state = breakerClosed
				slog.Info("ingest: wallet rpc breaker closed", "name", b.name)
			}
		}
		return
	}

	if b.state == breakerHalfOpen {
		b.trip()
		return
	}
	b.consecFails++
	if b.consecFails >= b.tripAfter {
		b.trip()
	}
}

func (b *rpcBreaker) trip() {
	b.state = breakerOpen
	b.openedAt = time.Now()
	b.consecFails = 0
	slog.Warn("ingest: wallet rpc breaker open, calls failing fast", "name", b.name, "cooldown", b.cooldown)
}
