// Command monitor runs the ingestion worker of §4.2 as a standalone
// process, separate from cmd/api, grounded on the original implementation
// shipping crates/monitor as its own binary alongside crates/api.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/backend/internal/cache"
	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/ingest"
	"github.com/ocx/backend/internal/ingest/rpc"
	"github.com/ocx/backend/internal/storage"
	"github.com/ocx/backend/internal/telemetry"
)

func main() {
	cfg := config.Get()
	installLogger(cfg)

	if cfg.Monitor.RPCURL == "" {
		log.Fatalf("config: MONERO_RPC_URL is required for the standalone monitor")
	}
	if cfg.Database.URL == "" {
		log.Fatalf("config: DATABASE_URL is required")
	}

	store, err := storage.Open(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	positive, err := cache.NewPositiveCache(cache.PositiveCacheConfig{
		TTL:      time.Duration(cfg.Cache.PIDCacheTTLSecs) * time.Second,
		Capacity: cfg.Cache.PIDCacheCapacity,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	bloom := cache.NewBloomFilter(cache.BloomFilterConfig{
		Entries: cfg.Cache.PIDBloomEntries,
		FPRate:  cfg.Cache.PIDBloomFPRate,
	})
	absence := cache.NewAbsence(positive, bloom)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := absence.Prewarm(bootCtx, store); err != nil {
		slog.Warn("prewarm failed, Bloom filter starts cold", "error", err)
	}
	bootCancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	if cfg.Telemetry.MetricsAddress != "" {
		go serveMetrics(cfg.Telemetry.MetricsAddress)
	}

	client := rpc.NewClient(cfg.Monitor.RPCURL, 10*time.Second)
	worker := ingest.New(client, store, store, absence, metrics, ingest.Config{
		StartHeight:      cfg.Monitor.StartHeight,
		MinPaymentAmount: cfg.Monitor.MinPaymentAmount,
		PollInterval:     time.Duration(cfg.Monitor.PollIntervalSecs) * time.Second,
		MinConfirmations: cfg.Monitor.MinConfirmations,
	})

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received, cancelling after in-flight tick")
		cancel()
	}()

	worker.Run(ctx)
	slog.Info("monitor stopped")
}

func installLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.Telemetry.LogLevel()}
	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("monitor metrics listener bound", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics listener failed", "error", err)
	}
}
