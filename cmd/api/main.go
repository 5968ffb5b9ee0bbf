// Command api boots the redemption/revocation HTTP surface of §6: a public
// listener (redeem + token status, optionally metrics) and an internal
// listener (metrics + revoke), plus an optionally embedded ingestion
// worker. Bootstrap shape grounded on the teacher's cmd/api/main.go:
// config.Get() -> wire dependencies -> register routes -> graceful
// shutdown on SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ocx/backend/internal/cache"
	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/httpapi"
	"github.com/ocx/backend/internal/ingest"
	"github.com/ocx/backend/internal/ingest/rpc"
	"github.com/ocx/backend/internal/middleware"
	"github.com/ocx/backend/internal/redeem"
	"github.com/ocx/backend/internal/revoke"
	"github.com/ocx/backend/internal/storage"
	"github.com/ocx/backend/internal/telemetry"
)

func main() {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	installLogger(cfg)

	store, err := storage.Open(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	absence, err := buildAbsenceCache(cfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := absence.Prewarm(bootCtx, store); err != nil {
		slog.Warn("prewarm failed, Bloom filter starts cold", "error", err)
	}
	bootCancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	engine := redeem.New(store, store, absence, metrics)
	revokePath := revoke.New(store)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	if cfg.Monitor.RPCURL != "" {
		startIngestionWorker(shutdownCtx, cfg, store, absence, metrics)
	} else if !cfg.API.AllowNoMonitor {
		log.Fatalf("config: MONERO_RPC_URL not set and API_ALLOW_NO_MONITOR not granted")
	} else {
		slog.Warn("starting without embedded ingestion worker (API_ALLOW_NO_MONITOR)")
	}

	deps := httpapi.Deps{
		Engine:      engine,
		RevokePath:  revokePath,
		Tokens:      store,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{}),
	}

	publicSrv := newServer(cfg, httpapi.PublicRouter(deps, cfg.API))
	var internalSrv *http.Server
	if cfg.API.HasInternalListener() {
		internalSrv = newServer(cfg, httpapi.InternalRouter(deps))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutdown signal received, draining connections")
		shutdownCancel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.API.ShutdownTimeoutSec)*time.Second)
		defer cancel()

		if err := publicSrv.Shutdown(ctx); err != nil {
			slog.Error("public listener shutdown error", "error", err)
		}
		if internalSrv != nil {
			if err := internalSrv.Shutdown(ctx); err != nil {
				slog.Error("internal listener shutdown error", "error", err)
			}
		}
	}()

	if internalSrv != nil {
		go serveListener(internalSrv, cfg.API.InternalUnixSocket, cfg.API.InternalBindAddress, "internal")
	}
	serveListener(publicSrv, cfg.API.UnixSocket, cfg.API.BindAddress, "public")

	slog.Info("api stopped")
}

func installLogger(cfg *config.Config) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Telemetry.LogLevel()}
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildAbsenceCache constructs the positive cache (ristretto) and, unless
// API_ALLOW_NO_BLOOM opts out of it, the Bloom filter, then composes them.
// NewBloomFilter cannot fail; the only real failure mode here is the
// ristretto allocation behind NewPositiveCache, which is always fatal --
// API_ALLOW_NO_BLOOM only ever skips constructing the Bloom filter.
func buildAbsenceCache(cfg *config.Config) (*cache.Absence, error) {
	positive, err := cache.NewPositiveCache(cache.PositiveCacheConfig{
		TTL:      time.Duration(cfg.Cache.PIDCacheTTLSecs) * time.Second,
		Capacity: cfg.Cache.PIDCacheCapacity,
	})
	if err != nil {
		return nil, fmt.Errorf("positive cache: %w", err)
	}

	if cfg.API.AllowNoBloom {
		slog.Warn("starting without a Bloom filter (API_ALLOW_NO_BLOOM): every lookup falls through to storage")
		return cache.NewAbsence(positive, nil), nil
	}

	bloom := cache.NewBloomFilter(cache.BloomFilterConfig{
		Entries: cfg.Cache.PIDBloomEntries,
		FPRate:  cfg.Cache.PIDBloomFPRate,
	})
	return cache.NewAbsence(positive, bloom), nil
}

func startIngestionWorker(ctx context.Context, cfg *config.Config, store *storage.Store, absence *cache.Absence, metrics *telemetry.Metrics) {
	client := rpc.NewClient(cfg.Monitor.RPCURL, 10*time.Second)
	worker := ingest.New(client, store, store, absence, metrics, ingest.Config{
		StartHeight:      cfg.Monitor.StartHeight,
		MinPaymentAmount: cfg.Monitor.MinPaymentAmount,
		PollInterval:     time.Duration(cfg.Monitor.PollIntervalSecs) * time.Second,
		MinConfirmations: cfg.Monitor.MinConfirmations,
	})

	go worker.Run(ctx)
	slog.Info("embedded ingestion worker started", "rpc_url", cfg.Monitor.RPCURL, "start_height", cfg.Monitor.StartHeight)
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.API.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.API.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.API.IdleTimeoutSec) * time.Second,
	}
}

// serveListener binds either a Unix socket (preferred when set) or a TCP
// address and serves until Shutdown is called.
func serveListener(srv *http.Server, unixSocket, bindAddress, name string) {
	var ln net.Listener
	var err error
	if unixSocket != "" {
		os.Remove(unixSocket)
		ln, err = net.Listen("unix", unixSocket)
		if err == nil {
			slog.Info("listener bound", "name", name, "unix_socket", unixSocket)
		}
	} else {
		ln, err = net.Listen("tcp", bindAddress)
		if err == nil {
			slog.Info("listener bound", "name", name, "bind_address", bindAddress)
		}
	}
	if err != nil {
		log.Fatalf("%s listener: %v", name, err)
	}

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Fatalf("%s listener serve: %v", name, err)
	}
}
