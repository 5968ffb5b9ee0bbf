// Package config assembles the process Config purely from environment
// variables, the same applyEnvOverrides/applyDefaults/singleton shape the
// teacher uses, minus the YAML file layer: every key here is already a
// complete configuration contract on its own.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved process configuration, loaded once at
// startup from the environment.
type Config struct {
	Env string // OCX_ENV: "production" selects JSON logging

	Database  DatabaseConfig
	API       APIConfig
	Cache     CacheConfig
	Monitor   MonitorConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	URL string // DATABASE_URL
}

// APIConfig holds the two-listener HTTP surface configuration.
type APIConfig struct {
	BindAddress         string // API_BIND_ADDRESS
	UnixSocket          string // API_UNIX_SOCKET (overrides BindAddress when set)
	InternalBindAddress string // API_INTERNAL_BIND_ADDRESS
	InternalUnixSocket  string // API_INTERNAL_UNIX_SOCKET

	ReadTimeoutSec     int
	WriteTimeoutSec    int
	IdleTimeoutSec     int
	ShutdownTimeoutSec int

	AllowNoMonitor bool // API_ALLOW_NO_MONITOR
	AllowNoBloom   bool // API_ALLOW_NO_BLOOM
}

// HasInternalListener reports whether an internal listener address was
// configured (TCP or Unix socket).
func (a APIConfig) HasInternalListener() bool {
	return a.InternalBindAddress != "" || a.InternalUnixSocket != ""
}

// CacheConfig holds the absence cache's tunables.
type CacheConfig struct {
	PIDCacheTTLSecs  int     // API_PID_CACHE_TTL_SECS
	PIDCacheCapacity int64   // API_PID_CACHE_CAPACITY
	PIDBloomEntries  uint    // API_PID_BLOOM_ENTRIES
	PIDBloomFPRate   float64 // API_PID_BLOOM_FP_RATE
}

// MonitorConfig holds the embedded/standalone ingestion worker's tunables.
type MonitorConfig struct {
	RPCURL            string // MONERO_RPC_URL
	StartHeight       int64  // MONITOR_START_HEIGHT
	MinPaymentAmount  int64  // MONITOR_MIN_PAYMENT_AMOUNT
	PollIntervalSecs  int    // MONITOR_POLL_INTERVAL_SECS
	MinConfirmations  int64  // MONITOR_MIN_CONFIRMATIONS
}

// TelemetryConfig holds the logging/metrics knobs.
type TelemetryConfig struct {
	LogFilter      string // <PREFIX>_LOG_FILTER
	MetricsAddress string // <PREFIX>_METRICS_ADDRESS
}

// IsProduction reports whether OCX_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton Config, loading it from the environment (and an
// optional .env file) on first call.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}
		instance = load()
	})
	return instance
}

// load assembles a Config from the current environment and applies
// defaults for every key the environment leaves unset.
func load() *Config {
	cfg := &Config{
		Env: getEnv("OCX_ENV", "development"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		API: APIConfig{
			BindAddress:         getEnv("API_BIND_ADDRESS", ""),
			UnixSocket:          getEnv("API_UNIX_SOCKET", ""),
			InternalBindAddress: getEnv("API_INTERNAL_BIND_ADDRESS", ""),
			InternalUnixSocket:  getEnv("API_INTERNAL_UNIX_SOCKET", ""),
			ReadTimeoutSec:      getEnvInt("API_READ_TIMEOUT_SEC", 15),
			WriteTimeoutSec:     getEnvInt("API_WRITE_TIMEOUT_SEC", 15),
			IdleTimeoutSec:      getEnvInt("API_IDLE_TIMEOUT_SEC", 60),
			ShutdownTimeoutSec:  getEnvInt("API_SHUTDOWN_TIMEOUT_SEC", 30),
			AllowNoMonitor:      getEnvBool("API_ALLOW_NO_MONITOR", false),
			AllowNoBloom:        getEnvBool("API_ALLOW_NO_BLOOM", false),
		},
		Cache: CacheConfig{
			PIDCacheTTLSecs:  getEnvInt("API_PID_CACHE_TTL_SECS", 60),
			PIDCacheCapacity: int64(getEnvInt("API_PID_CACHE_CAPACITY", 100_000)),
			PIDBloomEntries:  uint(getEnvInt("API_PID_BLOOM_ENTRIES", 100_000)),
			PIDBloomFPRate:   getEnvFloat("API_PID_BLOOM_FP_RATE", 0.01),
		},
		Monitor: MonitorConfig{
			RPCURL:           getEnv("MONERO_RPC_URL", ""),
			StartHeight:      int64(getEnvInt("MONITOR_START_HEIGHT", 0)),
			MinPaymentAmount: int64(getEnvInt("MONITOR_MIN_PAYMENT_AMOUNT", 1_000_000)),
			PollIntervalSecs: getEnvInt("MONITOR_POLL_INTERVAL_SECS", 5),
			MinConfirmations: int64(getEnvInt("MONITOR_MIN_CONFIRMATIONS", 10)),
		},
		Telemetry: TelemetryConfig{
			LogFilter:      getEnv("OCX_LOG_FILTER", "info"),
			MetricsAddress: getEnv("OCX_METRICS_ADDRESS", ""),
		},
	}
	return cfg
}

// Validate enforces the required/one-of rules of the external interfaces
// contract. cmd/api treats a non-nil return as a fatal bootstrap failure;
// cmd/monitor does not call it and checks only MONERO_RPC_URL and
// DATABASE_URL itself.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.API.BindAddress == "" {
		return fmt.Errorf("config: API_BIND_ADDRESS is required")
	}
	if !c.API.HasInternalListener() {
		return fmt.Errorf("config: one of API_INTERNAL_BIND_ADDRESS or API_INTERNAL_UNIX_SOCKET is required")
	}
	if !c.API.AllowNoMonitor {
		if c.Monitor.RPCURL == "" {
			return fmt.Errorf("config: MONERO_RPC_URL is required unless API_ALLOW_NO_MONITOR=true")
		}
		if c.Monitor.StartHeight == 0 {
			return fmt.Errorf("config: MONITOR_START_HEIGHT is required unless API_ALLOW_NO_MONITOR=true")
		}
	}
	return nil
}

// LogLevel parses the configured log filter into an slog.Level, defaulting
// to Info on an unrecognized value.
func (t TelemetryConfig) LogLevel() slog.Level {
	switch t.LogFilter {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
