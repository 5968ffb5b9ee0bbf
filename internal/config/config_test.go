package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RequiresDatabaseURL(t *testing.T) {
	cfg := &Config{
		API: APIConfig{BindAddress: ":8080", InternalBindAddress: ":8081"},
		Monitor: MonitorConfig{RPCURL: "http://wallet", StartHeight: 100},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestValidate_RequiresBindAddress(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://x"},
		API:      APIConfig{InternalBindAddress: ":8081"},
		Monitor:  MonitorConfig{RPCURL: "http://wallet", StartHeight: 100},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "API_BIND_ADDRESS")
}

func TestValidate_RequiresInternalListener(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://x"},
		API:      APIConfig{BindAddress: ":8080"},
		Monitor:  MonitorConfig{RPCURL: "http://wallet", StartHeight: 100},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "API_INTERNAL_BIND_ADDRESS")
}

func TestValidate_RequiresMonitorUnlessOptedOut(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://x"},
		API:      APIConfig{BindAddress: ":8080", InternalBindAddress: ":8081"},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "MONERO_RPC_URL")

	cfg.API.AllowNoMonitor = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Passes(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://x"},
		API:      APIConfig{BindAddress: ":8080", InternalBindAddress: ":8081"},
		Monitor:  MonitorConfig{RPCURL: "http://wallet", StartHeight: 100},
	}
	assert.NoError(t, cfg.Validate())
}

func TestAPIConfig_HasInternalListener(t *testing.T) {
	assert.True(t, APIConfig{InternalBindAddress: ":8081"}.HasInternalListener())
	assert.True(t, APIConfig{InternalUnixSocket: "/tmp/internal.sock"}.HasInternalListener())
	assert.False(t, APIConfig{}.HasInternalListener())
}

func TestTelemetryConfig_LogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", TelemetryConfig{LogFilter: "debug"}.LogLevel().String())
	assert.Equal(t, "INFO", TelemetryConfig{LogFilter: ""}.LogLevel().String())
	assert.Equal(t, "WARN", TelemetryConfig{LogFilter: "warn"}.LogLevel().String())
	assert.Equal(t, "ERROR", TelemetryConfig{LogFilter: "error"}.LogLevel().String())
}
