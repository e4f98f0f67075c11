package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	clearEnv(t, "ORACLE_HOST", "ORACLE_PORT", "BUFFER_MAX_SIZE", "BUFFER_BATCH_SIZE",
		"MAX_POLLING_GROUPS", "CONSOLE_SSH_ADDR", "WEBSOCKET_ADDR", "CONFIG_STORE_PATH")

	cfg := Load()

	assert.Equal(t, "localhost", cfg.Oracle.Host)
	assert.Equal(t, 1521, cfg.Oracle.Port)
	assert.Equal(t, 100_000, cfg.Buffer.MaxSize)
	assert.Equal(t, 500, cfg.Buffer.BatchSize)
	assert.Equal(t, 10, cfg.Polling.MaxPollingGroups)
	assert.Equal(t, "", cfg.Console.SSHAddr)
	assert.Equal(t, "", cfg.Websocket.Addr)
	assert.Equal(t, "./configstore.yaml", cfg.ConfigStorePath)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t, "ORACLE_HOST", "BUFFER_WRITE_INTERVAL", "WEBSOCKET_ADDR")
	os.Setenv("ORACLE_HOST", "oracle.internal")
	os.Setenv("BUFFER_WRITE_INTERVAL", "2.5")
	os.Setenv("WEBSOCKET_ADDR", ":8090")

	cfg := Load()

	assert.Equal(t, "oracle.internal", cfg.Oracle.Host)
	assert.Equal(t, 2500*time.Millisecond, cfg.Buffer.WriteInterval)
	assert.Equal(t, ":8090", cfg.Websocket.Addr)
}

func TestClamp_OutOfRangeValuePassesThroughUnchanged(t *testing.T) {
	assert.Equal(t, 50, clamp(50, 100, 1000))
	assert.Equal(t, 5000, clamp(5000, 100, 1000))
	assert.Equal(t, 500, clamp(500, 100, 1000))
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitNonEmpty("a,b,c"))
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a"}, splitNonEmpty("a,,"))
}
