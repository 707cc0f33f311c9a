package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "replay" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"zero capacity", func(c *Config) { c.Queue.Capacity = 0 }},
		{"threshold over 100", func(c *Config) { c.Queue.CongestionThresholdPct = 150 }},
		{"trade ceiling above batch", func(c *Config) {
			c.Queue.CUCeilingPerTrade = 2_000_000
		}},
		{"zero shards", func(c *Config) { c.Liquidation.ShardCount = 0 }},
		{"partial bps over 10000", func(c *Config) { c.Liquidation.MaxPartialBps = 20_000 }},
		{"encrypted key without password", func(c *Config) {
			c.Keeper.EncryptedKeyPath = "/tmp/key.json"
		}},
		{"bucket without credentials", func(c *Config) { c.S3.Bucket = "archive" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "queue"

[queue]
capacity = 256
tick_interval = "250ms"

[redis]
addr = "redis.internal:6380"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "queue", cfg.Mode)
	assert.Equal(t, 256, cfg.Queue.Capacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.TickInterval.Duration)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Liquidation.ShardCount)
	assert.Equal(t, uint64(5), cfg.MEV.RevealDelaySlots)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("VERSEQUEUE_MODE", "liquidation")
	t.Setenv("VERSEQUEUE_REDIS_ADDR", "envhost:6379")
	t.Setenv("VERSEQUEUE_QUEUE_TICK_INTERVAL", "1s")
	t.Setenv("VERSEQUEUE_LIQUIDATION_HALT_MAX_COUNT", "42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "liquidation", cfg.Mode)
	assert.Equal(t, "envhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Second, cfg.Queue.TickInterval.Duration)
	assert.Equal(t, 42, cfg.Liquidation.HaltMaxCount)
}
