// Package config defines the top-level configuration for the queue service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VERSEQUEUE_* environment
// variables.
type Config struct {
	Queue       QueueConfig       `toml:"queue"`
	MEV         MEVConfig         `toml:"mev"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Clock       ClockConfig       `toml:"clock"`
	AMM         AMMConfig         `toml:"amm"`
	Keeper      KeeperConfig      `toml:"keeper"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// QueueConfig holds admission and tick-processing parameters.
type QueueConfig struct {
	Capacity               int      `toml:"capacity"`
	CongestionThresholdPct int      `toml:"congestion_threshold_pct"`
	BaseFee                uint64   `toml:"base_fee"`
	MaxFeeMultiplier       uint64   `toml:"max_fee_multiplier"`
	TickInterval           duration `toml:"tick_interval"`
	MaxTradesPerTick       int      `toml:"max_trades_per_tick"`
	CUCeilingPerTrade      uint64   `toml:"cu_ceiling_per_trade"`
	CUCeilingPerBatch      uint64   `toml:"cu_ceiling_per_batch"`
	MaxLeverageX100        uint32   `toml:"max_leverage_x100"`
	RateLimit              int      `toml:"rate_limit"`
	RateWindow             duration `toml:"rate_window"`
}

// MEVConfig holds commit-reveal and sandwich-detection parameters.
type MEVConfig struct {
	RevealDelaySlots           uint64 `toml:"reveal_delay_slots"`
	RevealGraceSlots           uint64 `toml:"reveal_grace_slots"`
	SandwichLookbackSlots      uint64 `toml:"sandwich_lookback_slots"`
	SandwichMinFrontrunAmount  uint64 `toml:"sandwich_min_frontrun_amount"`
	SandwichImpactThresholdBps uint32 `toml:"sandwich_impact_threshold_bps"`
	TradeWindowMaxAgeSlots     uint64 `toml:"trade_window_max_age_slots"`
	TradeWindowMaxCount        int    `toml:"trade_window_max_count"`
}

// LiquidationConfig holds sharded liquidation engine parameters.
type LiquidationConfig struct {
	ShardCount         int    `toml:"shard_count"`
	MaxPartialBps      uint32 `toml:"max_partial_bps"`
	RoundGraceSlots    uint64 `toml:"round_grace_slots"`
	MaxPerShardPerTick int    `toml:"max_per_shard_per_tick"`
	HaltWindowSlots    uint64 `toml:"halt_window_slots"`
	HaltMaxCount       int    `toml:"halt_max_count"`
	HaltMaxValue       uint64 `toml:"halt_max_value"`
	HaltSlots          uint64 `toml:"halt_slots"`
	RateLimit          int    `toml:"rate_limit"`
}

// ClockConfig anchors the slot clock. GenesisUnixMs of zero means process
// start time, which is only suitable for local development.
type ClockConfig struct {
	GenesisUnixMs int64    `toml:"genesis_unix_ms"`
	SlotDuration  duration `toml:"slot_duration"`
}

// AMMConfig holds the market endpoint the executor dispatches against.
type AMMConfig struct {
	BaseURL string `toml:"base_url"`
}

// KeeperConfig holds the signing key used on dispatch requests. Either the
// raw hex key or an encrypted key file plus password.
type KeeperConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for report
// archival. An empty bucket disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration wraps time.Duration so TOML can decode strings like "400ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Queue: QueueConfig{
			Capacity:               1024,
			CongestionThresholdPct: 75,
			BaseFee:                10_000,
			MaxFeeMultiplier:       8,
			TickInterval:           duration{400 * time.Millisecond},
			MaxTradesPerTick:       32,
			CUCeilingPerTrade:      200_000,
			CUCeilingPerBatch:      1_400_000,
			MaxLeverageX100:        2_000,
			RateLimit:              10,
			RateWindow:             duration{10 * time.Second},
		},
		MEV: MEVConfig{
			RevealDelaySlots:           5,
			RevealGraceSlots:           50,
			SandwichLookbackSlots:      10,
			SandwichMinFrontrunAmount:  1_000,
			SandwichImpactThresholdBps: 200,
			TradeWindowMaxAgeSlots:     64,
			TradeWindowMaxCount:        4096,
		},
		Liquidation: LiquidationConfig{
			ShardCount:         4,
			MaxPartialBps:      5_000,
			RoundGraceSlots:    20,
			MaxPerShardPerTick: 16,
			HaltWindowSlots:    300,
			HaltMaxCount:       100,
			HaltMaxValue:       10_000_000,
			HaltSlots:          600,
			RateLimit:          30,
		},
		Clock: ClockConfig{
			SlotDuration: duration{400 * time.Millisecond},
		},
		AMM: AMMConfig{
			BaseURL: "http://localhost:8090",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "versequeue",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "versequeue",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"queue":       true,
	"liquidation": true,
	"full":        true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: queue, liquidation, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue: capacity must be >= 1")
	}
	if c.Queue.CongestionThresholdPct < 1 || c.Queue.CongestionThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("queue: congestion_threshold_pct must be 1-100, got %d", c.Queue.CongestionThresholdPct))
	}
	if c.Queue.TickInterval.Duration <= 0 {
		errs = append(errs, "queue: tick_interval must be positive")
	}
	if c.Queue.CUCeilingPerTrade == 0 || c.Queue.CUCeilingPerBatch == 0 {
		errs = append(errs, "queue: cu_ceiling_per_trade and cu_ceiling_per_batch must be positive")
	}
	if c.Queue.CUCeilingPerTrade > c.Queue.CUCeilingPerBatch {
		errs = append(errs, "queue: cu_ceiling_per_trade must not exceed cu_ceiling_per_batch")
	}
	if c.Queue.MaxLeverageX100 < 100 {
		errs = append(errs, "queue: max_leverage_x100 must be at least 100 (1x)")
	}

	if c.MEV.RevealGraceSlots == 0 {
		errs = append(errs, "mev: reveal_grace_slots must be positive")
	}
	if c.MEV.SandwichImpactThresholdBps == 0 {
		errs = append(errs, "mev: sandwich_impact_threshold_bps must be positive")
	}

	if c.Liquidation.ShardCount < 1 {
		errs = append(errs, "liquidation: shard_count must be >= 1")
	}
	if c.Liquidation.MaxPartialBps == 0 || c.Liquidation.MaxPartialBps > 10_000 {
		errs = append(errs, fmt.Sprintf("liquidation: max_partial_bps must be 1-10000, got %d", c.Liquidation.MaxPartialBps))
	}
	if c.Liquidation.HaltWindowSlots == 0 || c.Liquidation.HaltSlots == 0 {
		errs = append(errs, "liquidation: halt_window_slots and halt_slots must be positive")
	}

	if c.Clock.SlotDuration.Duration <= 0 {
		errs = append(errs, "clock: slot_duration must be positive")
	}

	if c.AMM.BaseURL == "" {
		errs = append(errs, "amm: base_url must not be empty")
	}

	if c.Keeper.EncryptedKeyPath != "" && c.Keeper.KeyPassword == "" {
		errs = append(errs, "keeper: key_password is required when encrypted_key_path is set")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when a bucket is configured")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, "s3: access_key and secret_key are required when a bucket is configured")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
