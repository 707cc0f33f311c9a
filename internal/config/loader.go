package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VERSEQUEUE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load. An empty path
// skips the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VERSEQUEUE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Queue ──
	setInt(&cfg.Queue.Capacity, "VERSEQUEUE_QUEUE_CAPACITY")
	setInt(&cfg.Queue.CongestionThresholdPct, "VERSEQUEUE_QUEUE_CONGESTION_THRESHOLD_PCT")
	setUint64(&cfg.Queue.BaseFee, "VERSEQUEUE_QUEUE_BASE_FEE")
	setUint64(&cfg.Queue.MaxFeeMultiplier, "VERSEQUEUE_QUEUE_MAX_FEE_MULTIPLIER")
	setDuration(&cfg.Queue.TickInterval, "VERSEQUEUE_QUEUE_TICK_INTERVAL")
	setInt(&cfg.Queue.MaxTradesPerTick, "VERSEQUEUE_QUEUE_MAX_TRADES_PER_TICK")
	setUint64(&cfg.Queue.CUCeilingPerTrade, "VERSEQUEUE_QUEUE_CU_CEILING_PER_TRADE")
	setUint64(&cfg.Queue.CUCeilingPerBatch, "VERSEQUEUE_QUEUE_CU_CEILING_PER_BATCH")
	setUint32(&cfg.Queue.MaxLeverageX100, "VERSEQUEUE_QUEUE_MAX_LEVERAGE_X100")
	setInt(&cfg.Queue.RateLimit, "VERSEQUEUE_QUEUE_RATE_LIMIT")
	setDuration(&cfg.Queue.RateWindow, "VERSEQUEUE_QUEUE_RATE_WINDOW")

	// ── MEV ──
	setUint64(&cfg.MEV.RevealDelaySlots, "VERSEQUEUE_MEV_REVEAL_DELAY_SLOTS")
	setUint64(&cfg.MEV.RevealGraceSlots, "VERSEQUEUE_MEV_REVEAL_GRACE_SLOTS")
	setUint64(&cfg.MEV.SandwichLookbackSlots, "VERSEQUEUE_MEV_SANDWICH_LOOKBACK_SLOTS")
	setUint64(&cfg.MEV.SandwichMinFrontrunAmount, "VERSEQUEUE_MEV_SANDWICH_MIN_FRONTRUN_AMOUNT")
	setUint32(&cfg.MEV.SandwichImpactThresholdBps, "VERSEQUEUE_MEV_SANDWICH_IMPACT_THRESHOLD_BPS")
	setUint64(&cfg.MEV.TradeWindowMaxAgeSlots, "VERSEQUEUE_MEV_TRADE_WINDOW_MAX_AGE_SLOTS")
	setInt(&cfg.MEV.TradeWindowMaxCount, "VERSEQUEUE_MEV_TRADE_WINDOW_MAX_COUNT")

	// ── Liquidation ──
	setInt(&cfg.Liquidation.ShardCount, "VERSEQUEUE_LIQUIDATION_SHARD_COUNT")
	setUint32(&cfg.Liquidation.MaxPartialBps, "VERSEQUEUE_LIQUIDATION_MAX_PARTIAL_BPS")
	setUint64(&cfg.Liquidation.RoundGraceSlots, "VERSEQUEUE_LIQUIDATION_ROUND_GRACE_SLOTS")
	setInt(&cfg.Liquidation.MaxPerShardPerTick, "VERSEQUEUE_LIQUIDATION_MAX_PER_SHARD_PER_TICK")
	setUint64(&cfg.Liquidation.HaltWindowSlots, "VERSEQUEUE_LIQUIDATION_HALT_WINDOW_SLOTS")
	setInt(&cfg.Liquidation.HaltMaxCount, "VERSEQUEUE_LIQUIDATION_HALT_MAX_COUNT")
	setUint64(&cfg.Liquidation.HaltMaxValue, "VERSEQUEUE_LIQUIDATION_HALT_MAX_VALUE")
	setUint64(&cfg.Liquidation.HaltSlots, "VERSEQUEUE_LIQUIDATION_HALT_SLOTS")
	setInt(&cfg.Liquidation.RateLimit, "VERSEQUEUE_LIQUIDATION_RATE_LIMIT")

	// ── Clock ──
	setInt64(&cfg.Clock.GenesisUnixMs, "VERSEQUEUE_CLOCK_GENESIS_UNIX_MS")
	setDuration(&cfg.Clock.SlotDuration, "VERSEQUEUE_CLOCK_SLOT_DURATION")

	// ── AMM ──
	setStr(&cfg.AMM.BaseURL, "VERSEQUEUE_AMM_BASE_URL")

	// ── Keeper ──
	setStr(&cfg.Keeper.PrivateKey, "VERSEQUEUE_KEEPER_PRIVATE_KEY")
	setStr(&cfg.Keeper.EncryptedKeyPath, "VERSEQUEUE_KEEPER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Keeper.KeyPassword, "VERSEQUEUE_KEEPER_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VERSEQUEUE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VERSEQUEUE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VERSEQUEUE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VERSEQUEUE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VERSEQUEUE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VERSEQUEUE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VERSEQUEUE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VERSEQUEUE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VERSEQUEUE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VERSEQUEUE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VERSEQUEUE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VERSEQUEUE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VERSEQUEUE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VERSEQUEUE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VERSEQUEUE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VERSEQUEUE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VERSEQUEUE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VERSEQUEUE_S3_REGION")
	setStr(&cfg.S3.Bucket, "VERSEQUEUE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VERSEQUEUE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VERSEQUEUE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VERSEQUEUE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VERSEQUEUE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "VERSEQUEUE_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VERSEQUEUE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VERSEQUEUE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VERSEQUEUE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VERSEQUEUE_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "VERSEQUEUE_MODE")
	setStr(&cfg.LogLevel, "VERSEQUEUE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
