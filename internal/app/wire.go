package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/versefi/versequeue/internal/amm"
	s3blob "github.com/versefi/versequeue/internal/blob/s3"
	"github.com/versefi/versequeue/internal/cache/redis"
	"github.com/versefi/versequeue/internal/clock"
	"github.com/versefi/versequeue/internal/config"
	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/liquidation"
	"github.com/versefi/versequeue/internal/mev"
	"github.com/versefi/versequeue/internal/priority"
	"github.com/versefi/versequeue/internal/service"
	"github.com/versefi/versequeue/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Infrastructure
	Redis            *redis.Client
	Postgres         *postgres.Client
	EventBus         *redis.EventBus
	RateLimiter      domain.RateLimiter
	Claims           domain.ClaimManager
	EntryStore       domain.EntryStore
	LiquidationStore domain.LiquidationStore
	Archiver         *s3blob.Archiver

	// Market access: one client serves as state source and both executors.
	Market *amm.Client
	Clock  *clock.SlotClock

	// Queue subsystem
	Queue      *priority.Queue
	Congestion *priority.CongestionManager
	Fees       *priority.FeeSchedule
	Processor  *priority.Processor

	// MEV protection
	Window  *mev.TradeWindow
	Commits *mev.CommitReveal

	// Liquidation subsystem
	Engine *liquidation.Engine

	// Services
	Admission    *service.AdmissionService
	Liquidations *service.LiquidationService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.EntryStore = postgres.NewEntryStore(pool)
	deps.LiquidationStore = postgres.NewLiquidationStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	deps.EventBus = redis.NewEventBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Claims = redis.NewClaimManager(redisClient)

	// --- S3 archival (optional: disabled when no bucket is configured) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	// --- Slot clock ---
	genesis := time.Now().UTC()
	if cfg.Clock.GenesisUnixMs > 0 {
		genesis = time.UnixMilli(cfg.Clock.GenesisUnixMs).UTC()
	}
	deps.Clock = clock.NewSlotClock(genesis, cfg.Clock.SlotDuration.Duration)

	// --- Market client (keeper-signed when a key is configured) ---
	var market *amm.Client
	if cfg.Keeper.PrivateKey != "" || cfg.Keeper.EncryptedKeyPath != "" {
		key, err := crypto.LoadKeeperKey(crypto.KeeperKeyConfig{
			RawPrivateKey:    cfg.Keeper.PrivateKey,
			EncryptedKeyPath: cfg.Keeper.EncryptedKeyPath,
			KeyPassword:      cfg.Keeper.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: keeper key: %w", err)
		}
		market = amm.NewClient(cfg.AMM.BaseURL, key)
		logger.InfoContext(ctx, "keeper signing enabled",
			slog.String("address", crypto.KeeperAddress(key)),
		)
	} else {
		market = amm.NewClient(cfg.AMM.BaseURL, nil)
		logger.WarnContext(ctx, "no keeper key configured, dispatch requests will be unsigned")
	}
	deps.Market = market

	// --- Queue subsystem ---
	deps.Queue = priority.NewQueue(cfg.Queue.Capacity)
	deps.Congestion = priority.NewCongestionManager(uint8(cfg.Queue.CongestionThresholdPct))
	deps.Fees = priority.NewFeeSchedule(cfg.Queue.BaseFee, cfg.Queue.MaxFeeMultiplier)

	// --- MEV protection ---
	detector := mev.NewDetector(mev.DetectorConfig{
		LookbackSlots:      cfg.MEV.SandwichLookbackSlots,
		MinFrontrunAmount:  cfg.MEV.SandwichMinFrontrunAmount,
		ImpactThresholdBps: cfg.MEV.SandwichImpactThresholdBps,
	})
	deps.Window = mev.NewTradeWindow(cfg.MEV.TradeWindowMaxAgeSlots, cfg.MEV.TradeWindowMaxCount)
	deps.Commits = mev.NewCommitReveal(mev.CommitRevealConfig{
		RevealDelaySlots: cfg.MEV.RevealDelaySlots,
		GraceSlots:       cfg.MEV.RevealGraceSlots,
	})

	deps.Processor = priority.NewProcessor(deps.Queue, market, deps.EventBus,
		deps.EntryStore, deps.Window, deps.Congestion, logger)

	// --- Liquidation engine ---
	deps.Engine = liquidation.NewEngine(liquidation.EngineConfig{
		ShardCount:         cfg.Liquidation.ShardCount,
		MaxPartialBps:      cfg.Liquidation.MaxPartialBps,
		RoundGraceSlots:    cfg.Liquidation.RoundGraceSlots,
		MaxPerShardPerTick: cfg.Liquidation.MaxPerShardPerTick,
		Halt: liquidation.HaltConfig{
			WindowSlots: cfg.Liquidation.HaltWindowSlots,
			MaxCount:    cfg.Liquidation.HaltMaxCount,
			MaxValue:    cfg.Liquidation.HaltMaxValue,
			HaltSlots:   cfg.Liquidation.HaltSlots,
		},
	}, market, market, deps.EventBus, deps.LiquidationStore, logger)

	// --- Services ---
	deps.Admission = service.NewAdmissionService(service.AdmissionConfig{
		MaxLeverageX100:   cfg.Queue.MaxLeverageX100,
		CUCeilingPerTrade: cfg.Queue.CUCeilingPerTrade,
		RateLimit:         cfg.Queue.RateLimit,
		RateWindow:        cfg.Queue.RateWindow.Duration,
	}, deps.Queue, priority.NewCalculator(priority.DefaultWeights()), deps.Congestion,
		deps.Fees, detector, deps.Window, deps.Commits, market, deps.Clock,
		deps.EventBus, deps.EntryStore, deps.RateLimiter, logger)

	deps.Liquidations = service.NewLiquidationService(deps.Engine, market, deps.Clock,
		deps.RateLimiter, cfg.Liquidation.RateLimit, cfg.Queue.RateWindow.Duration, logger)

	return deps, cleanup, nil
}
