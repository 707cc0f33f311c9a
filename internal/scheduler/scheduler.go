// Package scheduler drives the tick loops: queue processing, liquidation
// processing, commitment expiry, and periodic archival. Every tick builds a
// fresh compute budget; nothing carries over between ticks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/versefi/versequeue/internal/blob/s3"
	"github.com/versefi/versequeue/internal/budget"
	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/liquidation"
	"github.com/versefi/versequeue/internal/mev"
	"github.com/versefi/versequeue/internal/priority"
)

// Config tunes the scheduler loops.
type Config struct {
	// TickInterval paces both processing loops; it normally matches the
	// slot duration.
	TickInterval time.Duration

	// CUCeilingPerBatch is the fresh compute budget each tick receives.
	CUCeilingPerBatch uint64

	// MaxTradesPerTick bounds queue drain per tick.
	MaxTradesPerTick int

	// PurgeInterval paces expired-commitment cleanup.
	PurgeInterval time.Duration

	// ArchiveInterval paces cold-storage flushes. Zero disables archival
	// even when an archiver is wired.
	ArchiveInterval time.Duration

	// ClaimTTL is the lease on the cross-node liquidation claim.
	ClaimTTL time.Duration
}

// DefaultConfig matches production pacing.
func DefaultConfig() Config {
	return Config{
		TickInterval:      400 * time.Millisecond,
		CUCeilingPerBatch: 1_400_000,
		MaxTradesPerTick:  32,
		PurgeInterval:     30 * time.Second,
		ArchiveInterval:   5 * time.Minute,
		ClaimTTL:          10 * time.Second,
	}
}

// Scheduler owns the background loops. Processor and engine are required;
// commits, claims, events, and archiver are optional and disable their loop
// or side channel when nil.
type Scheduler struct {
	cfg       Config
	processor *priority.Processor
	engine    *liquidation.Engine
	commits   *mev.CommitReveal

	congestion *priority.CongestionManager
	slots      domain.SlotSource
	events     domain.EventPublisher
	claims     domain.ClaimManager
	archiver   *s3blob.Archiver

	mu            sync.Mutex
	queueReports  []priority.Report
	engineReports []liquidation.Report

	logger *slog.Logger
}

// New creates the scheduler.
func New(cfg Config, processor *priority.Processor, engine *liquidation.Engine,
	commits *mev.CommitReveal, congestion *priority.CongestionManager,
	slots domain.SlotSource, events domain.EventPublisher, claims domain.ClaimManager,
	archiver *s3blob.Archiver, logger *slog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.CUCeilingPerBatch == 0 {
		cfg.CUCeilingPerBatch = DefaultConfig().CUCeilingPerBatch
	}
	if cfg.MaxTradesPerTick <= 0 {
		cfg.MaxTradesPerTick = DefaultConfig().MaxTradesPerTick
	}
	return &Scheduler{
		cfg:        cfg,
		processor:  processor,
		engine:     engine,
		commits:    commits,
		congestion: congestion,
		slots:      slots,
		events:     events,
		claims:     claims,
		archiver:   archiver,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts all loops and blocks until the context is cancelled. Context
// cancellation is a clean shutdown, not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("tick_interval", s.cfg.TickInterval),
		slog.Uint64("cu_ceiling_per_batch", s.cfg.CUCeilingPerBatch))

	g, ctx := errgroup.WithContext(ctx)

	if s.processor != nil {
		g.Go(func() error {
			return s.runLoop(ctx, s.cfg.TickInterval, s.queueTick)
		})
	}
	if s.engine != nil {
		g.Go(func() error {
			return s.runLoop(ctx, s.cfg.TickInterval, s.liquidationTick)
		})
	}
	if s.commits != nil && s.cfg.PurgeInterval > 0 {
		g.Go(func() error {
			return s.runLoop(ctx, s.cfg.PurgeInterval, s.purgeTick)
		})
	}
	if s.archiver != nil && s.cfg.ArchiveInterval > 0 {
		g.Go(func() error {
			return s.runLoop(ctx, s.cfg.ArchiveInterval, s.archiveTick)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// runLoop ticks fn at the interval until the context ends. Tick errors are
// logged but never stop the loop; only context cancellation does.
func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Warn("tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Scheduler) queueTick(ctx context.Context) error {
	slot := s.slots.CurrentSlot()
	execCtx := budget.NewExecutionContext(slot, s.cfg.CUCeilingPerBatch)

	report := s.processor.ProcessTick(ctx, execCtx, s.cfg.MaxTradesPerTick)

	if s.congestion != nil {
		s.congestion.ObserveTick(slot, report.Dispatched)
	}

	s.mu.Lock()
	s.queueReports = append(s.queueReports, report)
	s.mu.Unlock()

	if report.Dispatched > 0 || report.Expired > 0 || report.Failed > 0 {
		s.publishTick(ctx, slot, map[string]any{
			"loop":        "queue",
			"dispatched":  report.Dispatched,
			"expired":     report.Expired,
			"failed":      report.Failed,
			"remaining":   report.Remaining,
			"cu_consumed": report.CUConsumed,
		})
	}
	return nil
}

func (s *Scheduler) liquidationTick(ctx context.Context) error {
	// In multi-node deployments a short lease elects one node per tick;
	// losing the claim is a skip, not an error.
	if s.claims != nil {
		release, err := s.claims.Claim(ctx, "scheduler:liquidation", s.cfg.ClaimTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return fmt.Errorf("liquidation claim: %w", err)
		}
		defer release()
	}

	slot := s.slots.CurrentSlot()
	execCtx := budget.NewExecutionContext(slot, s.cfg.CUCeilingPerBatch)

	report, err := s.engine.ProcessTick(ctx, execCtx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engineReports = append(s.engineReports, report)
	s.mu.Unlock()

	if report.Executed > 0 || report.Failed > 0 || report.Expired > 0 {
		s.publishTick(ctx, slot, map[string]any{
			"loop":        "liquidation",
			"executed":    report.Executed,
			"skipped":     report.Skipped,
			"failed":      report.Failed,
			"expired":     report.Expired,
			"cu_consumed": report.CUConsumed,
		})
	}
	return nil
}

func (s *Scheduler) purgeTick(context.Context) error {
	n := s.commits.PurgeExpired(s.slots.CurrentSlot())
	if n > 0 {
		s.logger.Debug("purged expired commitments", slog.Int("count", n))
	}
	return nil
}

func (s *Scheduler) archiveTick(ctx context.Context) error {
	s.mu.Lock()
	queueBatch := s.queueReports
	engineBatch := s.engineReports
	s.queueReports = nil
	s.engineReports = nil
	s.mu.Unlock()

	now := time.Now().UTC()
	if err := s.archiver.ArchiveTickReports(ctx, now, queueBatch); err != nil {
		return fmt.Errorf("archiving queue reports: %w", err)
	}
	if err := s.archiver.ArchiveLiquidationReports(ctx, now, engineBatch); err != nil {
		return fmt.Errorf("archiving liquidation reports: %w", err)
	}
	if len(queueBatch)+len(engineBatch) > 0 {
		s.logger.Info("archived tick reports",
			slog.Int("queue", len(queueBatch)),
			slog.Int("liquidation", len(engineBatch)))
	}
	return nil
}

func (s *Scheduler) publishTick(ctx context.Context, slot uint64, payload any) {
	if s.events == nil {
		return
	}
	ev := domain.Event{Kind: domain.EventTickProcessed, Slot: slot, At: time.Now().UTC(), Payload: payload}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}
