package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/liquidation"
)

// LiquidationParams is one keeper-submitted liquidation request.
type LiquidationParams struct {
	PositionID           string
	Liquidator           string
	MaxLiquidationAmount uint64
	MinProfitBps         uint16
	DeadlineSlot         uint64
}

// LiquidationResult reports an accepted request.
type LiquidationResult struct {
	RequestID  uuid.UUID
	PositionID string
	HealthBps  uint32
	Slot       uint64
}

// LiquidationService fronts the sharded engine: it verifies eligibility
// against live position health before a request ever takes a claim.
type LiquidationService struct {
	engine  *liquidation.Engine
	state   domain.MarketStateSource
	slots   domain.SlotSource
	limiter domain.RateLimiter

	// rateLimit/rateWindow bound per-liquidator submissions.
	rateLimit  int
	rateWindow time.Duration

	logger *slog.Logger
}

// NewLiquidationService creates the service. limiter may be nil.
func NewLiquidationService(engine *liquidation.Engine, state domain.MarketStateSource,
	slots domain.SlotSource, limiter domain.RateLimiter, rateLimit int, rateWindow time.Duration,
	logger *slog.Logger) *LiquidationService {
	return &LiquidationService{
		engine:     engine,
		state:      state,
		slots:      slots,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		logger:     logger.With(slog.String("component", "liquidation_service")),
	}
}

// RequestLiquidation validates and admits a liquidation request. The
// position must be below the health threshold right now; a healthy position
// is rejected without taking a claim.
func (s *LiquidationService) RequestLiquidation(ctx context.Context, params LiquidationParams) (LiquidationResult, error) {
	if params.PositionID == "" || params.Liquidator == "" {
		return LiquidationResult{}, fmt.Errorf("position and liquidator required: %w", domain.ErrInvalidInput)
	}

	if s.limiter != nil && s.rateLimit > 0 {
		ok, err := s.limiter.Allow(ctx, "liquidate:"+params.Liquidator, s.rateLimit, s.rateWindow)
		if err != nil {
			s.logger.Warn("rate limiter unavailable, failing open",
				slog.String("liquidator", params.Liquidator),
				slog.String("error", err.Error()))
		} else if !ok {
			return LiquidationResult{}, fmt.Errorf("liquidator %s: %w", params.Liquidator, domain.ErrRateLimited)
		}
	}

	health, err := s.state.PositionHealth(ctx, params.PositionID)
	if err != nil {
		return LiquidationResult{}, fmt.Errorf("reading health for %s: %w", params.PositionID, err)
	}
	if !health.Liquidatable() {
		return LiquidationResult{}, fmt.Errorf("position %s at %d bps: %w",
			params.PositionID, health.HealthBps(), domain.ErrPositionHealthy)
	}

	slot := s.slots.CurrentSlot()
	req := domain.LiquidationRequest{
		RequestID:            uuid.New(),
		PositionID:           params.PositionID,
		Liquidator:           params.Liquidator,
		MaxLiquidationAmount: params.MaxLiquidationAmount,
		MinProfitBps:         params.MinProfitBps,
		DeadlineSlot:         params.DeadlineSlot,
		SubmissionSlot:       slot,
		HealthBps:            health.HealthBps(),
		Value:                health.Debt,
	}

	if err := s.engine.Submit(ctx, req); err != nil {
		return LiquidationResult{}, err
	}

	s.logger.Info("liquidation queued",
		slog.String("request_id", req.RequestID.String()),
		slog.String("position_id", req.PositionID),
		slog.Uint64("health_bps", uint64(req.HealthBps)))

	return LiquidationResult{
		RequestID:  req.RequestID,
		PositionID: req.PositionID,
		HealthBps:  req.HealthBps,
		Slot:       slot,
	}, nil
}

// Resume closes an open circuit breaker. Operator action.
func (s *LiquidationService) Resume(ctx context.Context) bool {
	return s.engine.ResumeLiquidations(ctx, s.slots.CurrentSlot())
}

// Stats exposes engine occupancy for the status endpoint.
func (s *LiquidationService) Stats() liquidation.Stats {
	return s.engine.SnapshotStats(s.slots.CurrentSlot())
}
