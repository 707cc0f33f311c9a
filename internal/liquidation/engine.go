package liquidation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/versefi/versequeue/internal/budget"
	"github.com/versefi/versequeue/internal/domain"
)

// EngineConfig tunes the sharded engine.
type EngineConfig struct {
	ShardCount         int
	MaxPartialBps      uint32
	RoundGraceSlots    uint64
	Levels             []Level
	Halt               HaltConfig
	MaxPerShardPerTick int
}

// DefaultEngineConfig matches the production defaults: 4 shards, half a
// position per round at most, 20 slots between rounds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ShardCount:         4,
		MaxPartialBps:      5_000,
		RoundGraceSlots:    20,
		Halt:               DefaultHaltConfig(),
		MaxPerShardPerTick: 16,
	}
}

// claimTable records which positions currently have a liquidation in
// flight. Claims are insert-or-fail: a second claimant on the same position
// loses immediately, which is what guarantees at most one winner.
type claimTable struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func newClaimTable() *claimTable {
	return &claimTable{claims: make(map[string]struct{})}
}

func (t *claimTable) Claim(positionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.claims[positionID]; ok {
		return fmt.Errorf("position %s claimed: %w", positionID, domain.ErrAlreadyLiquidating)
	}
	t.claims[positionID] = struct{}{}
	return nil
}

func (t *claimTable) Release(positionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.claims, positionID)
}

func (t *claimTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.claims)
}

type shard struct {
	queue  *shardQueue
	claims *claimTable
}

// Engine is the sharded liquidation coordinator. Positions are routed to a
// shard by hashing their id, so every request for one position lands on one
// shard and contends on one claim table. Shards process their queues in
// parallel inside ProcessTick, each against its own budget slice.
type Engine struct {
	cfg      EngineConfig
	shards   []*shard
	schedule *Schedule
	halt     *HaltTracker

	state  domain.MarketStateSource
	exec   domain.LiquidationExecutor
	events domain.EventPublisher
	store  domain.LiquidationStore

	logger *slog.Logger
}

// NewEngine builds the engine. state and exec are required; events and
// store may be nil, in which case those side channels are skipped.
func NewEngine(cfg EngineConfig, state domain.MarketStateSource, exec domain.LiquidationExecutor,
	events domain.EventPublisher, store domain.LiquidationStore, logger *slog.Logger) *Engine {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = DefaultEngineConfig().ShardCount
	}
	if cfg.MaxPerShardPerTick <= 0 {
		cfg.MaxPerShardPerTick = DefaultEngineConfig().MaxPerShardPerTick
	}

	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{queue: newShardQueue(), claims: newClaimTable()}
	}

	return &Engine{
		cfg:      cfg,
		shards:   shards,
		schedule: NewSchedule(cfg.Levels, cfg.MaxPartialBps, cfg.RoundGraceSlots),
		halt:     NewHaltTracker(cfg.Halt),
		state:    state,
		exec:     exec,
		events:   events,
		store:    store,
		logger:   logger.With(slog.String("component", "liquidation_engine")),
	}
}

// Submit admits a liquidation request. The position claim is taken here, at
// admission: the first request for a position wins it and every concurrent
// competitor fails with ErrAlreadyLiquidating. The claim is held until the
// request reaches a terminal outcome.
func (e *Engine) Submit(ctx context.Context, req domain.LiquidationRequest) error {
	if req.PositionID == "" || req.Liquidator == "" {
		return fmt.Errorf("position and liquidator required: %w", domain.ErrInvalidInput)
	}
	if e.halt.Halted(req.SubmissionSlot) {
		return fmt.Errorf("circuit breaker open: %w", domain.ErrLiquidationsHalted)
	}

	sh := e.shardFor(req.PositionID)
	if err := sh.claims.Claim(req.PositionID); err != nil {
		return err
	}
	if err := sh.queue.Push(req); err != nil {
		sh.claims.Release(req.PositionID)
		return err
	}

	e.publish(ctx, domain.EventLiquidationQueued, req.SubmissionSlot, map[string]any{
		"request_id":  req.RequestID.String(),
		"position_id": req.PositionID,
		"liquidator":  req.Liquidator,
		"health_bps":  req.HealthBps,
	})
	return nil
}

// ResumeLiquidations closes an open circuit breaker and returns whether it
// was open. Operator action only.
func (e *Engine) ResumeLiquidations(ctx context.Context, slot uint64) bool {
	was := e.halt.Override()
	if was {
		e.publish(ctx, domain.EventLiquidationsResumed, slot, map[string]any{"override": true})
	}
	return was
}

// Report summarizes one engine tick.
type Report struct {
	Slot       uint64 `json:"slot"`
	Executed   int    `json:"executed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Expired    int    `json:"expired"`
	Deferred   int    `json:"deferred"`
	Remaining  int    `json:"remaining"`
	CUConsumed uint64 `json:"cu_consumed"`
}

// ProcessTick drains up to MaxPerShardPerTick requests from every shard in
// parallel. The tick's budget is split evenly across shards; a shard that
// cannot afford its next request defers it to the next tick rather than
// dispatching partially.
func (e *Engine) ProcessTick(ctx context.Context, execCtx *budget.ExecutionContext) (Report, error) {
	slot := execCtx.CurrentSlot

	if e.halt.Halted(slot) {
		return Report{Slot: slot, Remaining: e.queuedTotal()}, nil
	}

	expired := e.expireStale(ctx, slot)

	children := execCtx.Split(len(e.shards))
	reports := make([]Report, len(e.shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range e.shards {
		g.Go(func() error {
			reports[i] = e.processShard(gctx, sh, children[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	out := Report{Slot: slot, Expired: expired}
	for _, r := range reports {
		out.Executed += r.Executed
		out.Skipped += r.Skipped
		out.Failed += r.Failed
		out.Deferred += r.Deferred
		out.CUConsumed += r.CUConsumed
	}
	out.Remaining = e.queuedTotal()
	return out, nil
}

func (e *Engine) processShard(ctx context.Context, sh *shard, execCtx *budget.ExecutionContext) Report {
	r := Report{Slot: execCtx.CurrentSlot}
	var requeue []domain.LiquidationRequest

	for n := 0; n < e.cfg.MaxPerShardPerTick; n++ {
		if ctx.Err() != nil {
			break
		}

		req, ok := sh.queue.Pop()
		if !ok {
			break
		}

		if !e.schedule.ReadyForRound(req.PositionID, execCtx.CurrentSlot) {
			requeue = append(requeue, req)
			r.Deferred++
			continue
		}

		refresh := budget.EstimateCost(budget.OpHealthRefresh, budget.Complexity{})
		dispatch := budget.EstimateCost(budget.OpLiquidation, budget.Complexity{})
		if !execCtx.CanAfford(refresh + dispatch) {
			requeue = append(requeue, req)
			r.Deferred++
			break
		}

		_ = execCtx.Consume(budget.OpHealthRefresh.String(), refresh)
		health, err := e.state.PositionHealth(ctx, req.PositionID)
		if err != nil {
			e.logger.Warn("health refresh failed",
				slog.String("position_id", req.PositionID),
				slog.String("error", err.Error()))
			requeue = append(requeue, req)
			r.Deferred++
			continue
		}

		// Health is re-checked against live state at the moment of
		// dispatch; the admission snapshot only ordered the queue.
		if !health.Liquidatable() {
			sh.claims.Release(req.PositionID)
			e.schedule.Forget(req.PositionID)
			r.Skipped++
			e.finish(ctx, req, domain.LiquidationOutcome{
				RequestID:  req.RequestID,
				PositionID: req.PositionID,
				Liquidator: req.Liquidator,
				HealthBps:  health.HealthBps(),
				Slot:       execCtx.CurrentSlot,
				FailReason: "position recovered",
			}, domain.EventLiquidationSkipped)
			continue
		}

		amount := e.schedule.RoundAmount(health.HealthBps(), health.Debt)
		if req.MaxLiquidationAmount > 0 && amount > req.MaxLiquidationAmount {
			amount = req.MaxLiquidationAmount
		}
		if amount == 0 {
			sh.claims.Release(req.PositionID)
			r.Skipped++
			e.finish(ctx, req, domain.LiquidationOutcome{
				RequestID:  req.RequestID,
				PositionID: req.PositionID,
				Liquidator: req.Liquidator,
				HealthBps:  health.HealthBps(),
				Slot:       execCtx.CurrentSlot,
				FailReason: "round amount zero",
			}, domain.EventLiquidationSkipped)
			continue
		}

		_ = execCtx.Consume(budget.OpLiquidation.String(), dispatch)
		receipt, err := e.exec.ExecuteLiquidation(ctx, req, amount)

		sh.claims.Release(req.PositionID)
		if err != nil {
			r.Failed++
			e.finish(ctx, req, domain.LiquidationOutcome{
				RequestID:  req.RequestID,
				PositionID: req.PositionID,
				Liquidator: req.Liquidator,
				HealthBps:  health.HealthBps(),
				Slot:       execCtx.CurrentSlot,
				FailReason: err.Error(),
			}, domain.EventLiquidationFailed)
			continue
		}

		e.schedule.MarkRound(req.PositionID, execCtx.CurrentSlot)
		r.Executed++
		e.finish(ctx, req, domain.LiquidationOutcome{
			RequestID:        req.RequestID,
			PositionID:       req.PositionID,
			Liquidator:       req.Liquidator,
			Liquidated:       true,
			LiquidatedAmount: receipt.LiquidatedAmount,
			HealthBps:        health.HealthBps(),
			Slot:             execCtx.CurrentSlot,
		}, domain.EventLiquidationExecuted)

		if e.halt.Observe(execCtx.CurrentSlot, receipt.LiquidatedAmount) {
			e.logger.Warn("liquidation circuit breaker tripped",
				slog.Uint64("slot", execCtx.CurrentSlot))
			e.publish(ctx, domain.EventLiquidationsHalted, execCtx.CurrentSlot, nil)
			break
		}
	}

	for _, req := range requeue {
		if err := sh.queue.Push(req); err != nil {
			// Claim still held with nothing queued; release so the
			// position is not stuck.
			sh.claims.Release(req.PositionID)
			e.logger.Error("requeue failed",
				slog.String("position_id", req.PositionID),
				slog.String("error", err.Error()))
		}
	}

	r.CUConsumed = execCtx.Consumed()
	return r
}

// expireStale drops requests past their deadline across all shards.
func (e *Engine) expireStale(ctx context.Context, slot uint64) int {
	n := 0
	for _, sh := range e.shards {
		for _, req := range sh.queue.ClearStale(slot) {
			sh.claims.Release(req.PositionID)
			n++
			e.finish(ctx, req, domain.LiquidationOutcome{
				RequestID:  req.RequestID,
				PositionID: req.PositionID,
				Liquidator: req.Liquidator,
				HealthBps:  req.HealthBps,
				Slot:       slot,
				FailReason: "deadline passed before dispatch",
			}, domain.EventLiquidationFailed)
		}
	}
	return n
}

// Stats describes engine occupancy for the status endpoint.
type Stats struct {
	Queued        int   `json:"queued"`
	PerShard      []int `json:"per_shard"`
	ClaimedActive int   `json:"claimed_active"`
	Halted        bool  `json:"halted"`
}

// SnapshotStats returns current occupancy.
func (e *Engine) SnapshotStats(slot uint64) Stats {
	s := Stats{PerShard: make([]int, len(e.shards)), Halted: e.halt.Halted(slot)}
	for i, sh := range e.shards {
		n := sh.queue.Len()
		s.PerShard[i] = n
		s.Queued += n
		s.ClaimedActive += sh.claims.Len()
	}
	return s
}

func (e *Engine) queuedTotal() int {
	n := 0
	for _, sh := range e.shards {
		n += sh.queue.Len()
	}
	return n
}

func (e *Engine) shardFor(positionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(positionID))
	return e.shards[int(h.Sum32())%len(e.shards)]
}

func (e *Engine) finish(ctx context.Context, req domain.LiquidationRequest,
	outcome domain.LiquidationOutcome, kind domain.EventKind) {
	if e.store != nil {
		if err := e.store.RecordOutcome(ctx, outcome); err != nil {
			e.logger.Warn("outcome store failed",
				slog.String("request_id", req.RequestID.String()),
				slog.String("error", err.Error()))
		}
	}
	e.publish(ctx, kind, outcome.Slot, map[string]any{
		"request_id":  req.RequestID.String(),
		"position_id": req.PositionID,
		"liquidator":  req.Liquidator,
		"liquidated":  outcome.Liquidated,
		"amount":      outcome.LiquidatedAmount,
		"health_bps":  outcome.HealthBps,
		"fail_reason": outcome.FailReason,
	})
}

func (e *Engine) publish(ctx context.Context, kind domain.EventKind, slot uint64, payload any) {
	if e.events == nil {
		return
	}
	ev := domain.Event{Kind: kind, Slot: slot, At: time.Now().UTC(), Payload: payload}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}
}
