package domain

import (
	"context"
	"time"
)

// TradeExecutor dispatches an admitted entry to the AMM / routing engine.
// The executor owns the fill outcome; the queue keeps owning the entry's
// status bookkeeping.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, entry QueueEntry) (ExecutionReceipt, error)
}

// LiquidationExecutor performs a single partial liquidation up to amount.
type LiquidationExecutor interface {
	ExecuteLiquidation(ctx context.Context, req LiquidationRequest, amount uint64) (LiquidationReceipt, error)
}

// EventPublisher is the outbound publish_event sink. Implementations must be
// safe for concurrent use; callers treat errors as best-effort and never
// propagate them into queue state.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// SlotSource provides the current logical clock value.
type SlotSource interface {
	CurrentSlot() uint64
}

// MarketStateSource exposes the external oracle / hierarchy state the
// admission path needs: stake balances, market depth, and position health.
type MarketStateSource interface {
	StakeOf(ctx context.Context, user string) (uint64, error)
	TotalStake(ctx context.Context) (uint64, error)
	VerseDepth(ctx context.Context, syntheticID string) (uint32, error)
	PositionHealth(ctx context.Context, positionID string) (PositionHealth, error)
}

// EntryStore mirrors terminal queue entries to durable storage. Writes are
// best-effort: a store failure never rolls back the in-memory transition.
type EntryStore interface {
	RecordTerminal(ctx context.Context, entry QueueEntry) error
}

// LiquidationStore mirrors liquidation outcomes to durable storage.
type LiquidationStore interface {
	RecordOutcome(ctx context.Context, outcome LiquidationOutcome) error
}

// RateLimiter bounds per-user submission rates ahead of admission.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ClaimManager provides exclusive claims for multi-node keeper deployments.
// Claim returns ErrLockHeld when another party holds the key. The returned
// release function is safe to call more than once.
type ClaimManager interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
