package domain

import "time"

// EventKind identifies the subsystem event being published.
type EventKind string

const (
	EventTradeAdmitted    EventKind = "trade_admitted"
	EventTradeRejected    EventKind = "trade_rejected"
	EventTradeDispatched  EventKind = "trade_dispatched"
	EventTradeFailed      EventKind = "trade_failed"
	EventTradeExpired     EventKind = "trade_expired"
	EventTradeCancelled   EventKind = "trade_cancelled"
	EventOrderCommitted   EventKind = "order_committed"
	EventOrderRevealed    EventKind = "order_revealed"
	EventSandwichRejected EventKind = "sandwich_rejected"

	EventLiquidationQueued   EventKind = "liquidation_queued"
	EventLiquidationExecuted EventKind = "liquidation_executed"
	EventLiquidationFailed   EventKind = "liquidation_failed"
	EventLiquidationSkipped  EventKind = "liquidation_skipped"
	EventLiquidationsHalted  EventKind = "liquidations_halted"
	EventLiquidationsResumed EventKind = "liquidations_resumed"

	EventTickProcessed EventKind = "tick_processed"
)

// Channel returns the pub/sub channel an event kind fans out on.
func (k EventKind) Channel() string {
	switch k {
	case EventLiquidationQueued, EventLiquidationExecuted, EventLiquidationFailed,
		EventLiquidationSkipped, EventLiquidationsHalted, EventLiquidationsResumed:
		return "ch:liquidation"
	case EventSandwichRejected, EventOrderCommitted, EventOrderRevealed:
		return "ch:mev"
	default:
		return "ch:queue"
	}
}

// Event is a fire-and-forget notification. Publish failures are logged and
// never roll back the queue state change that produced the event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Slot    uint64    `json:"slot"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}
