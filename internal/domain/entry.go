// Package domain defines the core types, errors, and port interfaces of the
// trade admission and liquidation subsystem. All other packages depend on
// domain; domain depends on nothing but the standard library and uuid.
package domain

import "time"

// EntryStatus is the lifecycle state of a queued trade entry. Transitions are
// monotonic: Pending -> Processing -> {Completed|Failed}, or
// Pending -> Cancelled. There is no path back to Pending.
type EntryStatus uint8

const (
	StatusPending EntryStatus = iota
	StatusProcessing
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// String returns the lowercase name used in logs, events, and the database.
func (s EntryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state. Terminal entries are
// removed from the queue's bookkeeping.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects the monotonic
// lifecycle.
func (s EntryStatus) CanTransition(next EntryStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// TradeData is the opaque payload carried by a queue entry. The admission
// subsystem never interprets it beyond the synthetic id, direction, and
// amount; execution is delegated to the AMM collaborator.
type TradeData struct {
	SyntheticID    string
	IsBuy          bool
	Amount         uint64
	LeverageX100   uint32 // leverage multiplier scaled by 100 (150 = 1.5x)
	MaxSlippageBps uint16
	StopLossBps    uint32 // 0 = unset
	TakeProfitBps  uint32 // 0 = unset
	DeadlineSlot   uint64 // 0 = no deadline
}

// QueueEntry is a single admitted trade request. PriorityScore and
// StakeSnapshot are fixed at admission time and never re-read live.
type QueueEntry struct {
	EntryID        uint64
	User           string
	PriorityScore  uint64
	SubmissionSlot uint64
	SubmittedAt    time.Time
	Trade          TradeData
	Status         EntryStatus
	StakeSnapshot  uint64
	DepthBoost     uint32
	FailReason     string

	// LogicalKey deduplicates requests at the admission boundary: while an
	// entry with the same non-empty key is Pending or Processing, further
	// admissions with that key fail with ErrDuplicateEntry.
	LogicalKey string
}

// RecentTrade is a sliding-window record of an executed trade, consumed only
// by the sandwich detector. Entries are evicted deterministically once they
// fall outside the detection window.
type RecentTrade struct {
	User           string
	SyntheticID    string
	IsBuy          bool
	Amount         uint64
	Slot           uint64
	PriceImpactBps uint32
}

// ExecutionReceipt is the downstream AMM's report for a dispatched trade.
type ExecutionReceipt struct {
	EntryID      uint64
	FilledAmount uint64
	AvgPriceBps  uint32
	ImpactBps    uint32
	ExecutedSlot uint64
	CUConsumed   uint64
}
