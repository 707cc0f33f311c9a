package domain

import "github.com/google/uuid"

// HealthScale is the fixed-point scale for health factors: 10_000 == 1.0.
// A position with HealthBps below HealthScale is eligible for liquidation.
const HealthScale uint32 = 10_000

// PositionHealth is a monitored leveraged position as reported by the
// external health source. HealthBps is always derived from Collateral and
// Debt; it is never stored stale beyond one scheduling tick.
type PositionHealth struct {
	PositionID     string
	Collateral     uint64
	Debt           uint64
	LastUpdateSlot uint64
}

// HealthBps returns collateral/debt as basis points of HealthScale. A
// debt-free position is maximally healthy.
func (p PositionHealth) HealthBps() uint32 {
	if p.Debt == 0 {
		return ^uint32(0)
	}
	h := (uint64(HealthScale) * p.Collateral) / p.Debt
	if h > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(h)
}

// Liquidatable reports whether the position is below the 1.0 health line.
func (p PositionHealth) Liquidatable() bool {
	return p.HealthBps() < HealthScale
}

// LiquidationRequest is a candidate liquidation action derived from a
// position whose health crossed below threshold. At most one request per
// position id may complete; all concurrent competitors fail with
// ErrAlreadyLiquidating.
type LiquidationRequest struct {
	RequestID            uuid.UUID
	PositionID           string
	Liquidator           string
	MaxLiquidationAmount uint64
	MinProfitBps         uint16
	DeadlineSlot         uint64
	SubmissionSlot       uint64

	// Snapshot of urgency and value at admission, used for in-shard
	// ordering only. Health is re-read from the live source before dispatch.
	HealthBps uint32
	Value     uint64
}

// LiquidationOutcome records the terminal result of one liquidation attempt.
type LiquidationOutcome struct {
	RequestID        uuid.UUID
	PositionID       string
	Liquidator       string
	Liquidated       bool
	LiquidatedAmount uint64
	HealthBps        uint32
	Slot             uint64
	FailReason       string
}

// LiquidationReceipt is the downstream executor's report for an executed
// liquidation.
type LiquidationReceipt struct {
	RequestID        uuid.UUID
	LiquidatedAmount uint64
	CollateralSeized uint64
	CUConsumed       uint64
}
