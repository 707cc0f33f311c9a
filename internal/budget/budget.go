// Package budget implements compute-unit cost estimation and enforcement.
// Operations are rejected at admission time when their conservative estimate
// exceeds the ceiling; exceeding the true runtime ceiling aborts the whole
// enclosing operation, so estimation always rounds up.
package budget

import (
	"fmt"

	"github.com/versefi/versequeue/internal/domain"
)

// OperationKind identifies the operation being costed.
type OperationKind uint8

const (
	OpTradeDispatch OperationKind = iota
	OpLiquidation
	OpHealthRefresh
	OpEventEmission
	OpStateLoad
	OpStateStore
)

// String returns the name used in consumption logs.
func (k OperationKind) String() string {
	switch k {
	case OpTradeDispatch:
		return "trade_dispatch"
	case OpLiquidation:
		return "liquidation"
	case OpHealthRefresh:
		return "health_refresh"
	case OpEventEmission:
		return "event_emission"
	case OpStateLoad:
		return "state_load"
	case OpStateStore:
		return "state_store"
	default:
		return "unknown"
	}
}

// Base compute costs per operation kind. Values are deliberately
// conservative: over-estimating defers work to the next tick, while
// under-estimating aborts the whole operation downstream.
const (
	costTradeDispatch = 20_000
	costLiquidation   = 20_000
	costHealthRefresh = 1_200
	costEventEmission = 150
	costStateLoad     = 200
	costStateStore    = 300

	// costPerOutcome is the marginal cost per additional market outcome
	// touched by a dispatch (an 8-outcome batch stays under 180k units).
	costPerOutcome = 2_500
)

// Complexity carries the per-operation parameters that scale cost.
type Complexity struct {
	Outcomes int // number of market outcomes touched; 0 means 1
	Legs     int // chained-leverage legs; 0 means 1
}

// EstimateCost returns a conservative compute-unit estimate for one
// operation of the given kind.
func EstimateCost(kind OperationKind, c Complexity) uint64 {
	var base uint64
	switch kind {
	case OpTradeDispatch:
		base = costTradeDispatch
	case OpLiquidation:
		base = costLiquidation
	case OpHealthRefresh:
		base = costHealthRefresh
	case OpEventEmission:
		base = costEventEmission
	case OpStateLoad:
		base = costStateLoad
	case OpStateStore:
		base = costStateStore
	}

	outcomes := c.Outcomes
	if outcomes < 1 {
		outcomes = 1
	}
	legs := c.Legs
	if legs < 1 {
		legs = 1
	}

	// Each extra outcome and each extra leg adds marginal cost on top of
	// the base, multiplicatively for legs since every leg re-touches state.
	perLeg := base + uint64(outcomes-1)*costPerOutcome
	return satMul(perLeg, uint64(legs))
}

// Enforce rejects an operation whose estimate exceeds the ceiling.
func Enforce(estimated, ceiling uint64) error {
	if estimated > ceiling {
		return fmt.Errorf("estimated %d CU over ceiling %d: %w",
			estimated, ceiling, domain.ErrBudgetExceeded)
	}
	return nil
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > ^uint64(0)/b {
		return ^uint64(0)
	}
	return a * b
}
