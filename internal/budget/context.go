package budget

import (
	"fmt"

	"github.com/versefi/versequeue/internal/domain"
)

// ExecutionContext is the explicit per-tick compute ledger threaded through
// every dispatch. It replaces any process-wide counter: each scheduling tick
// builds a fresh context with the tick's ceiling, and every operation either
// fits in the remaining budget or is deferred to the next tick.
//
// An ExecutionContext is not safe for concurrent use; parallel workers each
// receive their own slice via Split.
type ExecutionContext struct {
	CurrentSlot uint64

	remaining uint64
	consumed  uint64
	log       []Consumption
}

// Consumption is one recorded charge against the budget.
type Consumption struct {
	Op    string
	Units uint64
}

// NewExecutionContext creates a context with the given per-tick budget.
func NewExecutionContext(currentSlot, budget uint64) *ExecutionContext {
	return &ExecutionContext{
		CurrentSlot: currentSlot,
		remaining:   budget,
	}
}

// CanAfford reports whether units fit in the remaining budget without
// consuming anything.
func (c *ExecutionContext) CanAfford(units uint64) bool {
	return units <= c.remaining
}

// Consume charges units against the budget, recording the operation name.
// It fails with ErrBudgetExceeded when the budget cannot cover the charge;
// nothing is consumed on failure, so the operation can be retried next tick.
func (c *ExecutionContext) Consume(op string, units uint64) error {
	if units > c.remaining {
		return fmt.Errorf("%s requires %d CU, %d remaining: %w",
			op, units, c.remaining, domain.ErrBudgetExceeded)
	}
	c.remaining -= units
	c.consumed += units
	c.log = append(c.log, Consumption{Op: op, Units: units})
	return nil
}

// Remaining returns the unconsumed budget.
func (c *ExecutionContext) Remaining() uint64 { return c.remaining }

// Consumed returns the total charged so far.
func (c *ExecutionContext) Consumed() uint64 { return c.consumed }

// Log returns the consumption records in charge order.
func (c *ExecutionContext) Log() []Consumption { return c.log }

// Split divides the remaining budget into n independent child contexts, one
// per parallel shard. The parent is drained: after Split it can afford
// nothing, and each child owns an equal share (the remainder goes to the
// first child so no units are lost).
func (c *ExecutionContext) Split(n int) []*ExecutionContext {
	if n <= 0 {
		return nil
	}
	share := c.remaining / uint64(n)
	rem := c.remaining % uint64(n)
	c.remaining = 0

	children := make([]*ExecutionContext, n)
	for i := range children {
		b := share
		if i == 0 {
			b += rem
		}
		children[i] = NewExecutionContext(c.CurrentSlot, b)
	}
	return children
}
