package budget

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
)

func TestEnforceBoundary(t *testing.T) {
	// Exactly at the ceiling passes; one unit over fails.
	require.NoError(t, Enforce(20_000, 20_000))

	err := Enforce(20_001, 20_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBudgetExceeded))
}

func TestEstimateCostScalesWithComplexity(t *testing.T) {
	single := EstimateCost(OpTradeDispatch, Complexity{})
	assert.Equal(t, uint64(20_000), single)

	// An 8-outcome batch stays under the 180k batch ceiling.
	batch := EstimateCost(OpTradeDispatch, Complexity{Outcomes: 8})
	assert.Greater(t, batch, single)
	require.NoError(t, Enforce(batch*4, 180_000))

	twoLegs := EstimateCost(OpTradeDispatch, Complexity{Legs: 2})
	assert.Equal(t, 2*single, twoLegs)
}

func TestExecutionContextConsume(t *testing.T) {
	ctx := NewExecutionContext(100, 50_000)

	require.NoError(t, ctx.Consume("trade_dispatch", 20_000))
	require.NoError(t, ctx.Consume("trade_dispatch", 20_000))
	assert.Equal(t, uint64(10_000), ctx.Remaining())
	assert.Equal(t, uint64(40_000), ctx.Consumed())

	// Third dispatch does not fit; nothing is consumed on failure.
	err := ctx.Consume("trade_dispatch", 20_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBudgetExceeded))
	assert.Equal(t, uint64(10_000), ctx.Remaining())
	assert.Len(t, ctx.Log(), 2)
}

func TestExecutionContextSplit(t *testing.T) {
	ctx := NewExecutionContext(7, 100_001)

	children := ctx.Split(4)
	require.Len(t, children, 4)
	assert.Equal(t, uint64(0), ctx.Remaining())

	var total uint64
	for _, child := range children {
		assert.Equal(t, uint64(7), child.CurrentSlot)
		total += child.Remaining()
	}
	// No units lost to integer division.
	assert.Equal(t, uint64(100_001), total)
	assert.Equal(t, uint64(25_001), children[0].Remaining())
}
