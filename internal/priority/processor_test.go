package priority

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/budget"
	"github.com/versefi/versequeue/internal/domain"
)

// fakeExecutor records dispatch order and can fail selected entries.
type fakeExecutor struct {
	dispatched []uint64
	failIDs    map[uint64]bool
}

func (f *fakeExecutor) ExecuteTrade(_ context.Context, e domain.QueueEntry) (domain.ExecutionReceipt, error) {
	f.dispatched = append(f.dispatched, e.EntryID)
	if f.failIDs[e.EntryID] {
		return domain.ExecutionReceipt{}, errors.New("amm rejected")
	}
	return domain.ExecutionReceipt{
		EntryID:      e.EntryID,
		FilledAmount: e.Trade.Amount,
		ExecutedSlot: e.SubmissionSlot,
		ImpactBps:    10,
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newProcessor(q *Queue, exec domain.TradeExecutor) *Processor {
	return NewProcessor(q, exec, nil, nil, nil, nil, testLogger())
}

func TestProcessTickDispatchesInPriorityOrder(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Admit(entry(1, 100, 5)))
	require.NoError(t, q.Admit(entry(2, 300, 5)))
	require.NoError(t, q.Admit(entry(3, 200, 5)))

	exec := &fakeExecutor{}
	p := newProcessor(q, exec)

	report := p.ProcessTick(context.Background(), budget.NewExecutionContext(10, 1_000_000), 10)

	assert.Equal(t, []uint64{2, 3, 1}, exec.dispatched)
	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, 0, report.Remaining)
}

func TestProcessTickBudgetPrefixOnly(t *testing.T) {
	q := NewQueue(10)
	for id := uint64(1); id <= 5; id++ {
		require.NoError(t, q.Admit(entry(id, 1_000-id, 1)))
	}

	exec := &fakeExecutor{}
	p := newProcessor(q, exec)

	// Budget for exactly two 20k dispatches plus change: only the prefix
	// under budget runs, the rest stay queued, and no item is cut in half.
	report := p.ProcessTick(context.Background(), budget.NewExecutionContext(10, 45_000), 10)

	assert.Equal(t, []uint64{1, 2}, exec.dispatched)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 3, report.Remaining)
	assert.Equal(t, uint64(40_000), report.CUConsumed)

	// The deferred entries run on the next tick.
	report = p.ProcessTick(context.Background(), budget.NewExecutionContext(11, 1_000_000), 10)
	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, 0, report.Remaining)
}

func TestProcessTickExpiresStaleEntries(t *testing.T) {
	q := NewQueue(10)

	stale := entry(1, 900, 1)
	stale.Trade.DeadlineSlot = 5
	require.NoError(t, q.Admit(stale))
	require.NoError(t, q.Admit(entry(2, 100, 1)))

	exec := &fakeExecutor{}
	p := newProcessor(q, exec)

	report := p.ProcessTick(context.Background(), budget.NewExecutionContext(10, 1_000_000), 10)

	// The expired head is retired without dispatch.
	assert.Equal(t, []uint64{2}, exec.dispatched)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Dispatched)
}

func TestProcessTickRecordsDispatchFailure(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Admit(entry(1, 100, 1)))

	exec := &fakeExecutor{failIDs: map[uint64]bool{1: true}}
	p := newProcessor(q, exec)

	report := p.ProcessTick(context.Background(), budget.NewExecutionContext(10, 1_000_000), 10)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Dispatched)
	// No automatic retry within the tick.
	assert.Equal(t, []uint64{1}, exec.dispatched)
	assert.Equal(t, 0, q.Len())
}

// Three trades with stakes {1000, 500, 100} at slots {100, 100, 50}, scored
// at slot 110 with a 10,000 total stake: the stake-100 entry submitted 60
// slots ago accumulates a 60,000-point wait bonus that outranks both fresher
// entries (their stake shares contribute at most 40,000 points), so the
// oldest entry dispatches first despite the smallest stake.
func TestWaitBonusOrderingInversion(t *testing.T) {
	calc := NewCalculator(Weights{})
	const totalStake = 10_000
	const currentSlot = 110

	type submission struct {
		id    uint64
		stake uint64
		slot  uint64
	}
	subs := []submission{
		{id: 1, stake: 1_000, slot: 100},
		{id: 2, stake: 500, slot: 100},
		{id: 3, stake: 100, slot: 50},
	}

	q := NewQueue(10)
	for _, s := range subs {
		score, err := calc.Score(s.stake, 0, s.slot, 0, currentSlot, totalStake)
		require.NoError(t, err)
		e := entry(s.id, score, s.slot)
		e.StakeSnapshot = s.stake
		require.NoError(t, q.Admit(e))
	}

	exec := &fakeExecutor{}
	p := newProcessor(q, exec)
	p.ProcessTick(context.Background(), budget.NewExecutionContext(currentSlot, 1_000_000), 10)

	// stake 100 @ slot 50:  100/10000*400000 + 60*1000 = 4000 + 60000 = 64000
	// stake 1000 @ slot 100: 1000/10000*400000 + 10*1000 = 40000 + 10000 = 50000
	// stake 500 @ slot 100:  500/10000*400000 + 10*1000 = 20000 + 10000 = 30000
	assert.Equal(t, []uint64{3, 1, 2}, exec.dispatched)
}
