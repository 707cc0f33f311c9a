package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/clock"
	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/priority"
)

type countingExecutor struct {
	executed atomic.Int64
}

func (c *countingExecutor) ExecuteTrade(_ context.Context, entry domain.QueueEntry) (domain.ExecutionReceipt, error) {
	c.executed.Add(1)
	return domain.ExecutionReceipt{EntryID: entry.EntryID, FilledAmount: entry.Trade.Amount}, nil
}

func TestSchedulerDrainsQueue(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	queue := priority.NewQueue(16)
	exec := &countingExecutor{}
	processor := priority.NewProcessor(queue, exec, nil, nil, nil, nil, logger)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, queue.Admit(domain.QueueEntry{
			EntryID:        i,
			User:           "alice",
			PriorityScore:  i * 1_000,
			SubmissionSlot: 100,
			Status:         domain.StatusPending,
			Trade:          domain.TradeData{SyntheticID: "BTC-UP", Amount: 10_000, LeverageX100: 100},
		}))
	}

	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	s := New(cfg, processor, nil, nil, nil, &clock.ManualSlotSource{Slot: 110}, nil, nil, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.NoError(t, err, "context cancellation is a clean shutdown")

	assert.Equal(t, int64(3), exec.executed.Load())
	assert.Equal(t, 0, queue.Len())
}
