package priority

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
)

func entry(id, score, slot uint64) domain.QueueEntry {
	return domain.QueueEntry{
		EntryID:        id,
		User:           "user",
		PriorityScore:  score,
		SubmissionSlot: slot,
		Status:         domain.StatusPending,
		Trade:          domain.TradeData{SyntheticID: "synth-1", Amount: 100},
	}
}

func TestAdmitCapacityAndDuplicates(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Admit(entry(1, 10, 1)))

	err := q.Admit(entry(1, 10, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateEntry))

	require.NoError(t, q.Admit(entry(2, 20, 1)))
	assert.True(t, errors.Is(q.Admit(entry(3, 30, 1)), domain.ErrQueueFull))
}

func TestAdmitLogicalKeyDedup(t *testing.T) {
	q := NewQueue(10)

	a := entry(1, 10, 1)
	a.LogicalKey = "pos-9"
	require.NoError(t, q.Admit(a))

	b := entry(2, 50, 2)
	b.LogicalKey = "pos-9"
	assert.True(t, errors.Is(q.Admit(b), domain.ErrDuplicateEntry))

	// The key stays held while the entry is inflight...
	_, ok := q.PopHighest()
	require.True(t, ok)
	assert.True(t, errors.Is(q.Admit(b), domain.ErrDuplicateEntry))

	// ...and is released on the terminal transition.
	_, err := q.Finish(1, domain.StatusCompleted, "")
	require.NoError(t, err)
	require.NoError(t, q.Admit(b))
}

// The drain order must be identical for every admission interleaving:
// (score desc, submission slot asc, entry id asc).
func TestOrderingDeterminism(t *testing.T) {
	entries := []domain.QueueEntry{
		entry(1, 500, 10),
		entry(2, 500, 5),
		entry(3, 900, 20),
		entry(4, 500, 5),
		entry(5, 100, 1),
	}
	want := []uint64{3, 2, 4, 1, 5}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		q := NewQueue(len(entries))
		perm := rng.Perm(len(entries))
		for _, i := range perm {
			require.NoError(t, q.Admit(entries[i]))
		}

		var got []uint64
		for {
			e, ok := q.PopHighest()
			if !ok {
				break
			}
			got = append(got, e.EntryID)
		}
		assert.Equal(t, want, got, "permutation %v", perm)
	}
}

func TestCancelSemantics(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Admit(entry(1, 10, 1)))
	require.NoError(t, q.Admit(entry(2, 20, 1)))

	cancelled, err := q.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, err = q.Cancel(1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// Processing entries cannot be cancelled.
	popped, ok := q.PopHighest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), popped.EntryID)
	assert.Equal(t, domain.StatusProcessing, popped.Status)

	_, err = q.Cancel(2)
	assert.True(t, errors.Is(err, domain.ErrAlreadyProcessing))

	// The cancelled entry never surfaces from the heap.
	_, ok = q.PopHighest()
	assert.False(t, ok)
}

func TestFinishValidatesStatus(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.Admit(entry(1, 10, 1)))
	_, ok := q.PopHighest()
	require.True(t, ok)

	_, err := q.Finish(1, domain.StatusPending, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	done, err := q.Finish(1, domain.StatusFailed, "downstream error")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.Equal(t, "downstream error", done.FailReason)

	_, err = q.Finish(1, domain.StatusCompleted, "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStats(t *testing.T) {
	q := NewQueue(5)
	require.NoError(t, q.Admit(entry(1, 10, 1)))
	require.NoError(t, q.Admit(entry(2, 20, 1)))
	_, ok := q.PopHighest()
	require.True(t, ok)

	s := q.Stats()
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Inflight)
	assert.Equal(t, 5, s.Capacity)
	assert.Equal(t, uint64(2), s.Admitted)
	assert.Equal(t, uint64(1), s.Dispatched)
	assert.Equal(t, uint64(100), s.PendingVolume)
}

func TestCongestionThreshold(t *testing.T) {
	m := NewCongestionManager(80)

	assert.False(t, m.IsCongested(79, 100))
	assert.True(t, m.IsCongested(80, 100))
	assert.True(t, m.IsCongested(100, 100))
	assert.Equal(t, uint32(8_000), m.FillBps(80, 100))
}

func TestFeeScheduleTiers(t *testing.T) {
	f := NewFeeSchedule(5_000, 10)

	assert.Equal(t, TierLow, f.Tier(1_000))
	assert.Equal(t, TierMedium, f.Tier(5_000))
	assert.Equal(t, TierHigh, f.Tier(8_000))
	assert.Equal(t, TierVeryHigh, f.Tier(9_500))

	assert.Equal(t, uint64(5_000), f.Recommend(0))
	assert.Equal(t, uint64(50_000), f.Recommend(10_000))
	assert.Less(t, f.Recommend(4_000), f.Recommend(8_000))
}
