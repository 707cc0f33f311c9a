package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotClockCurrentSlot(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSlotClock(genesis, 400*time.Millisecond)

	cases := []struct {
		elapsed time.Duration
		want    uint64
	}{
		{0, 0},
		{399 * time.Millisecond, 0},
		{400 * time.Millisecond, 1},
		{10 * time.Second, 25},
	}
	for _, tc := range cases {
		c.now = func() time.Time { return genesis.Add(tc.elapsed) }
		assert.Equal(t, tc.want, c.CurrentSlot(), "elapsed %v", tc.elapsed)
	}

	// Pre-genesis clamps to zero.
	c.now = func() time.Time { return genesis.Add(-time.Second) }
	assert.Equal(t, uint64(0), c.CurrentSlot())
}

func TestSlotClockSlotStart(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSlotClock(genesis, 400*time.Millisecond)
	assert.Equal(t, genesis.Add(2*time.Second), c.SlotStart(5))
}
