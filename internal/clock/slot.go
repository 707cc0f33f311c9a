// Package clock provides the logical slot clock. All scheduling, deadlines,
// and windows in the system are expressed in slots, never wall time.
package clock

import "time"

// SlotClock derives the current slot from a genesis instant and a fixed
// slot duration. It is stateless and safe for concurrent use.
type SlotClock struct {
	genesis      time.Time
	slotDuration time.Duration
	now          func() time.Time
}

// DefaultSlotDuration matches the upstream chain's 400ms slots.
const DefaultSlotDuration = 400 * time.Millisecond

// NewSlotClock creates a clock ticking from genesis. A non-positive
// duration falls back to DefaultSlotDuration.
func NewSlotClock(genesis time.Time, slotDuration time.Duration) *SlotClock {
	if slotDuration <= 0 {
		slotDuration = DefaultSlotDuration
	}
	return &SlotClock{genesis: genesis, slotDuration: slotDuration, now: time.Now}
}

// CurrentSlot returns the slot containing the current instant. Before
// genesis the slot is 0.
func (c *SlotClock) CurrentSlot() uint64 {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.slotDuration)
}

// SlotDuration returns the configured slot length.
func (c *SlotClock) SlotDuration() time.Duration { return c.slotDuration }

// SlotStart returns the wall-clock instant a slot begins.
func (c *SlotClock) SlotStart(slot uint64) time.Time {
	return c.genesis.Add(time.Duration(slot) * c.slotDuration)
}

// ManualSlotSource is a fixed slot source for tests and replay tooling.
type ManualSlotSource struct {
	Slot uint64
}

// CurrentSlot returns the manually set slot.
func (m *ManualSlotSource) CurrentSlot() uint64 { return m.Slot }
