package liquidation

import (
	"sync"
)

// HaltConfig tunes the cascade circuit breaker.
type HaltConfig struct {
	// WindowSlots is the rolling window the breaker measures over.
	WindowSlots uint64

	// MaxCount halts liquidations when more than this many executed inside
	// the window. Zero disables the count trigger.
	MaxCount int

	// MaxValue halts liquidations when their summed value inside the window
	// exceeds this. Zero disables the value trigger.
	MaxValue uint64

	// HaltSlots is how long a tripped breaker stays open before resuming
	// automatically.
	HaltSlots uint64
}

// DefaultHaltConfig matches the production breaker: 100 liquidations or 10M
// of value within 300 slots trips a 600-slot halt.
func DefaultHaltConfig() HaltConfig {
	return HaltConfig{
		WindowSlots: 300,
		MaxCount:    100,
		MaxValue:    10_000_000,
		HaltSlots:   600,
	}
}

type haltRecord struct {
	slot  uint64
	value uint64
}

// HaltTracker is the liquidation circuit breaker. It watches executed
// liquidations over a rolling slot window and opens when either the count
// or the summed value trips its threshold. An open breaker closes on its
// own after HaltSlots, or immediately via Override.
type HaltTracker struct {
	mu        sync.Mutex
	cfg       HaltConfig
	records   []haltRecord
	haltedAt  uint64
	halted    bool
	overrides int
}

// NewHaltTracker creates the breaker; a zero config falls back to defaults.
func NewHaltTracker(cfg HaltConfig) *HaltTracker {
	if cfg == (HaltConfig{}) {
		cfg = DefaultHaltConfig()
	}
	return &HaltTracker{cfg: cfg}
}

// Observe records one executed liquidation and returns true when that
// observation trips the breaker open.
func (h *HaltTracker) Observe(slot, value uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.evict(slot)
	h.records = append(h.records, haltRecord{slot: slot, value: value})

	if h.halted {
		return false
	}

	count := len(h.records)
	var total uint64
	for _, r := range h.records {
		total += r.value
	}
	if (h.cfg.MaxCount > 0 && count > h.cfg.MaxCount) ||
		(h.cfg.MaxValue > 0 && total > h.cfg.MaxValue) {
		h.halted = true
		h.haltedAt = slot
		return true
	}
	return false
}

// Halted reports whether the breaker is open at the slot. A breaker past
// its halt duration closes as a side effect.
func (h *HaltTracker) Halted(slot uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.halted && slot >= h.haltedAt+h.cfg.HaltSlots {
		h.halted = false
		h.records = nil
	}
	return h.halted
}

// Override closes an open breaker manually and returns whether it was open.
func (h *HaltTracker) Override() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	was := h.halted
	h.halted = false
	h.records = nil
	if was {
		h.overrides++
	}
	return was
}

// Overrides returns how many times operators manually closed the breaker.
func (h *HaltTracker) Overrides() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.overrides
}

func (h *HaltTracker) evict(slot uint64) {
	cutoff := uint64(0)
	if slot > h.cfg.WindowSlots {
		cutoff = slot - h.cfg.WindowSlots
	}
	keep := h.records[:0]
	for _, r := range h.records {
		if r.slot >= cutoff {
			keep = append(keep, r)
		}
	}
	h.records = keep
}
