package liquidation

import (
	"sync"

	"github.com/versefi/versequeue/internal/domain"
)

// Level maps a health band to the share of debt liquidated in one round.
// Bands are evaluated sickest-first; the first level whose threshold is
// above the position's health applies.
type Level struct {
	HealthBelowBps uint32
	PortionBps     uint32
}

// DefaultLevels is the graduated schedule: positions just under water lose
// a sliver, deeply underwater positions lose half per round.
func DefaultLevels() []Level {
	return []Level{
		{HealthBelowBps: 8_000, PortionBps: 5_000},
		{HealthBelowBps: 9_000, PortionBps: 2_500},
		{HealthBelowBps: 9_500, PortionBps: 1_500},
		{HealthBelowBps: domain.HealthScale, PortionBps: 1_000},
	}
}

// Schedule computes per-round liquidation amounts and spaces successive
// rounds on the same position by a grace interval, giving the owner a
// chance to top up collateral between rounds.
type Schedule struct {
	mu            sync.Mutex
	levels        []Level
	maxPartialBps uint32
	graceSlots    uint64
	lastRound     map[string]uint64
}

// NewSchedule builds a Schedule. Levels must be sorted ascending by
// threshold; nil levels fall back to DefaultLevels. maxPartialBps caps every
// round regardless of level.
func NewSchedule(levels []Level, maxPartialBps uint32, graceSlots uint64) *Schedule {
	if levels == nil {
		levels = DefaultLevels()
	}
	if maxPartialBps == 0 || maxPartialBps > domain.HealthScale {
		maxPartialBps = 5_000
	}
	return &Schedule{
		levels:        levels,
		maxPartialBps: maxPartialBps,
		graceSlots:    graceSlots,
		lastRound:     make(map[string]uint64),
	}
}

// RoundAmount returns the debt amount to liquidate this round for a position
// with the given fresh health and debt, zero when the position is healthy.
func (s *Schedule) RoundAmount(healthBps uint32, debt uint64) uint64 {
	portion := uint32(0)
	for _, lvl := range s.levels {
		if healthBps < lvl.HealthBelowBps {
			portion = lvl.PortionBps
			break
		}
	}
	if portion == 0 {
		return 0
	}
	if portion > s.maxPartialBps {
		portion = s.maxPartialBps
	}
	return debt * uint64(portion) / uint64(domain.HealthScale)
}

// ReadyForRound reports whether enough slots have passed since the last
// round on this position. The first round is always ready.
func (s *Schedule) ReadyForRound(positionID string, currentSlot uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRound[positionID]
	if !ok {
		return true
	}
	return currentSlot >= last+s.graceSlots
}

// MarkRound records that a round executed on the position at the slot.
func (s *Schedule) MarkRound(positionID string, slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRound[positionID] = slot
}

// Forget clears round history for a position, used when it returns to
// health or is fully closed.
func (s *Schedule) Forget(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastRound, positionID)
}
