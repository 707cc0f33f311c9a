// Package mev implements the anti-MEV protections applied at admission:
// sandwich-pattern detection over a sliding window of executed trades, and
// the commit-reveal protocol for private large orders.
package mev

import (
	"fmt"
	"sync"

	"github.com/versefi/versequeue/internal/domain"
)

// DetectorConfig tunes the sandwich scan.
type DetectorConfig struct {
	// LookbackSlots bounds how far behind the current slot the scan reaches.
	LookbackSlots uint64

	// MinFrontrunAmount is the smallest leading trade considered a
	// candidate frontrun; dust trades are ignored.
	MinFrontrunAmount uint64

	// ImpactThresholdBps is the aggregate price impact of {T1, C, T2} above
	// which the pattern is flagged.
	ImpactThresholdBps uint32
}

// DefaultDetectorConfig mirrors the production defaults: a 10-slot window
// and a 2% aggregate impact threshold.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		LookbackSlots:      10,
		MinFrontrunAmount:  1_000,
		ImpactThresholdBps: 200,
	}
}

// Detector screens candidate orders for sandwich patterns. DetectSandwich is
// a pure function of its inputs; all state lives in the caller-provided
// trade window.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a Detector; a zero config falls back to defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg == (DetectorConfig{}) {
		cfg = DefaultDetectorConfig()
	}
	return &Detector{cfg: cfg}
}

// DetectSandwich scans recent trades for the sandwich triple around the
// candidate: a leading trade T1 by some address A in the candidate's
// direction, the candidate C itself, and a reversing trade T2 by A in the
// opposite direction, with A distinct from the candidate's user. The pattern
// is flagged when the aggregate price impact of T1, C, and T2 crosses the
// configured threshold. candidateImpactBps is the quoted impact estimate for
// C (the candidate has not executed yet).
//
// The scan errs toward flagging: when the reversal T2 is already visible in
// the window, any qualifying T1 triggers the check regardless of how the
// trades interleave with unrelated flow.
func (d *Detector) DetectSandwich(candidate domain.QueueEntry, candidateImpactBps uint32,
	recent []domain.RecentTrade, currentSlot uint64) (bool, error) {
	if currentSlot < candidate.SubmissionSlot {
		return false, fmt.Errorf("current slot %d before submission %d: %w",
			currentSlot, candidate.SubmissionSlot, domain.ErrInvalidInput)
	}

	windowStart := uint64(0)
	if currentSlot > d.cfg.LookbackSlots {
		windowStart = currentSlot - d.cfg.LookbackSlots
	}

	for i, t1 := range recent {
		if !d.isFrontrun(t1, candidate, windowStart) {
			continue
		}
		for j, t2 := range recent {
			if i == j {
				continue
			}
			if !isReversal(t1, t2, windowStart) {
				continue
			}
			aggregate := uint64(t1.PriceImpactBps) + uint64(candidateImpactBps) + uint64(t2.PriceImpactBps)
			if aggregate > uint64(d.cfg.ImpactThresholdBps) {
				return true, nil
			}
		}
	}
	return false, nil
}

// isFrontrun reports whether t qualifies as the leading leg T1: same market
// and direction as the candidate, different user, above the dust threshold,
// inside the window, and not after the candidate's submission.
func (d *Detector) isFrontrun(t domain.RecentTrade, candidate domain.QueueEntry, windowStart uint64) bool {
	return t.SyntheticID == candidate.Trade.SyntheticID &&
		t.IsBuy == candidate.Trade.IsBuy &&
		t.User != candidate.User &&
		t.Amount >= d.cfg.MinFrontrunAmount &&
		t.Slot >= windowStart &&
		t.Slot <= candidate.SubmissionSlot
}

// isReversal reports whether t2 closes out t1: same user and market,
// opposite direction, inside the window, and no earlier than t1.
func isReversal(t1, t2 domain.RecentTrade, windowStart uint64) bool {
	return t2.User == t1.User &&
		t2.SyntheticID == t1.SyntheticID &&
		t2.IsBuy != t1.IsBuy &&
		t2.Slot >= windowStart &&
		t2.Slot >= t1.Slot
}

// TradeWindow is the bounded sliding window of executed trades consumed by
// the detector. Eviction is deterministic given slot progression: entries
// older than maxAgeSlots are dropped, and the window never exceeds maxCount
// entries (oldest evicted first).
type TradeWindow struct {
	mu          sync.Mutex
	trades      []domain.RecentTrade
	maxAgeSlots uint64
	maxCount    int
}

// NewTradeWindow creates a window bounded by age and count.
func NewTradeWindow(maxAgeSlots uint64, maxCount int) *TradeWindow {
	if maxCount <= 0 {
		maxCount = 256
	}
	return &TradeWindow{
		maxAgeSlots: maxAgeSlots,
		maxCount:    maxCount,
	}
}

// RecordTrade appends an executed trade, evicting by count if needed.
func (w *TradeWindow) RecordTrade(t domain.RecentTrade) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trades = append(w.trades, t)
	if len(w.trades) > w.maxCount {
		w.trades = w.trades[len(w.trades)-w.maxCount:]
	}
}

// Snapshot evicts entries outside the age window and returns a copy of the
// remainder.
func (w *TradeWindow) Snapshot(currentSlot uint64) []domain.RecentTrade {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := uint64(0)
	if currentSlot > w.maxAgeSlots {
		cutoff = currentSlot - w.maxAgeSlots
	}

	keep := w.trades[:0]
	for _, t := range w.trades {
		if t.Slot >= cutoff {
			keep = append(keep, t)
		}
	}
	w.trades = keep

	out := make([]domain.RecentTrade, len(w.trades))
	copy(out, w.trades)
	return out
}
