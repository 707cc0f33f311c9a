// Package priority implements the trade admission path: deterministic
// priority scoring, the bounded priority queue, congestion-based
// backpressure, the congestion fee schedule, and the tick processor that
// drains the queue under a compute budget.
package priority

import (
	"fmt"
	"math/bits"

	"github.com/versefi/versequeue/internal/domain"
)

// Scoring scale bounds. Depth and volume contributions are capped so that a
// single whale trade in a deep verse cannot permanently outrank everyone;
// the wait term is deliberately NOT capped, which is what guarantees every
// entry is eventually served.
const (
	maxVerseDepth = 32
	maxVolumeRef  = 1_000_000
)

// Weights control the relative contribution of each scoring factor. The
// stake share and depth/volume terms are normalized to [0, weight]; the wait
// term adds WaitPerSlot for every slot spent in the queue, unbounded.
type Weights struct {
	Stake       uint64
	Depth       uint64
	Volume      uint64
	WaitPerSlot uint64
}

// DefaultWeights keeps stake as the dominant factor with depth and volume as
// secondary boosts.
func DefaultWeights() Weights {
	return Weights{
		Stake:       400_000,
		Depth:       200_000,
		Volume:      100_000,
		WaitPerSlot: 1_000,
	}
}

// Calculator computes priority scores. It is a pure function holder: no
// state, no clock, no side effects.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a Calculator with the given weights; zero-value
// weights fall back to DefaultWeights.
func NewCalculator(w Weights) *Calculator {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Calculator{weights: w}
}

// Score computes the deterministic priority score for an entry.
//
// The score is monotonic in stake, verseDepth, volume, and the wait
// (currentSlot - submissionSlot): increasing any input never decreases the
// result. Arithmetic saturates rather than wrapping, so extreme inputs clamp
// at the top of the scale instead of failing.
func (c *Calculator) Score(stake uint64, verseDepth uint32, submissionSlot, volume, currentSlot, totalStake uint64) (uint64, error) {
	if stake > totalStake {
		return 0, fmt.Errorf("stake %d exceeds total stake %d: %w", stake, totalStake, domain.ErrInvalidInput)
	}
	if currentSlot < submissionSlot {
		return 0, fmt.Errorf("current slot %d before submission slot %d: %w", currentSlot, submissionSlot, domain.ErrInvalidInput)
	}

	var score uint64

	// Relative stake share, weighted heavily.
	if totalStake > 0 {
		score = mulDiv(stake, c.weights.Stake, totalStake)
	}

	// Verse depth boost, bounded at maxVerseDepth.
	depth := uint64(verseDepth)
	if depth > maxVerseDepth {
		depth = maxVerseDepth
	}
	score = satAdd(score, mulDiv(depth, c.weights.Depth, maxVerseDepth))

	// Volume as a secondary weight, saturating at the reference volume.
	vol := volume
	if vol > maxVolumeRef {
		vol = maxVolumeRef
	}
	score = satAdd(score, mulDiv(vol, c.weights.Volume, maxVolumeRef))

	// Time-in-queue bonus, linear and unbounded. An old low-stake entry
	// eventually outranks any fixed-stake newer entry.
	age := currentSlot - submissionSlot
	score = satAdd(score, satMul(age, c.weights.WaitPerSlot))

	return score, nil
}

// mulDiv computes a*b/den in 128-bit intermediate precision, saturating on
// overflow of the final quotient. den must be non-zero.
func mulDiv(a, b, den uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, den)
	return q
}

func satAdd(a, b uint64) uint64 {
	s := a + b
	if s < a {
		return ^uint64(0)
	}
	return s
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > ^uint64(0)/b {
		return ^uint64(0)
	}
	return a * b
}
