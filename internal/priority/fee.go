package priority

// FeeTier buckets the current congestion level for fee recommendations.
type FeeTier uint8

const (
	TierLow FeeTier = iota
	TierMedium
	TierHigh
	TierVeryHigh
)

func (t FeeTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// Tier thresholds in queue-fill basis points.
const (
	tierMediumBps   = 5_000
	tierHighBps     = 7_500
	tierVeryHighBps = 9_000
)

// FeeSchedule recommends a priority fee that grows with congestion. The fee
// is advisory and returned with submit responses; it never affects the
// admission decision or the priority score.
type FeeSchedule struct {
	baseFee       uint64
	maxMultiplier uint64
}

// NewFeeSchedule creates a schedule with the given base fee in lamports and
// a cap on the congestion multiplier.
func NewFeeSchedule(baseFee, maxMultiplier uint64) *FeeSchedule {
	if baseFee == 0 {
		baseFee = 5_000
	}
	if maxMultiplier == 0 {
		maxMultiplier = 10
	}
	return &FeeSchedule{baseFee: baseFee, maxMultiplier: maxMultiplier}
}

// Tier maps a queue-fill ratio to a fee tier.
func (f *FeeSchedule) Tier(fillBps uint32) FeeTier {
	switch {
	case fillBps >= tierVeryHighBps:
		return TierVeryHigh
	case fillBps >= tierHighBps:
		return TierHigh
	case fillBps >= tierMediumBps:
		return TierMedium
	default:
		return TierLow
	}
}

// Recommend returns the suggested fee for the current congestion level. The
// multiplier scales linearly from 1x at an empty queue to maxMultiplier at a
// full queue.
func (f *FeeSchedule) Recommend(fillBps uint32) uint64 {
	if fillBps > 10_000 {
		fillBps = 10_000
	}
	// 1x at 0 bps, maxMultiplier at 10_000 bps, in 1/100ths.
	multX100 := 100 + uint64(fillBps)*(f.maxMultiplier-1)/100
	return f.baseFee * multX100 / 100
}
