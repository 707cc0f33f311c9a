package priority

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
)

func TestScoreRejectsInvalidInput(t *testing.T) {
	calc := NewCalculator(Weights{})

	_, err := calc.Score(2_000, 4, 100, 500, 110, 1_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "stake > total stake")

	_, err = calc.Score(100, 4, 120, 500, 110, 1_000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "submission in the future")
}

func TestScoreMonotonicity(t *testing.T) {
	calc := NewCalculator(Weights{})

	base, err := calc.Score(1_000, 4, 100, 50_000, 110, 100_000)
	require.NoError(t, err)

	cases := []struct {
		name  string
		stake uint64
		depth uint32
		sub   uint64
		vol   uint64
		cur   uint64
	}{
		{"more stake", 5_000, 4, 100, 50_000, 110},
		{"deeper verse", 1_000, 8, 100, 50_000, 110},
		{"longer wait", 1_000, 4, 100, 50_000, 200},
		{"more volume", 1_000, 4, 100, 200_000, 110},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.Score(tc.stake, tc.depth, tc.sub, tc.vol, tc.cur, 100_000)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, base)
		})
	}
}

func TestScoreSaturatesInsteadOfWrapping(t *testing.T) {
	calc := NewCalculator(Weights{})

	max := ^uint64(0)
	got, err := calc.Score(max, 32, 0, max, max, max)
	require.NoError(t, err)
	assert.Equal(t, max, got)
}

// An entry with minimal stake submitted earlier must eventually outrank a
// maximal-stake entry submitted now: the wait bonus is unbounded.
func TestAntiStarvation(t *testing.T) {
	calc := NewCalculator(Weights{})

	const (
		totalStake = 10_000_000
		lowStake   = 1
		highStake  = totalStake
	)

	found := false
	for delta := uint64(1); delta <= 1_000_000; delta *= 2 {
		current := uint64(1_000_000) + delta
		old, err := calc.Score(lowStake, 0, 1_000_000, 0, current, totalStake)
		require.NoError(t, err)
		fresh, err := calc.Score(highStake, 32, current, ^uint64(0), current, totalStake)
		require.NoError(t, err)
		if old >= fresh {
			found = true
			break
		}
	}
	assert.True(t, found, "a finite wait must let the low-stake entry catch up")
}
