package mev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
)

func candidate(user, synthetic string, isBuy bool, amount, slot uint64) domain.QueueEntry {
	return domain.QueueEntry{
		EntryID:        1,
		User:           user,
		SubmissionSlot: slot,
		Trade: domain.TradeData{
			SyntheticID: synthetic,
			IsBuy:       isBuy,
			Amount:      amount,
		},
	}
}

func TestDetectSandwichFlagsTriple(t *testing.T) {
	d := NewDetector(DetectorConfig{
		LookbackSlots:      10,
		MinFrontrunAmount:  1_000,
		ImpactThresholdBps: 200,
	})

	c := candidate("victim", "BTC-UP", true, 50_000, 100)
	recent := []domain.RecentTrade{
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 90},
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 80},
	}

	flagged, err := d.DetectSandwich(c, 80, recent, 101)
	require.NoError(t, err)
	assert.True(t, flagged, "aggregate impact 250 bps over 200 threshold")
}

func TestDetectSandwichBelowThreshold(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	c := candidate("victim", "BTC-UP", true, 50_000, 100)
	recent := []domain.RecentTrade{
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 40},
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 40},
	}

	flagged, err := d.DetectSandwich(c, 40, recent, 101)
	require.NoError(t, err)
	assert.False(t, flagged, "aggregate impact 120 bps under threshold")
}

func TestDetectSandwichIgnoresUnrelatedFlow(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	c := candidate("victim", "BTC-UP", true, 50_000, 100)

	cases := []struct {
		name   string
		recent []domain.RecentTrade
	}{
		{
			name: "different market",
			recent: []domain.RecentTrade{
				{User: "a", SyntheticID: "ETH-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 150},
				{User: "a", SyntheticID: "ETH-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 150},
			},
		},
		{
			name: "frontrun is candidate's own trade",
			recent: []domain.RecentTrade{
				{User: "victim", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 150},
				{User: "victim", SyntheticID: "BTC-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 150},
			},
		},
		{
			name: "no reversal leg",
			recent: []domain.RecentTrade{
				{User: "a", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 300},
			},
		},
		{
			name: "reversal by different user",
			recent: []domain.RecentTrade{
				{User: "a", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 98, PriceImpactBps: 150},
				{User: "b", SyntheticID: "BTC-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 150},
			},
		},
		{
			name: "frontrun below dust threshold",
			recent: []domain.RecentTrade{
				{User: "a", SyntheticID: "BTC-UP", IsBuy: true, Amount: 500, Slot: 98, PriceImpactBps: 150},
				{User: "a", SyntheticID: "BTC-UP", IsBuy: false, Amount: 500, Slot: 101, PriceImpactBps: 150},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flagged, err := d.DetectSandwich(c, 100, tc.recent, 101)
			require.NoError(t, err)
			assert.False(t, flagged)
		})
	}
}

func TestDetectSandwichLookbackExcludesOldTrades(t *testing.T) {
	d := NewDetector(DetectorConfig{
		LookbackSlots:      10,
		MinFrontrunAmount:  1_000,
		ImpactThresholdBps: 200,
	})

	c := candidate("victim", "BTC-UP", true, 50_000, 100)
	recent := []domain.RecentTrade{
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: true, Amount: 20_000, Slot: 80, PriceImpactBps: 150},
		{User: "attacker", SyntheticID: "BTC-UP", IsBuy: false, Amount: 20_000, Slot: 101, PriceImpactBps: 150},
	}

	flagged, err := d.DetectSandwich(c, 100, recent, 101)
	require.NoError(t, err)
	assert.False(t, flagged, "frontrun at slot 80 is outside the 10-slot window at slot 101")
}

func TestDetectSandwichRejectsInvalidSlot(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	c := candidate("victim", "BTC-UP", true, 50_000, 100)

	_, err := d.DetectSandwich(c, 0, nil, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTradeWindowEvictsByAge(t *testing.T) {
	w := NewTradeWindow(10, 100)
	w.RecordTrade(domain.RecentTrade{User: "a", Slot: 5})
	w.RecordTrade(domain.RecentTrade{User: "b", Slot: 12})
	w.RecordTrade(domain.RecentTrade{User: "c", Slot: 20})

	got := w.Snapshot(20)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].User)
	assert.Equal(t, "c", got[1].User)
}

func TestTradeWindowEvictsByCount(t *testing.T) {
	w := NewTradeWindow(1_000, 3)
	for i := uint64(0); i < 5; i++ {
		w.RecordTrade(domain.RecentTrade{Slot: i})
	}

	got := w.Snapshot(5)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Slot, "oldest entries evicted first")
	assert.Equal(t, uint64(4), got[2].Slot)
}
