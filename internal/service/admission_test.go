package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/clock"
	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/mev"
	"github.com/versefi/versequeue/internal/priority"
)

type stubState struct {
	stakes map[string]uint64
	total  uint64
	depths map[string]uint32
}

func (s *stubState) StakeOf(_ context.Context, user string) (uint64, error) {
	return s.stakes[user], nil
}
func (s *stubState) TotalStake(context.Context) (uint64, error) { return s.total, nil }
func (s *stubState) VerseDepth(_ context.Context, id string) (uint32, error) {
	return s.depths[id], nil
}
func (s *stubState) PositionHealth(context.Context, string) (domain.PositionHealth, error) {
	return domain.PositionHealth{}, domain.ErrNotFound
}

type stubLimiter struct {
	allow bool
}

func (l *stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

type fixture struct {
	svc    *AdmissionService
	queue  *priority.Queue
	window *mev.TradeWindow
	slots  *clock.ManualSlotSource
}

func newFixture(t *testing.T, cfg AdmissionConfig, capacity int, limiter domain.RateLimiter) *fixture {
	t.Helper()
	q := priority.NewQueue(capacity)
	w := mev.NewTradeWindow(50, 256)
	slots := &clock.ManualSlotSource{Slot: 100}
	svc := NewAdmissionService(
		cfg,
		q,
		priority.NewCalculator(priority.Weights{}),
		priority.NewCongestionManager(80),
		priority.NewFeeSchedule(5_000, 10),
		mev.NewDetector(mev.DefaultDetectorConfig()),
		w,
		mev.NewCommitReveal(mev.CommitRevealConfig{RevealDelaySlots: 5, GraceSlots: 50}),
		&stubState{
			stakes: map[string]uint64{"alice": 10_000, "bob": 5_000},
			total:  1_000_000,
			depths: map[string]uint32{"BTC-UP": 3},
		},
		slots,
		nil,
		nil,
		limiter,
		slog.New(slog.DiscardHandler),
	)
	return &fixture{svc: svc, queue: q, window: w, slots: slots}
}

func submitReq(user string) SubmitRequest {
	return SubmitRequest{
		User:         user,
		SyntheticID:  "BTC-UP",
		IsBuy:        true,
		Amount:       50_000,
		LeverageX100: 300,
	}
}

func TestSubmitTradeAdmits(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	res, err := f.svc.SubmitTrade(context.Background(), submitReq("alice"))
	require.NoError(t, err)
	assert.NotZero(t, res.EntryID)
	assert.NotZero(t, res.PriorityScore)
	assert.Equal(t, uint64(100), res.SubmissionSlot)
	assert.Equal(t, 1, res.QueuePending)
}

func TestSubmitTradeValidation(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"empty user", func(r *SubmitRequest) { r.User = "" }},
		{"empty synthetic", func(r *SubmitRequest) { r.SyntheticID = "" }},
		{"zero amount", func(r *SubmitRequest) { r.Amount = 0 }},
		{"sub-1x leverage", func(r *SubmitRequest) { r.LeverageX100 = 50 }},
		{"over leverage cap", func(r *SubmitRequest) { r.LeverageX100 = 2_100 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := submitReq("alice")
			tc.mutate(&req)
			_, err := f.svc.SubmitTrade(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSubmitTradeRateLimited(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, &stubLimiter{allow: false})

	_, err := f.svc.SubmitTrade(context.Background(), submitReq("alice"))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSubmitTradeCongestionBackpressure(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 10, nil)

	// Fill to 80%: the congestion gate engages at the threshold.
	for i := 0; i < 8; i++ {
		req := submitReq("alice")
		req.LogicalKey = ""
		_, err := f.svc.SubmitTrade(context.Background(), req)
		require.NoError(t, err)
	}

	_, err := f.svc.SubmitTrade(context.Background(), submitReq("bob"))
	assert.ErrorIs(t, err, domain.ErrCongested)

	// The same submission carrying the recommended fee passes.
	_, _, recommended := f.svc.FeeQuote()
	req := submitReq("bob")
	req.CongestionFee = recommended
	_, err = f.svc.SubmitTrade(context.Background(), req)
	assert.NoError(t, err)
}

func TestSubmitTradeBudgetCeiling(t *testing.T) {
	cfg := DefaultAdmissionConfig()
	cfg.CUCeilingPerTrade = 40_000
	cfg.MaxLeverageX100 = 2_000
	f := newFixture(t, cfg, 16, nil)

	// 3 legs at 20k each estimates 60k, over the 40k ceiling.
	req := submitReq("alice")
	req.LeverageX100 = 300
	_, err := f.svc.SubmitTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)

	req.LeverageX100 = 200
	_, err = f.svc.SubmitTrade(context.Background(), req)
	assert.NoError(t, err)
}

func TestSubmitTradeSandwichRejected(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	f.window.RecordTrade(domain.RecentTrade{
		User: "attacker", SyntheticID: "BTC-UP", IsBuy: true,
		Amount: 20_000, Slot: 98, PriceImpactBps: 120,
	})
	f.window.RecordTrade(domain.RecentTrade{
		User: "attacker", SyntheticID: "BTC-UP", IsBuy: false,
		Amount: 20_000, Slot: 100, PriceImpactBps: 120,
	})

	req := submitReq("alice")
	req.EstImpactBps = 50
	_, err := f.svc.SubmitTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSandwichDetected)
}

func TestSubmitTradeLogicalKeyDedup(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	req := submitReq("alice")
	req.LogicalKey = "order-1"
	_, err := f.svc.SubmitTrade(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.SubmitTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)
}

func TestCancelTradeOwnership(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	res, err := f.svc.SubmitTrade(context.Background(), submitReq("alice"))
	require.NoError(t, err)

	err = f.svc.CancelTrade(context.Background(), res.EntryID, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.NoError(t, f.svc.CancelTrade(context.Background(), res.EntryID, "alice"))
	assert.Equal(t, 0, f.queue.Len())

	err = f.svc.CancelTrade(context.Background(), res.EntryID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitRevealKeepsCommitSlotPriority(t *testing.T) {
	f := newFixture(t, DefaultAdmissionConfig(), 16, nil)

	digest := crypto.OrderDigest{
		User:           "alice",
		SyntheticID:    "BTC-UP",
		IsBuy:          true,
		Amount:         50_000,
		LimitPriceBps:  5_100,
		MaxSlippageBps: 50,
	}
	hash := crypto.CommitmentHash(digest, 7)

	commitSlot, err := f.svc.CommitOrder(context.Background(), "alice", hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), commitSlot)

	// Reveal after the delay; the admitted entry keeps the commit slot.
	f.slots.Slot = 106
	res, err := f.svc.RevealOrder(context.Background(), RevealRequest{
		User:           "alice",
		SyntheticID:    "BTC-UP",
		IsBuy:          true,
		Amount:         50_000,
		LimitPriceBps:  5_100,
		MaxSlippageBps: 50,
		Nonce:          7,
		LeverageX100:   300,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.SubmissionSlot)

	// A premature reveal is rejected before any gate runs.
	f.slots.Slot = 100
	_, err = f.svc.CommitOrder(context.Background(), "bob", crypto.CommitmentHash(digest, 8))
	require.NoError(t, err)
	_, err = f.svc.RevealOrder(context.Background(), RevealRequest{
		User: "bob", SyntheticID: "BTC-UP", IsBuy: true, Amount: 50_000,
		LimitPriceBps: 5_100, MaxSlippageBps: 50, Nonce: 8, LeverageX100: 300,
	})
	assert.ErrorIs(t, err, domain.ErrRevealTooEarly)
}
