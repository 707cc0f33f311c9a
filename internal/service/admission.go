// Package service implements the application services: trade admission with
// its full gate chain, the commit-reveal order flow, and liquidation
// request handling.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/versefi/versequeue/internal/budget"
	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/mev"
	"github.com/versefi/versequeue/internal/priority"
)

// AdmissionConfig holds the tunable parameters of the admission gate chain.
type AdmissionConfig struct {
	MaxLeverageX100   uint32
	CUCeilingPerTrade uint64

	// RateLimit / RateWindow bound per-user submissions. Zero disables
	// the gate.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultAdmissionConfig matches production: 20x leverage cap, 200k CU per
// trade, 10 submissions per 10 seconds per user.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		MaxLeverageX100:   2_000,
		CUCeilingPerTrade: 200_000,
		RateLimit:         10,
		RateWindow:        10 * time.Second,
	}
}

// SubmitRequest is one trade submission before admission.
type SubmitRequest struct {
	User           string
	SyntheticID    string
	IsBuy          bool
	Amount         uint64
	LeverageX100   uint32
	MaxSlippageBps uint16
	StopLossBps    uint32
	TakeProfitBps  uint32
	DeadlineSlot   uint64
	LogicalKey     string

	// EstImpactBps is the router's quoted price impact, consumed by the
	// sandwich screen.
	EstImpactBps uint32

	// CongestionFee is the fee the submitter attached. Under congestion,
	// submissions below the recommended fee are rejected.
	CongestionFee uint64
}

// SubmitResult reports a successful admission.
type SubmitResult struct {
	EntryID        uint64
	PriorityScore  uint64
	SubmissionSlot uint64
	QueuePending   int
	FeeTier        string
	RecommendedFee uint64
}

// AdmissionService runs the admission gate chain: rate limit, congestion
// backpressure, compute budget, priority scoring, sandwich screen, and
// finally queue insertion. Gates run in fixed order; the first failure
// rejects the submission.
type AdmissionService struct {
	cfg AdmissionConfig

	queue      *priority.Queue
	calc       *priority.Calculator
	congestion *priority.CongestionManager
	fees       *priority.FeeSchedule
	detector   *mev.Detector
	window     *mev.TradeWindow
	commits    *mev.CommitReveal

	state   domain.MarketStateSource
	slots   domain.SlotSource
	events  domain.EventPublisher
	store   domain.EntryStore
	limiter domain.RateLimiter

	nextID atomic.Uint64
	logger *slog.Logger
}

// NewAdmissionService creates the service. queue, calc, detector, window,
// commits, state, and slots are required; events, store, and limiter may be
// nil, disabling those side channels.
func NewAdmissionService(
	cfg AdmissionConfig,
	queue *priority.Queue,
	calc *priority.Calculator,
	congestion *priority.CongestionManager,
	fees *priority.FeeSchedule,
	detector *mev.Detector,
	window *mev.TradeWindow,
	commits *mev.CommitReveal,
	state domain.MarketStateSource,
	slots domain.SlotSource,
	events domain.EventPublisher,
	store domain.EntryStore,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *AdmissionService {
	if cfg.CUCeilingPerTrade == 0 {
		cfg.CUCeilingPerTrade = DefaultAdmissionConfig().CUCeilingPerTrade
	}
	return &AdmissionService{
		cfg:        cfg,
		queue:      queue,
		calc:       calc,
		congestion: congestion,
		fees:       fees,
		detector:   detector,
		window:     window,
		commits:    commits,
		state:      state,
		slots:      slots,
		events:     events,
		store:      store,
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "admission_service")),
	}
}

// SubmitTrade runs the gate chain and admits the trade at the current slot.
func (s *AdmissionService) SubmitTrade(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	return s.submit(ctx, req, s.slots.CurrentSlot())
}

// submit admits at an explicit submission slot so that revealed orders keep
// their commit slot's queue position.
func (s *AdmissionService) submit(ctx context.Context, req SubmitRequest, submissionSlot uint64) (SubmitResult, error) {
	if err := s.validate(req); err != nil {
		return SubmitResult{}, err
	}
	currentSlot := s.slots.CurrentSlot()

	// Gate 1: per-user rate limit.
	if s.limiter != nil && s.cfg.RateLimit > 0 {
		ok, err := s.limiter.Allow(ctx, "submit:"+req.User, s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			s.logger.Warn("rate limiter unavailable, failing open",
				slog.String("user", req.User),
				slog.String("error", err.Error()))
		} else if !ok {
			return SubmitResult{}, fmt.Errorf("user %s: %w", req.User, domain.ErrRateLimited)
		}
	}

	// Gate 2: congestion backpressure. Under congestion only submissions
	// carrying at least the recommended fee pass.
	fillBps := s.congestion.FillBps(s.queue.Len(), s.queue.Capacity())
	recommended := s.fees.Recommend(fillBps)
	if s.congestion.IsCongested(s.queue.Len(), s.queue.Capacity()) && req.CongestionFee < recommended {
		s.reject(ctx, req, currentSlot, "congestion fee below recommended")
		return SubmitResult{}, fmt.Errorf("fee %d below recommended %d: %w",
			req.CongestionFee, recommended, domain.ErrCongested)
	}

	// Gate 3: compute budget. Trades whose dispatch estimate exceeds the
	// per-trade ceiling can never execute and are rejected up front.
	legs := int(req.LeverageX100 / 100)
	estimate := budget.EstimateCost(budget.OpTradeDispatch, budget.Complexity{Legs: legs})
	if err := budget.Enforce(estimate, s.cfg.CUCeilingPerTrade); err != nil {
		s.reject(ctx, req, currentSlot, "dispatch estimate over ceiling")
		return SubmitResult{}, err
	}

	// Gate 4: priority scoring from live market state.
	stake, err := s.state.StakeOf(ctx, req.User)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reading stake for %s: %w", req.User, err)
	}
	totalStake, err := s.state.TotalStake(ctx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reading total stake: %w", err)
	}
	depth, err := s.state.VerseDepth(ctx, req.SyntheticID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reading verse depth for %s: %w", req.SyntheticID, err)
	}

	score, err := s.calc.Score(stake, depth, submissionSlot, req.Amount, currentSlot, totalStake)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("scoring submission: %w", err)
	}

	entry := domain.QueueEntry{
		EntryID:        s.nextID.Add(1),
		User:           req.User,
		PriorityScore:  score,
		SubmissionSlot: submissionSlot,
		SubmittedAt:    time.Now().UTC(),
		Status:         domain.StatusPending,
		StakeSnapshot:  stake,
		DepthBoost:     depth,
		LogicalKey:     req.LogicalKey,
		Trade: domain.TradeData{
			SyntheticID:    req.SyntheticID,
			IsBuy:          req.IsBuy,
			Amount:         req.Amount,
			LeverageX100:   req.LeverageX100,
			MaxSlippageBps: req.MaxSlippageBps,
			StopLossBps:    req.StopLossBps,
			TakeProfitBps:  req.TakeProfitBps,
			DeadlineSlot:   req.DeadlineSlot,
		},
	}

	// Gate 5: sandwich screen over the recent-trade window.
	flagged, err := s.detector.DetectSandwich(entry, req.EstImpactBps, s.window.Snapshot(currentSlot), currentSlot)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("sandwich screen: %w", err)
	}
	if flagged {
		s.publish(ctx, domain.EventSandwichRejected, currentSlot, map[string]any{
			"user":         req.User,
			"synthetic_id": req.SyntheticID,
			"amount":       req.Amount,
		})
		return SubmitResult{}, fmt.Errorf("submission by %s on %s: %w",
			req.User, req.SyntheticID, domain.ErrSandwichDetected)
	}

	// Gate 6: queue insertion.
	if err := s.queue.Admit(entry); err != nil {
		s.reject(ctx, req, currentSlot, err.Error())
		return SubmitResult{}, err
	}

	s.logger.Info("trade admitted",
		slog.Uint64("entry_id", entry.EntryID),
		slog.String("user", entry.User),
		slog.Uint64("score", score),
		slog.Uint64("slot", submissionSlot))
	s.publish(ctx, domain.EventTradeAdmitted, currentSlot, map[string]any{
		"entry_id":     entry.EntryID,
		"user":         entry.User,
		"synthetic_id": req.SyntheticID,
		"score":        score,
	})

	return SubmitResult{
		EntryID:        entry.EntryID,
		PriorityScore:  score,
		SubmissionSlot: submissionSlot,
		QueuePending:   s.queue.Len(),
		FeeTier:        s.fees.Tier(fillBps).String(),
		RecommendedFee: recommended,
	}, nil
}

// CancelTrade removes a pending entry. Only the submitter may cancel, and
// only while the entry has not been handed to the executor.
func (s *AdmissionService) CancelTrade(ctx context.Context, entryID uint64, user string) error {
	existing, ok := s.queue.Get(entryID)
	if !ok {
		return fmt.Errorf("entry %d: %w", entryID, domain.ErrNotFound)
	}
	if existing.User != user {
		return fmt.Errorf("entry %d not owned by %s: %w", entryID, user, domain.ErrInvalidInput)
	}

	entry, err := s.queue.Cancel(entryID)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.RecordTerminal(ctx, entry); err != nil {
			s.logger.Warn("terminal store failed",
				slog.Uint64("entry_id", entryID),
				slog.String("error", err.Error()))
		}
	}
	s.publish(ctx, domain.EventTradeCancelled, s.slots.CurrentSlot(), map[string]any{
		"entry_id": entryID,
		"user":     user,
	})
	return nil
}

// CommitOrder records a commitment hash for the user at the current slot.
func (s *AdmissionService) CommitOrder(ctx context.Context, user string, hash [32]byte) (uint64, error) {
	slot := s.slots.CurrentSlot()
	if err := s.commits.Commit(user, hash, slot); err != nil {
		return 0, err
	}
	s.publish(ctx, domain.EventOrderCommitted, slot, map[string]any{"user": user})
	return slot, nil
}

// RevealRequest discloses a previously committed order.
type RevealRequest struct {
	User           string
	SyntheticID    string
	IsBuy          bool
	Amount         uint64
	LimitPriceBps  uint64
	MaxSlippageBps uint16
	Nonce          uint64

	LeverageX100 uint32
	DeadlineSlot uint64
	EstImpactBps uint32
}

// RevealOrder validates the reveal against the outstanding commitment and,
// on success, submits the trade with the commit slot as its submission
// slot, so the reveal delay costs no queue priority.
func (s *AdmissionService) RevealOrder(ctx context.Context, req RevealRequest) (SubmitResult, error) {
	currentSlot := s.slots.CurrentSlot()

	digest := crypto.OrderDigest{
		User:           req.User,
		SyntheticID:    req.SyntheticID,
		IsBuy:          req.IsBuy,
		Amount:         req.Amount,
		LimitPriceBps:  req.LimitPriceBps,
		MaxSlippageBps: req.MaxSlippageBps,
	}
	commitSlot, err := s.commits.Reveal(req.User, digest, req.Nonce, currentSlot)
	if err != nil {
		return SubmitResult{}, err
	}

	s.publish(ctx, domain.EventOrderRevealed, currentSlot, map[string]any{
		"user":        req.User,
		"commit_slot": commitSlot,
	})

	return s.submit(ctx, SubmitRequest{
		User:           req.User,
		SyntheticID:    req.SyntheticID,
		IsBuy:          req.IsBuy,
		Amount:         req.Amount,
		LeverageX100:   req.LeverageX100,
		MaxSlippageBps: req.MaxSlippageBps,
		DeadlineSlot:   req.DeadlineSlot,
		EstImpactBps:   req.EstImpactBps,
	}, commitSlot)
}

// QueueStats exposes queue occupancy for the status endpoint.
func (s *AdmissionService) QueueStats() priority.Stats {
	return s.queue.Stats()
}

// FeeQuote returns the current congestion state and recommended fee.
func (s *AdmissionService) FeeQuote() (congested bool, tier string, recommended uint64) {
	fillBps := s.congestion.FillBps(s.queue.Len(), s.queue.Capacity())
	return s.congestion.IsCongested(s.queue.Len(), s.queue.Capacity()),
		s.fees.Tier(fillBps).String(),
		s.fees.Recommend(fillBps)
}

func (s *AdmissionService) validate(req SubmitRequest) error {
	switch {
	case req.User == "":
		return fmt.Errorf("user required: %w", domain.ErrInvalidInput)
	case req.SyntheticID == "":
		return fmt.Errorf("synthetic id required: %w", domain.ErrInvalidInput)
	case req.Amount == 0:
		return fmt.Errorf("amount must be positive: %w", domain.ErrInvalidInput)
	case req.LeverageX100 < 100:
		return fmt.Errorf("leverage below 1x: %w", domain.ErrInvalidInput)
	case s.cfg.MaxLeverageX100 > 0 && req.LeverageX100 > s.cfg.MaxLeverageX100:
		return fmt.Errorf("leverage %d over cap %d: %w",
			req.LeverageX100, s.cfg.MaxLeverageX100, domain.ErrInvalidInput)
	}
	return nil
}

func (s *AdmissionService) reject(ctx context.Context, req SubmitRequest, slot uint64, reason string) {
	s.logger.Debug("trade rejected",
		slog.String("user", req.User),
		slog.String("reason", reason))
	s.publish(ctx, domain.EventTradeRejected, slot, map[string]any{
		"user":         req.User,
		"synthetic_id": req.SyntheticID,
		"reason":       reason,
	})
}

func (s *AdmissionService) publish(ctx context.Context, kind domain.EventKind, slot uint64, payload any) {
	if s.events == nil {
		return
	}
	ev := domain.Event{Kind: kind, Slot: slot, At: time.Now().UTC(), Payload: payload}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}
}
