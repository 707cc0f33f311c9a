package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/versefi/versequeue/internal/priority"
	"github.com/versefi/versequeue/internal/service"
)

// TradeService defines the methods that the trade handler requires from the
// admission service.
type TradeService interface {
	SubmitTrade(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
	CancelTrade(ctx context.Context, entryID uint64, user string) error
	QueueStats() priority.Stats
	FeeQuote() (congested bool, tier string, recommended uint64)
}

// TradeHandler serves trade submission and cancellation endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// submitTradeRequest is the JSON body for a trade submission.
type submitTradeRequest struct {
	User           string `json:"user"`
	SyntheticID    string `json:"synthetic_id"`
	IsBuy          bool   `json:"is_buy"`
	Amount         uint64 `json:"amount"`
	LeverageX100   uint32 `json:"leverage_x100"`
	MaxSlippageBps uint16 `json:"max_slippage_bps"`
	StopLossBps    uint32 `json:"stop_loss_bps,omitempty"`
	TakeProfitBps  uint32 `json:"take_profit_bps,omitempty"`
	DeadlineSlot   uint64 `json:"deadline_slot"`
	LogicalKey     string `json:"logical_key,omitempty"`
	EstImpactBps   uint32 `json:"est_impact_bps,omitempty"`
	CongestionFee  uint64 `json:"congestion_fee,omitempty"`
}

// submitTradeResponse reports the queued entry back to the submitter.
type submitTradeResponse struct {
	EntryID        uint64 `json:"entry_id"`
	PriorityScore  uint64 `json:"priority_score"`
	SubmissionSlot uint64 `json:"submission_slot"`
	QueuePending   int    `json:"queue_pending"`
	FeeTier        string `json:"fee_tier"`
	RecommendedFee uint64 `json:"recommended_fee"`
}

// SubmitTrade admits a leveraged trade into the priority queue.
// POST /api/trades
func (h *TradeHandler) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req submitTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.trades.SubmitTrade(r.Context(), service.SubmitRequest{
		User:           req.User,
		SyntheticID:    req.SyntheticID,
		IsBuy:          req.IsBuy,
		Amount:         req.Amount,
		LeverageX100:   req.LeverageX100,
		MaxSlippageBps: req.MaxSlippageBps,
		StopLossBps:    req.StopLossBps,
		TakeProfitBps:  req.TakeProfitBps,
		DeadlineSlot:   req.DeadlineSlot,
		LogicalKey:     req.LogicalKey,
		EstImpactBps:   req.EstImpactBps,
		CongestionFee:  req.CongestionFee,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "submit trade", err)
		return
	}

	writeJSON(w, http.StatusCreated, submitTradeResponse{
		EntryID:        result.EntryID,
		PriorityScore:  result.PriorityScore,
		SubmissionSlot: result.SubmissionSlot,
		QueuePending:   result.QueuePending,
		FeeTier:        result.FeeTier,
		RecommendedFee: result.RecommendedFee,
	})
}

// CancelTrade removes a pending entry owned by the requesting user.
// DELETE /api/trades/{id}?user=...
func (h *TradeHandler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	idStr := pathParam(r, "id")
	entryID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	if err := h.trades.CancelTrade(r.Context(), entryID, user); err != nil {
		writeServiceError(w, r, h.logger, "cancel trade", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "cancelled",
		"entry_id": entryID,
	})
}

// GetFees returns the current congestion state and recommended priority fee.
// GET /api/fees
func (h *TradeHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	congested, tier, recommended := h.trades.FeeQuote()
	stats := h.trades.QueueStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"congested":       congested,
		"fee_tier":        tier,
		"recommended_fee": recommended,
		"queue_pending":   stats.Pending,
		"queue_capacity":  stats.Capacity,
	})
}
