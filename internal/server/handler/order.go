package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/versefi/versequeue/internal/service"
)

// OrderService defines the commit-reveal methods the order handler requires.
type OrderService interface {
	CommitOrder(ctx context.Context, user string, hash [32]byte) (uint64, error)
	RevealOrder(ctx context.Context, req service.RevealRequest) (service.SubmitResult, error)
}

// OrderHandler serves the commit-reveal order flow.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// commitRequest carries the hash of an order to be revealed later.
type commitRequest struct {
	User string `json:"user"`
	Hash string `json:"hash"` // hex, 64 chars
}

// CommitOrder records an order commitment for the user.
// POST /api/orders/commit
func (h *OrderHandler) CommitOrder(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	raw, err := hex.DecodeString(req.Hash)
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "hash must be 64 hex characters")
		return
	}
	var hash [32]byte
	copy(hash[:], raw)

	slot, err := h.orders.CommitOrder(r.Context(), req.User, hash)
	if err != nil {
		writeServiceError(w, r, h.logger, "commit order", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "committed",
		"commit_slot": slot,
	})
}

// revealRequest discloses the order matching an outstanding commitment.
type revealRequest struct {
	User           string `json:"user"`
	SyntheticID    string `json:"synthetic_id"`
	IsBuy          bool   `json:"is_buy"`
	Amount         uint64 `json:"amount"`
	LimitPriceBps  uint64 `json:"limit_price_bps"`
	MaxSlippageBps uint16 `json:"max_slippage_bps"`
	Nonce          uint64 `json:"nonce"`
	LeverageX100   uint32 `json:"leverage_x100"`
	DeadlineSlot   uint64 `json:"deadline_slot"`
	EstImpactBps   uint32 `json:"est_impact_bps,omitempty"`
}

// RevealOrder verifies the reveal against the commitment and submits the
// trade with the original commit slot, so waiting out the reveal delay does
// not cost queue priority.
// POST /api/orders/reveal
func (h *OrderHandler) RevealOrder(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orders.RevealOrder(r.Context(), service.RevealRequest{
		User:           req.User,
		SyntheticID:    req.SyntheticID,
		IsBuy:          req.IsBuy,
		Amount:         req.Amount,
		LimitPriceBps:  req.LimitPriceBps,
		MaxSlippageBps: req.MaxSlippageBps,
		Nonce:          req.Nonce,
		LeverageX100:   req.LeverageX100,
		DeadlineSlot:   req.DeadlineSlot,
		EstImpactBps:   req.EstImpactBps,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "reveal order", err)
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
