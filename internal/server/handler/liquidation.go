package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/versefi/versequeue/internal/liquidation"
	"github.com/versefi/versequeue/internal/service"
)

// LiquidationRequestService defines what the liquidation handler needs from
// the service layer.
type LiquidationRequestService interface {
	RequestLiquidation(ctx context.Context, params service.LiquidationParams) (service.LiquidationResult, error)
	Resume(ctx context.Context) bool
	Stats() liquidation.Stats
}

// LiquidationHandler serves liquidation request endpoints for keepers.
type LiquidationHandler struct {
	liquidations LiquidationRequestService
	logger       *slog.Logger
}

// NewLiquidationHandler creates a LiquidationHandler.
func NewLiquidationHandler(liquidations LiquidationRequestService, logger *slog.Logger) *LiquidationHandler {
	return &LiquidationHandler{
		liquidations: liquidations,
		logger:       logger,
	}
}

// liquidationRequest is the JSON body for a keeper liquidation request.
type liquidationRequest struct {
	PositionID           string `json:"position_id"`
	Liquidator           string `json:"liquidator"`
	MaxLiquidationAmount uint64 `json:"max_liquidation_amount"`
	MinProfitBps         uint16 `json:"min_profit_bps,omitempty"`
	DeadlineSlot         uint64 `json:"deadline_slot"`
}

// RequestLiquidation queues a liquidation against an unhealthy position.
// Exactly one keeper wins the claim for a position; later requests get 409.
// POST /api/liquidations
func (h *LiquidationHandler) RequestLiquidation(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.liquidations.RequestLiquidation(r.Context(), service.LiquidationParams{
		PositionID:           req.PositionID,
		Liquidator:           req.Liquidator,
		MaxLiquidationAmount: req.MaxLiquidationAmount,
		MinProfitBps:         req.MinProfitBps,
		DeadlineSlot:         req.DeadlineSlot,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "request liquidation", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"request_id":  result.RequestID.String(),
		"position_id": result.PositionID,
		"health_bps":  result.HealthBps,
		"slot":        result.Slot,
	})
}

// ResumeLiquidations manually overrides an active halt.
// POST /api/liquidations/resume
func (h *LiquidationHandler) ResumeLiquidations(w http.ResponseWriter, r *http.Request) {
	resumed := h.liquidations.Resume(r.Context())
	if !resumed {
		writeJSON(w, http.StatusOK, map[string]any{"status": "not_halted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "resumed"})
}

// GetStats returns liquidation queue occupancy per shard.
// GET /api/liquidations/stats
func (h *LiquidationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.liquidations.Stats())
}
