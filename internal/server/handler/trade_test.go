package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/priority"
	"github.com/versefi/versequeue/internal/service"
)

type stubTradeService struct {
	submitErr error
	cancelErr error
	lastReq   service.SubmitRequest
}

func (s *stubTradeService) SubmitTrade(_ context.Context, req service.SubmitRequest) (service.SubmitResult, error) {
	s.lastReq = req
	if s.submitErr != nil {
		return service.SubmitResult{}, s.submitErr
	}
	return service.SubmitResult{
		EntryID:        7,
		PriorityScore:  123_456,
		SubmissionSlot: 42,
		QueuePending:   1,
		FeeTier:        "normal",
		RecommendedFee: 10_000,
	}, nil
}

func (s *stubTradeService) CancelTrade(context.Context, uint64, string) error {
	return s.cancelErr
}

func (s *stubTradeService) QueueStats() priority.Stats {
	return priority.Stats{Pending: 3, Capacity: 1024}
}

func (s *stubTradeService) FeeQuote() (bool, string, uint64) {
	return false, "normal", 10_000
}

func newTradeRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSubmitTradeCreated(t *testing.T) {
	svc := &stubTradeService{}
	h := NewTradeHandler(svc, testLogger())

	body := `{"user":"alice","synthetic_id":"btc-up","is_buy":true,"amount":5000,"leverage_x100":300,"max_slippage_bps":50,"deadline_slot":100}`
	rec := httptest.NewRecorder()
	h.SubmitTrade(rec, newTradeRequest(t, http.MethodPost, "/api/trades", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entry_id":7`)
	assert.Contains(t, rec.Body.String(), `"priority_score":123456`)
	assert.Equal(t, "alice", svc.lastReq.User)
	assert.Equal(t, uint32(300), svc.lastReq.LeverageX100)
}

func TestSubmitTradeErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"congested", domain.ErrCongested, http.StatusServiceUnavailable},
		{"queue full", domain.ErrQueueFull, http.StatusServiceUnavailable},
		{"budget exceeded", domain.ErrBudgetExceeded, http.StatusUnprocessableEntity},
		{"sandwich detected", domain.ErrSandwichDetected, http.StatusForbidden},
		{"duplicate", domain.ErrDuplicateEntry, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTradeHandler(&stubTradeService{submitErr: tt.err}, testLogger())

			body := `{"user":"alice","synthetic_id":"btc-up","amount":1,"leverage_x100":100,"deadline_slot":10}`
			rec := httptest.NewRecorder()
			h.SubmitTrade(rec, newTradeRequest(t, http.MethodPost, "/api/trades", body))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSubmitTradeRejectsMalformedBody(t *testing.T) {
	h := NewTradeHandler(&stubTradeService{}, testLogger())

	rec := httptest.NewRecorder()
	h.SubmitTrade(rec, newTradeRequest(t, http.MethodPost, "/api/trades", `{"user":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTradeRequiresUser(t *testing.T) {
	h := NewTradeHandler(&stubTradeService{}, testLogger())

	req := newTradeRequest(t, http.MethodDelete, "/api/trades/7", "")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()
	h.CancelTrade(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTradeNotFound(t *testing.T) {
	h := NewTradeHandler(&stubTradeService{cancelErr: domain.ErrNotFound}, testLogger())

	req := newTradeRequest(t, http.MethodDelete, "/api/trades/7?user=alice", "")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()
	h.CancelTrade(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFees(t *testing.T) {
	h := NewTradeHandler(&stubTradeService{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetFees(rec, httptest.NewRequest(http.MethodGet, "/api/fees", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recommended_fee":10000`)
	assert.Contains(t, rec.Body.String(), `"queue_capacity":1024`)
}
