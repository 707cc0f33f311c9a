package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/versefi/versequeue/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain sentinel errors to HTTP status codes. Unknown
// errors map to 500 and should be logged by the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrHashMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrCongested),
		errors.Is(err, domain.ErrLiquidationsHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrAlreadyLiquidating),
		errors.Is(err, domain.ErrCommitmentPending),
		errors.Is(err, domain.ErrPositionHealthy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSandwichDetected):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRevealTooEarly):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrCommitmentExpired),
		errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownCommitment):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError translates a service-layer error into an HTTP response,
// logging only the unexpected (5xx) ones.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
