package handler

import (
	"net/http"
	"time"

	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/liquidation"
	"github.com/versefi/versequeue/internal/priority"
)

// StatusHandler serves a combined runtime snapshot for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	queue     interface{ QueueStats() priority.Stats }
	liq       interface{ Stats() liquidation.Stats }
	slots     domain.SlotSource
}

// NewStatusHandler creates a StatusHandler. queue, liq, and slots may be nil
// when the corresponding subsystem is not running in this mode.
func NewStatusHandler(mode string, queue interface{ QueueStats() priority.Stats },
	liq interface{ Stats() liquidation.Stats }, slots domain.SlotSource) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		queue:     queue,
		liq:       liq,
		slots:     slots,
	}
}

// GetStatus responds with the current mode, slot, and subsystem stats.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.slots != nil {
		body["current_slot"] = h.slots.CurrentSlot()
	}
	if h.queue != nil {
		stats := h.queue.QueueStats()
		body["queue"] = map[string]any{
			"pending":        stats.Pending,
			"inflight":       stats.Inflight,
			"capacity":       stats.Capacity,
			"pending_volume": stats.PendingVolume,
			"admitted":       stats.Admitted,
			"dispatched":     stats.Dispatched,
		}
	}
	if h.liq != nil {
		body["liquidations"] = h.liq.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}
