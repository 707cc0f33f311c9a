// Package liquidation implements the sharded liquidation engine: per-shard
// urgency-ordered queues, position claims guaranteeing at most one winner,
// graduated partial liquidation, and the cascade circuit breaker.
package liquidation

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/versefi/versequeue/internal/domain"
)

// shardQueue orders liquidation requests by urgency inside one shard:
// lowest health first, then highest value, then earliest submission. One
// outstanding request per position.
type shardQueue struct {
	mu         sync.Mutex
	heap       requestHeap
	byPosition map[string]*requestItem
}

type requestItem struct {
	req     domain.LiquidationRequest
	index   int
	removed bool
}

func newShardQueue() *shardQueue {
	return &shardQueue{byPosition: make(map[string]*requestItem)}
}

// Push enqueues a request. A position with a request already pending is
// rejected; the claim table upstream makes this a defensive double-check
// rather than the primary guard.
func (q *shardQueue) Push(req domain.LiquidationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byPosition[req.PositionID]; ok {
		return fmt.Errorf("position %s already queued: %w", req.PositionID, domain.ErrAlreadyLiquidating)
	}

	item := &requestItem{req: req}
	heap.Push(&q.heap, item)
	q.byPosition[req.PositionID] = item
	return nil
}

// Pop removes and returns the most urgent pending request.
func (q *shardQueue) Pop() (domain.LiquidationRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*requestItem)
		if item.removed {
			continue
		}
		delete(q.byPosition, item.req.PositionID)
		return item.req, true
	}
	return domain.LiquidationRequest{}, false
}

// Remove drops a pending request for the position, if any. Removal is lazy:
// the heap slot is tombstoned and skipped on Pop.
func (q *shardQueue) Remove(positionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byPosition[positionID]
	if !ok {
		return false
	}
	item.removed = true
	delete(q.byPosition, positionID)
	return true
}

// ClearStale tombstones requests whose deadline has passed and returns them
// so the caller can release claims and emit events.
func (q *shardQueue) ClearStale(currentSlot uint64) []domain.LiquidationRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stale []domain.LiquidationRequest
	for pos, item := range q.byPosition {
		if item.req.DeadlineSlot != 0 && item.req.DeadlineSlot < currentSlot {
			item.removed = true
			delete(q.byPosition, pos)
			stale = append(stale, item.req)
		}
	}
	return stale
}

func (q *shardQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byPosition)
}

type requestHeap []*requestItem

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	a, b := h[i].req, h[j].req
	if a.HealthBps != b.HealthBps {
		return a.HealthBps < b.HealthBps
	}
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	return a.SubmissionSlot < b.SubmissionSlot
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	item := x.(*requestItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
