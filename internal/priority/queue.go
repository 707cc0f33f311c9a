package priority

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/versefi/versequeue/internal/domain"
)

// Queue is the bounded priority queue of admitted trade entries. Capacity is
// fixed at construction. Dispatch order is strictly
// (priority score desc, submission slot asc, entry id asc), fully
// deterministic and independent of admission interleaving.
//
// The Queue is the single shared mutable structure of the admission path: it
// is mutated only by Admit and by the processor (PopHighest / Finish), which
// is the single writer for terminal transitions.
type Queue struct {
	mu       sync.Mutex
	capacity int

	heap       entryHeap
	pending    map[uint64]*heapItem // entry id -> pending item
	inflight   map[uint64]*domain.QueueEntry
	byKey      map[string]uint64 // logical key -> entry id (pending or inflight)
	totalVol   uint64
	admitted   uint64
	dispatched uint64
}

// Stats is a point-in-time snapshot of queue occupancy and throughput.
type Stats struct {
	Pending       int
	Inflight      int
	Capacity      int
	PendingVolume uint64
	Admitted      uint64
	Dispatched    uint64
}

// NewQueue creates a Queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		pending:  make(map[uint64]*heapItem),
		inflight: make(map[uint64]*domain.QueueEntry),
		byKey:    make(map[string]uint64),
	}
}

// Admit inserts an entry maintaining priority order. It fails with
// ErrQueueFull at capacity and with ErrDuplicateEntry when the entry id, or
// a non-empty logical key, is already pending or processing.
func (q *Queue) Admit(entry domain.QueueEntry) error {
	if entry.Status != domain.StatusPending {
		return fmt.Errorf("admit entry %d with status %s: %w", entry.EntryID, entry.Status, domain.ErrInvalidInput)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.capacity {
		return domain.ErrQueueFull
	}
	if _, ok := q.pending[entry.EntryID]; ok {
		return fmt.Errorf("entry %d: %w", entry.EntryID, domain.ErrDuplicateEntry)
	}
	if _, ok := q.inflight[entry.EntryID]; ok {
		return fmt.Errorf("entry %d: %w", entry.EntryID, domain.ErrDuplicateEntry)
	}
	if entry.LogicalKey != "" {
		if other, ok := q.byKey[entry.LogicalKey]; ok {
			return fmt.Errorf("key %q held by entry %d: %w", entry.LogicalKey, other, domain.ErrDuplicateEntry)
		}
	}

	item := &heapItem{entry: entry}
	heap.Push(&q.heap, item)
	q.pending[entry.EntryID] = item
	if entry.LogicalKey != "" {
		q.byKey[entry.LogicalKey] = entry.EntryID
	}
	q.totalVol += entry.Trade.Amount
	q.admitted++
	return nil
}

// PopHighest removes and returns the head of the queue, transitioning it
// Pending -> Processing. The entry stays tracked as inflight until Finish.
func (q *Queue) PopHighest() (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*heapItem)
		if item.removed {
			continue
		}
		delete(q.pending, item.entry.EntryID)
		q.totalVol -= item.entry.Trade.Amount

		e := item.entry
		e.Status = domain.StatusProcessing
		q.inflight[e.EntryID] = &e
		q.dispatched++
		return e, true
	}
	return domain.QueueEntry{}, false
}

// Peek returns a copy of the current head without removing it.
func (q *Queue) Peek() (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		item := q.heap[0]
		if item.removed {
			heap.Pop(&q.heap)
			continue
		}
		return item.entry, true
	}
	return domain.QueueEntry{}, false
}

// Finish records the terminal outcome of an inflight entry and releases its
// bookkeeping. Only Completed or Failed are accepted.
func (q *Queue) Finish(entryID uint64, status domain.EntryStatus, reason string) (domain.QueueEntry, error) {
	if status != domain.StatusCompleted && status != domain.StatusFailed {
		return domain.QueueEntry{}, fmt.Errorf("finish with status %s: %w", status, domain.ErrInvalidInput)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[entryID]
	if !ok {
		return domain.QueueEntry{}, fmt.Errorf("entry %d: %w", entryID, domain.ErrNotFound)
	}
	e.Status = status
	e.FailReason = reason
	delete(q.inflight, entryID)
	if e.LogicalKey != "" {
		delete(q.byKey, e.LogicalKey)
	}
	return *e, nil
}

// Cancel removes a Pending entry. Entries that have begun Processing are
// rejected with ErrAlreadyProcessing; unknown ids with ErrNotFound.
func (q *Queue) Cancel(entryID uint64) (domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[entryID]; ok {
		return domain.QueueEntry{}, fmt.Errorf("entry %d: %w", entryID, domain.ErrAlreadyProcessing)
	}
	item, ok := q.pending[entryID]
	if !ok {
		return domain.QueueEntry{}, fmt.Errorf("entry %d: %w", entryID, domain.ErrNotFound)
	}

	// Lazy removal: the item is flagged and skipped when it surfaces at the
	// heap head, avoiding an O(n) reheapify here.
	item.removed = true
	delete(q.pending, entryID)
	if item.entry.LogicalKey != "" {
		delete(q.byKey, item.entry.LogicalKey)
	}
	q.totalVol -= item.entry.Trade.Amount

	e := item.entry
	e.Status = domain.StatusCancelled
	return e, nil
}

// Get returns a copy of a tracked entry, pending or inflight.
func (q *Queue) Get(entryID uint64) (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.pending[entryID]; ok {
		return item.entry, true
	}
	if e, ok := q.inflight[entryID]; ok {
		return *e, true
	}
	return domain.QueueEntry{}, false
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Capacity returns the fixed capacity set at construction.
func (q *Queue) Capacity() int { return q.capacity }

// Stats returns a snapshot of queue occupancy and throughput counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:       len(q.pending),
		Inflight:      len(q.inflight),
		Capacity:      q.capacity,
		PendingVolume: q.totalVol,
		Admitted:      q.admitted,
		Dispatched:    q.dispatched,
	}
}

// heapItem wraps an entry with a lazy-removal flag.
type heapItem struct {
	entry   domain.QueueEntry
	removed bool
}

// entryHeap orders items by (score desc, submission slot asc, entry id asc).
type entryHeap []*heapItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i].entry, h[j].entry
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	if a.SubmissionSlot != b.SubmissionSlot {
		return a.SubmissionSlot < b.SubmissionSlot
	}
	return a.EntryID < b.EntryID
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*heapItem)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
