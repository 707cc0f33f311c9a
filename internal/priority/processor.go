package priority

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/versefi/versequeue/internal/budget"
	"github.com/versefi/versequeue/internal/domain"
)

// TradeRecorder receives executed trades for the sandwich-detection window.
type TradeRecorder interface {
	RecordTrade(t domain.RecentTrade)
}

// Report summarizes one processing tick.
type Report struct {
	Slot       uint64 `json:"slot"`
	Dispatched int    `json:"dispatched"`
	Expired    int    `json:"expired"`
	Failed     int    `json:"failed"`
	Remaining  int    `json:"remaining"`
	CUConsumed uint64 `json:"cu_consumed"`
}

// Processor drains the priority queue once per scheduling tick, dispatching
// entries to the external trade executor under the tick's compute budget.
// It is the single writer for entry terminal transitions.
type Processor struct {
	queue      *Queue
	exec       domain.TradeExecutor
	events     domain.EventPublisher
	store      domain.EntryStore
	recorder   TradeRecorder
	congestion *CongestionManager
	logger     *slog.Logger
}

// NewProcessor creates a Processor. events, store, recorder, and congestion
// may be nil; the corresponding side channels are then skipped.
func NewProcessor(queue *Queue, exec domain.TradeExecutor, events domain.EventPublisher,
	store domain.EntryStore, recorder TradeRecorder, congestion *CongestionManager,
	logger *slog.Logger) *Processor {
	return &Processor{
		queue:      queue,
		exec:       exec,
		events:     events,
		store:      store,
		recorder:   recorder,
		congestion: congestion,
		logger:     logger.With(slog.String("component", "queue_processor")),
	}
}

// ProcessTick pops up to maxItems entries in priority order. Each entry is
// re-validated against its deadline (expired entries are marked Failed
// without dispatch), costed against the tick budget (when the next item does
// not fit, processing stops early and the item stays queued — an item is
// never partially executed), and dispatched to the executor.
//
// A dispatch failure is recorded on the entry and not retried within the
// tick; resubmission is the caller's decision.
func (p *Processor) ProcessTick(ctx context.Context, execCtx *budget.ExecutionContext, maxItems int) Report {
	report := Report{Slot: execCtx.CurrentSlot}

	for i := 0; i < maxItems; i++ {
		head, ok := p.queue.Peek()
		if !ok {
			break
		}

		// Expiry purge is lazy: expired entries surface here and are
		// retired without charging the dispatch budget.
		if head.Trade.DeadlineSlot != 0 && head.Trade.DeadlineSlot < execCtx.CurrentSlot {
			entry, popped := p.queue.PopHighest()
			if !popped {
				break
			}
			final, err := p.queue.Finish(entry.EntryID, domain.StatusFailed, domain.ErrExpired.Error())
			if err != nil {
				p.logger.Error("finish expired entry", slog.Uint64("entry_id", entry.EntryID), slog.String("error", err.Error()))
				continue
			}
			report.Expired++
			p.publish(ctx, domain.EventTradeExpired, execCtx.CurrentSlot, final)
			p.record(ctx, final)
			continue
		}

		cost := budget.EstimateCost(budget.OpTradeDispatch, budget.Complexity{
			Legs: int(head.Trade.LeverageX100 / 100),
		})
		if !execCtx.CanAfford(cost) {
			// Leave the head for the next tick rather than dispatching a
			// truncated operation.
			break
		}

		entry, popped := p.queue.PopHighest()
		if !popped {
			break
		}
		if err := execCtx.Consume(budget.OpTradeDispatch.String(), cost); err != nil {
			// Another check raced the estimate; requeue is not possible, so
			// fail the entry explicitly rather than drop it silently.
			p.finish(ctx, &report, entry, domain.StatusFailed, err.Error())
			report.Failed++
			continue
		}

		receipt, err := p.exec.ExecuteTrade(ctx, entry)
		if err != nil {
			report.Failed++
			p.finish(ctx, &report, entry, domain.StatusFailed, err.Error())
			p.logger.Debug("dispatch failed",
				slog.Uint64("entry_id", entry.EntryID),
				slog.String("error", err.Error()),
			)
			continue
		}

		report.Dispatched++
		p.finish(ctx, &report, entry, domain.StatusCompleted, "")

		if p.recorder != nil {
			p.recorder.RecordTrade(domain.RecentTrade{
				User:           entry.User,
				SyntheticID:    entry.Trade.SyntheticID,
				IsBuy:          entry.Trade.IsBuy,
				Amount:         receipt.FilledAmount,
				Slot:           receipt.ExecutedSlot,
				PriceImpactBps: receipt.ImpactBps,
			})
		}
	}

	report.Remaining = p.queue.Len()
	report.CUConsumed = execCtx.Consumed()

	if p.congestion != nil {
		p.congestion.ObserveTick(execCtx.CurrentSlot, report.Dispatched)
	}
	return report
}

func (p *Processor) finish(ctx context.Context, report *Report, entry domain.QueueEntry, status domain.EntryStatus, reason string) {
	final, err := p.queue.Finish(entry.EntryID, status, reason)
	if err != nil {
		p.logger.Error("finish entry",
			slog.Uint64("entry_id", entry.EntryID),
			slog.String("error", err.Error()),
		)
		return
	}

	kind := domain.EventTradeDispatched
	if status == domain.StatusFailed {
		kind = domain.EventTradeFailed
	}
	p.publish(ctx, kind, report.Slot, final)
	p.record(ctx, final)
}

// publish fans an event out best-effort; failures are logged and dropped.
func (p *Processor) publish(ctx context.Context, kind domain.EventKind, slot uint64, entry domain.QueueEntry) {
	if p.events == nil {
		return
	}
	ev := domain.Event{Kind: kind, Slot: slot, At: time.Now().UTC(), Payload: entry}
	if err := p.events.Publish(ctx, ev); err != nil {
		p.logger.Warn("publish event", slog.String("kind", string(kind)), slog.String("error", err.Error()))
	}
}

// record mirrors the terminal entry to durable storage, best-effort.
func (p *Processor) record(ctx context.Context, entry domain.QueueEntry) {
	if p.store == nil {
		return
	}
	if err := p.store.RecordTerminal(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("record terminal entry",
			slog.Uint64("entry_id", entry.EntryID),
			slog.String("error", err.Error()),
		)
	}
}
