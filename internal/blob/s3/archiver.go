package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/liquidation"
	"github.com/versefi/versequeue/internal/priority"
)

// BlobWriter is the narrow upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver serializes batches of tick reports, terminal entries, and
// liquidation outcomes to JSONL and uploads them under date-partitioned
// keys. The scheduler hands it in-memory batches; the primary store is
// never read back for archival.
type Archiver struct {
	writer BlobWriter
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix, e.g.
// "versequeue".
func NewArchiver(writer BlobWriter, prefix string) *Archiver {
	if prefix == "" {
		prefix = "versequeue"
	}
	return &Archiver{writer: writer, prefix: prefix}
}

// ArchiveTickReports uploads a batch of queue tick reports.
func (a *Archiver) ArchiveTickReports(ctx context.Context, at time.Time, reports []priority.Report) error {
	if len(reports) == 0 {
		return nil
	}
	key := a.key("ticks/queue", at, reports[0].Slot)
	return a.putJSONL(ctx, key, len(reports), func(i int) any { return reports[i] })
}

// ArchiveLiquidationReports uploads a batch of engine tick reports.
func (a *Archiver) ArchiveLiquidationReports(ctx context.Context, at time.Time, reports []liquidation.Report) error {
	if len(reports) == 0 {
		return nil
	}
	key := a.key("ticks/liquidation", at, reports[0].Slot)
	return a.putJSONL(ctx, key, len(reports), func(i int) any { return reports[i] })
}

// ArchiveEntries uploads a batch of terminal queue entries.
func (a *Archiver) ArchiveEntries(ctx context.Context, at time.Time, entries []domain.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := a.key("entries", at, entries[0].SubmissionSlot)
	return a.putJSONL(ctx, key, len(entries), func(i int) any { return entries[i] })
}

// ArchiveOutcomes uploads a batch of liquidation outcomes.
func (a *Archiver) ArchiveOutcomes(ctx context.Context, at time.Time, outcomes []domain.LiquidationOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	key := a.key("outcomes", at, outcomes[0].Slot)
	return a.putJSONL(ctx, key, len(outcomes), func(i int) any { return outcomes[i] })
}

// key builds a date-partitioned object key:
// <prefix>/<kind>/2026/08/28/<slot>.jsonl
func (a *Archiver) key(kind string, at time.Time, slot uint64) string {
	return fmt.Sprintf("%s/%s/%s/%d.jsonl",
		a.prefix, kind, at.UTC().Format("2006/01/02"), slot)
}

func (a *Archiver) putJSONL(ctx context.Context, key string, n int, item func(int) any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < n; i++ {
		if err := enc.Encode(item(i)); err != nil {
			return fmt.Errorf("s3blob: encode archive line: %w", err)
		}
	}
	return a.writer.Put(ctx, key, &buf, "application/x-ndjson")
}
