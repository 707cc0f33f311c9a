package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefi/versequeue/internal/domain"
	"github.com/versefi/versequeue/internal/priority"
)

type memWriter struct {
	puts map[string][]byte
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[path] = b
	return nil
}

func TestArchiveTickReports(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, "versequeue")
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	reports := []priority.Report{
		{Slot: 1000, Dispatched: 3, CUConsumed: 60_000},
		{Slot: 1001, Dispatched: 1, CUConsumed: 20_000},
	}
	require.NoError(t, a.ArchiveTickReports(context.Background(), at, reports))

	body, ok := w.puts["versequeue/ticks/queue/2026/08/28/1000.jsonl"]
	require.True(t, ok, "date-partitioned key, named after the first slot")

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 2, "one JSON document per line")
	assert.True(t, bytes.Contains(body, []byte(`"slot":1000`)))
}

func TestArchiveEmptyBatchSkipsUpload(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, "")

	require.NoError(t, a.ArchiveEntries(context.Background(), time.Now(), nil))
	require.NoError(t, a.ArchiveOutcomes(context.Background(), time.Now(), []domain.LiquidationOutcome{}))
	assert.Empty(t, w.puts)
}
