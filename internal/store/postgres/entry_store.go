package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versefi/versequeue/internal/domain"
)

// EntryStore implements domain.EntryStore using PostgreSQL.
type EntryStore struct {
	pool *pgxpool.Pool
}

// NewEntryStore creates an EntryStore backed by the given connection pool.
func NewEntryStore(pool *pgxpool.Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// RecordTerminal upserts a terminal queue entry. Replays of the same entry
// id overwrite, so the row always reflects the final outcome.
func (s *EntryStore) RecordTerminal(ctx context.Context, entry domain.QueueEntry) error {
	const query = `
		INSERT INTO queue_entries (
			entry_id, "user", synthetic_id, is_buy, amount, leverage_x100,
			priority_score, submission_slot, submitted_at, status,
			stake_snapshot, depth_boost, fail_reason, logical_key
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		) ON CONFLICT (entry_id) DO UPDATE SET
			status = EXCLUDED.status,
			fail_reason = EXCLUDED.fail_reason`

	// The score column is NUMERIC: scores saturate at the top of the uint64
	// range, past what BIGINT holds.
	_, err := s.pool.Exec(ctx, query,
		int64(entry.EntryID), entry.User, entry.Trade.SyntheticID, entry.Trade.IsBuy,
		int64(entry.Trade.Amount), int32(entry.Trade.LeverageX100),
		strconv.FormatUint(entry.PriorityScore, 10), int64(entry.SubmissionSlot), entry.SubmittedAt,
		entry.Status.String(), int64(entry.StakeSnapshot), int32(entry.DepthBoost),
		nullIfEmpty(entry.FailReason), nullIfEmpty(entry.LogicalKey),
	)
	if err != nil {
		return fmt.Errorf("postgres: record entry %d: %w", entry.EntryID, err)
	}
	return nil
}

// ListByUser returns a user's most recent terminal entries, newest first.
func (s *EntryStore) ListByUser(ctx context.Context, user string, limit int) ([]domain.QueueEntry, error) {
	const query = `
		SELECT entry_id, "user", synthetic_id, is_buy, amount, leverage_x100,
			priority_score::TEXT, submission_slot, submitted_at, status,
			stake_snapshot, depth_boost, COALESCE(fail_reason, ''), COALESCE(logical_key, '')
		FROM queue_entries
		WHERE "user" = $1
		ORDER BY submission_slot DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, user, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries for %s: %w", user, err)
	}
	defer rows.Close()

	return scanEntryRows(rows)
}

func scanEntryRows(rows pgx.Rows) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		var entryID, amount, stake, submissionSlot int64
		var leverage, depth int32
		var status, score string
		if err := rows.Scan(
			&entryID, &e.User, &e.Trade.SyntheticID, &e.Trade.IsBuy, &amount, &leverage,
			&score, &submissionSlot, &e.SubmittedAt, &status,
			&stake, &depth, &e.FailReason, &e.LogicalKey,
		); err != nil {
			return nil, err
		}
		e.PriorityScore, _ = strconv.ParseUint(score, 10, 64)
		e.EntryID = uint64(entryID)
		e.Trade.Amount = uint64(amount)
		e.Trade.LeverageX100 = uint32(leverage)
		e.SubmissionSlot = uint64(submissionSlot)
		e.StakeSnapshot = uint64(stake)
		e.DepthBoost = uint32(depth)
		e.Status = parseStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseStatus(s string) domain.EntryStatus {
	switch s {
	case "processing":
		return domain.StatusProcessing
	case "completed":
		return domain.StatusCompleted
	case "cancelled":
		return domain.StatusCancelled
	case "failed":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time interface check.
var _ domain.EntryStore = (*EntryStore)(nil)
