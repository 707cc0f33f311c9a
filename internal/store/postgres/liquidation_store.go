package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versefi/versequeue/internal/domain"
)

// LiquidationStore implements domain.LiquidationStore using PostgreSQL.
type LiquidationStore struct {
	pool *pgxpool.Pool
}

// NewLiquidationStore creates a LiquidationStore backed by the given pool.
func NewLiquidationStore(pool *pgxpool.Pool) *LiquidationStore {
	return &LiquidationStore{pool: pool}
}

// RecordOutcome inserts one terminal liquidation outcome. Replays of the
// same request id are skipped.
func (s *LiquidationStore) RecordOutcome(ctx context.Context, outcome domain.LiquidationOutcome) error {
	const query = `
		INSERT INTO liquidation_outcomes (
			request_id, position_id, liquidator, liquidated,
			liquidated_amount, health_bps, slot, fail_reason
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		) ON CONFLICT (request_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		outcome.RequestID, outcome.PositionID, outcome.Liquidator, outcome.Liquidated,
		int64(outcome.LiquidatedAmount), int64(outcome.HealthBps), int64(outcome.Slot),
		nullIfEmpty(outcome.FailReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: record outcome %s: %w", outcome.RequestID, err)
	}
	return nil
}

// ListByPosition returns a position's liquidation history, newest first.
func (s *LiquidationStore) ListByPosition(ctx context.Context, positionID string, limit int) ([]domain.LiquidationOutcome, error) {
	const query = `
		SELECT request_id, position_id, liquidator, liquidated,
			liquidated_amount, health_bps, slot, COALESCE(fail_reason, '')
		FROM liquidation_outcomes
		WHERE position_id = $1
		ORDER BY slot DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes for %s: %w", positionID, err)
	}
	defer rows.Close()

	var outcomes []domain.LiquidationOutcome
	for rows.Next() {
		var o domain.LiquidationOutcome
		var amount, health, slot int64
		if err := rows.Scan(
			&o.RequestID, &o.PositionID, &o.Liquidator, &o.Liquidated,
			&amount, &health, &slot, &o.FailReason,
		); err != nil {
			return nil, err
		}
		o.LiquidatedAmount = uint64(amount)
		o.HealthBps = uint32(health)
		o.Slot = uint64(slot)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Compile-time interface check.
var _ domain.LiquidationStore = (*LiquidationStore)(nil)
