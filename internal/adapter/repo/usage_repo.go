package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orchestrator/internal/domain"
)

// UsageRepositoryPG implements domain.UsageRepository. Idempotency lives in
// the database: every commit first claims its key with an INSERT ... ON
// CONFLICT DO NOTHING, and only the claim winner touches the counters, so a
// replay after a crash is a no-op.
type UsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a usage repository backed by PostgreSQL.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool}
}

// Count returns the usage in the window starting at windowStart. A counter
// row left over from an earlier window reads as zero; rollover happens on
// the next commit.
func (r *UsageRepositoryPG) Count(ctx context.Context, ownerID string, feature domain.TaskType, window domain.WindowKind, windowStart time.Time) (int, error) {
	query := `
SELECT count
FROM usage_counters
WHERE owner_id = $1 AND feature = $2 AND window_kind = $3 AND window_start >= $4;
`
	var count int
	err := r.pool.QueryRow(ctx, query, ownerID, feature, window, windowStart).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CommitUsage records one successful generation against every window. The
// idempotency key (the task id) is claimed first; a duplicate claim returns
// applied=false without touching any counter.
func (r *UsageRepositoryPG) CommitUsage(ctx context.Context, ownerID string, feature domain.TaskType, idempotencyKey string, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
INSERT INTO usage_events (idempotency_key, owner_id, feature, recorded_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO NOTHING;
`, idempotencyKey, ownerID, feature, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, window := range domain.AllWindows {
		_, err := tx.Exec(ctx, `
INSERT INTO usage_counters (owner_id, feature, window_kind, window_start, count)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (owner_id, feature, window_kind) DO UPDATE
SET count = CASE
        WHEN usage_counters.window_start < EXCLUDED.window_start THEN 1
        ELSE usage_counters.count + 1
    END,
    window_start = GREATEST(usage_counters.window_start, EXCLUDED.window_start);
`, ownerID, feature, window, window.Start(at))
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// MonthToDateSpend returns the accumulated monetary spend since monthStart.
func (r *UsageRepositoryPG) MonthToDateSpend(ctx context.Context, ownerID string, monthStart time.Time) (float64, error) {
	query := `
SELECT amount_usd
FROM spend_ledger
WHERE owner_id = $1 AND month_start = $2;
`
	var spent float64
	err := r.pool.QueryRow(ctx, query, ownerID, monthStart).Scan(&spent)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return spent, nil
}

// AddSpend accumulates spend for the month, idempotent on the task id.
func (r *UsageRepositoryPG) AddSpend(ctx context.Context, ownerID string, monthStart time.Time, amountUSD float64, idempotencyKey string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
INSERT INTO spend_events (idempotency_key, owner_id, amount_usd)
VALUES ($1, $2, $3)
ON CONFLICT (idempotency_key) DO NOTHING;
`, idempotencyKey, ownerID, amountUSD)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
INSERT INTO spend_ledger (owner_id, month_start, amount_usd)
VALUES ($1, $2, $3)
ON CONFLICT (owner_id, month_start) DO UPDATE
SET amount_usd = spend_ledger.amount_usd + EXCLUDED.amount_usd;
`, ownerID, monthStart, amountUSD)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

var _ domain.UsageRepository = (*UsageRepositoryPG)(nil)
