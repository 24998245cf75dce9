package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orchestrator/internal/domain"
)

// ContextRepositoryPG implements domain.ContextRepository with optimistic
// concurrency: Save only lands when the stored version still equals the
// version the caller read.
type ContextRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewContextRepository creates a context repository backed by PostgreSQL.
func NewContextRepository(pool *pgxpool.Pool) *ContextRepositoryPG {
	return &ContextRepositoryPG{pool: pool}
}

// Get fetches the conversation context for the (project, owner) pair.
func (r *ContextRepositoryPG) Get(ctx context.Context, projectID, ownerID string) (*domain.ConversationContext, error) {
	query := `
SELECT project_id, owner_id, long_term, short_term, version, history, updated_at
FROM conversation_contexts
WHERE project_id = $1 AND owner_id = $2;
`
	row := r.pool.QueryRow(ctx, query, projectID, ownerID)
	var cc domain.ConversationContext
	var longTerm, shortTerm, history []byte
	if err := row.Scan(
		&cc.ProjectID,
		&cc.OwnerID,
		&longTerm,
		&shortTerm,
		&cc.Version,
		&history,
		&cc.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := decodeJSON(longTerm, &cc.LongTerm); err != nil {
		return nil, fmt.Errorf("decode long-term context: %w", err)
	}
	if err := decodeJSON(shortTerm, &cc.ShortTerm); err != nil {
		return nil, fmt.Errorf("decode short-term context: %w", err)
	}
	if err := decodeJSON(history, &cc.History); err != nil {
		return nil, fmt.Errorf("decode context history: %w", err)
	}
	return &cc, nil
}

// Save persists the context when the stored version still matches
// expectedVersion. expectedVersion 0 means the caller saw no row; the insert
// then claims the pair and loses to any concurrent first writer.
func (r *ContextRepositoryPG) Save(ctx context.Context, cc *domain.ConversationContext, expectedVersion int) error {
	longTerm, err := json.Marshal(orEmptyMap(cc.LongTerm))
	if err != nil {
		return fmt.Errorf("encode long-term context: %w", err)
	}
	shortTerm, err := json.Marshal(orEmptyMap(cc.ShortTerm))
	if err != nil {
		return fmt.Errorf("encode short-term context: %w", err)
	}
	history, err := json.Marshal(cc.History)
	if err != nil {
		return fmt.Errorf("encode context history: %w", err)
	}

	if expectedVersion == 0 {
		tag, err := r.pool.Exec(ctx, `
INSERT INTO conversation_contexts (project_id, owner_id, long_term, short_term, version, history, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_id, owner_id) DO NOTHING;
`, cc.ProjectID, cc.OwnerID, longTerm, shortTerm, cc.Version, history, cc.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE conversation_contexts
SET long_term = $3,
    short_term = $4,
    version = $5,
    history = $6,
    updated_at = $7
WHERE project_id = $1 AND owner_id = $2 AND version = $8;
`, cc.ProjectID, cc.OwnerID, longTerm, shortTerm, cc.Version, history, cc.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ domain.ContextRepository = (*ContextRepositoryPG)(nil)
