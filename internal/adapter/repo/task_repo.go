// Package repo implements the repository contracts on PostgreSQL via pgx.
// State transitions are conditional UPDATEs: the WHERE clause carries the
// allowed prior state, so concurrent writers resolve in the database and the
// row count reports who won.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orchestrator/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a task repository backed by PostgreSQL.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

const taskColumns = `id, owner_id, project_id, type, status, prompt, params, model, result_url, result_content, error_message, cost_deducted, created_at, started_at, completed_at`

// Create inserts a new task row.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.GenerationTask) error {
	params, err := marshalParams(task.Params)
	if err != nil {
		return err
	}
	query := `
INSERT INTO tasks (id, owner_id, project_id, type, status, prompt, params, model, cost_deducted, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.OwnerID,
		task.ProjectID,
		task.Type,
		task.Status,
		task.Prompt,
		params,
		task.Model,
		task.CostDeducted,
		task.CreatedAt,
	)
	return err
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GenerationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1;`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListByOwner returns the owner's tasks newest first, optionally filtered by
// status. limit <= 0 means no limit.
func (r *TaskRepositoryPG) ListByOwner(ctx context.Context, ownerID string, status domain.TaskStatus, limit int) ([]domain.GenerationTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE owner_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT NULLIF($3, 0);
`
	rows, err := r.pool.Query(ctx, query, ownerID, string(status), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListByStatus returns tasks in the given status newest first.
func (r *TaskRepositoryPG) ListByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.GenerationTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE status = $1
ORDER BY created_at DESC
LIMIT NULLIF($2, 0);
`
	rows, err := r.pool.Query(ctx, query, status, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListStaleProcessing returns processing tasks whose start predates cutoff.
func (r *TaskRepositoryPG) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.GenerationTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE status = 'processing' AND started_at < $1
ORDER BY started_at ASC
LIMIT NULLIF($2, 0);
`
	rows, err := r.pool.Query(ctx, query, cutoff, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// MarkProcessing transitions pending -> processing. The WHERE clause admits
// only pending rows; a false return means someone else moved the task first.
func (r *TaskRepositoryPG) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
UPDATE tasks
SET status = 'processing', started_at = $2
WHERE id = $1 AND status = 'pending';
`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize moves a non-terminal task to completed or failed. Terminal rows
// are untouched, which is what makes racing finalizers safe.
func (r *TaskRepositoryPG) Finalize(ctx context.Context, id string, status domain.TaskStatus, result *domain.TaskResult, errMsg string, at time.Time) (bool, error) {
	var resultURL, resultContent string
	if result != nil {
		resultURL = result.URL
		resultContent = result.Content
	}
	query := `
UPDATE tasks
SET status = $2,
    result_url = $3,
    result_content = $4,
    error_message = $5,
    completed_at = $6
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, id, status, resultURL, resultContent, errMsg, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTask(row pgx.Row) (*domain.GenerationTask, error) {
	var task domain.GenerationTask
	var params []byte
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.ProjectID,
		&task.Type,
		&task.Status,
		&task.Prompt,
		&params,
		&task.Model,
		&task.ResultURL,
		&task.ResultContent,
		&task.ErrorMessage,
		&task.CostDeducted,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &task.Params); err != nil {
			return nil, fmt.Errorf("decode task params: %w", err)
		}
	}
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.GenerationTask, error) {
	defer rows.Close()
	var tasks []domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func marshalParams(params map[string]any) ([]byte, error) {
	if len(params) == 0 {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode task params: %w", err)
	}
	return b, nil
}

func normalizeLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	return limit
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)
