// Package task owns the generation task lifecycle: creation, the
// pending -> processing -> {completed|failed} state machine, asynchronous
// dispatch, resume after restart, and broadcast to observers.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

// Executor runs the external generation for a task. Latency varies from
// sub-second to tens of seconds; the manager never holds a lock across it.
type Executor func(ctx context.Context, task domain.GenerationTask) (domain.TaskResult, error)

// SuccessHook runs after a completion transition wins; the orchestrator uses
// it for usage and spend accounting plus context updates.
type SuccessHook func(ctx context.Context, task domain.GenerationTask, result domain.TaskResult)

// TransitionHook runs whenever a state change is persisted or a terminal
// state recorded elsewhere is observed. The orchestrator hangs cache
// invalidation and per-task cleanup here.
type TransitionHook func(task *domain.GenerationTask)

// Manager creates, advances, persists, and broadcasts generation tasks.
type Manager struct {
	repo         domain.TaskRepository
	hub          domain.TaskPublisher
	logger       zerolog.Logger
	execute      Executor
	onSuccess    SuccessHook
	onTransition TransitionHook
	now          func() time.Time

	wg sync.WaitGroup
}

func NewManager(repo domain.TaskRepository, hub domain.TaskPublisher, execute Executor, logger zerolog.Logger) *Manager {
	return &Manager{
		repo:    repo,
		hub:     hub,
		logger:  logger,
		execute: execute,
		now:     time.Now,
	}
}

// OnSuccess registers the post-completion hook.
func (m *Manager) OnSuccess(hook SuccessHook) { m.onSuccess = hook }

// OnTransition registers the per-state-change hook.
func (m *Manager) OnTransition(hook TransitionHook) { m.onTransition = hook }

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create persists a new pending task and broadcasts its creation. Execution
// does not start until Dispatch, so the caller can record per-task state that
// the execution hooks will read before the first transition can race it.
func (m *Manager) Create(ctx context.Context, ownerID, projectID string, taskType domain.TaskType, model, prompt string, params map[string]any, costUSD float64) (*domain.GenerationTask, error) {
	task := &domain.GenerationTask{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		ProjectID:    projectID,
		Type:         taskType,
		Status:       domain.TaskStatusPending,
		Prompt:       prompt,
		Params:       params,
		Model:        model,
		CostDeducted: costUSD,
		CreatedAt:    m.now(),
	}
	if err := m.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if m.onTransition != nil {
		m.onTransition(task)
	}
	m.publish(task, nil, "")
	return task, nil
}

// Dispatch starts the asynchronous execution of a created task without
// blocking: the caller keeps the handle it already holds.
func (m *Manager) Dispatch(task domain.GenerationTask) {
	m.dispatch(task)
}

// Get fetches a task by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.GenerationTask, error) {
	return m.repo.GetByID(ctx, id)
}

// ListByOwner returns the owner's tasks, optionally filtered by status.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string, status domain.TaskStatus, limit int) ([]domain.GenerationTask, error) {
	return m.repo.ListByOwner(ctx, ownerID, status, limit)
}

// MarkProcessing transitions pending -> processing and records the start
// timestamp. Already non-pending tasks are a no-op.
func (m *Manager) MarkProcessing(ctx context.Context, id string) (bool, error) {
	applied, err := m.repo.MarkProcessing(ctx, id, m.now())
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	if applied {
		m.publishByID(ctx, id)
	}
	return applied, nil
}

// Complete transitions the task to completed with its result. Idempotent:
// when the task is already terminal the call is a silent no-op and reports
// applied=false, so two racing finalizers resolve to exactly one winner.
func (m *Manager) Complete(ctx context.Context, id string, result domain.TaskResult) (bool, error) {
	applied, err := m.repo.Finalize(ctx, id, domain.TaskStatusCompleted, &result, "", m.now())
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	if applied {
		m.publishByID(ctx, id)
	}
	return applied, nil
}

// Fail transitions the task to failed with the error recorded. Idempotent on
// terminal tasks, same as Complete.
func (m *Manager) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	applied, err := m.repo.Finalize(ctx, id, domain.TaskStatusFailed, nil, errMsg, m.now())
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	if applied {
		m.publishByID(ctx, id)
	}
	return applied, nil
}

// ResumePending re-dispatches every task still pending, exactly once per
// call. Run it on startup; processing tasks are deliberately left to the
// reconciler's deadline sweep so a restart cannot double-generate.
func (m *Manager) ResumePending(ctx context.Context) (int, error) {
	pending, err := m.repo.ListByStatus(ctx, domain.TaskStatusPending, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range pending {
		m.logger.Info().Str("task_id", task.ID).Msg("task: resuming pending task")
		m.dispatch(task)
	}
	return len(pending), nil
}

// FailStale fails every task stuck in processing since before cutoff. The
// reconciler calls this on an interval; a late success racing the sweep
// loses cleanly through the idempotent finalization.
func (m *Manager) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := m.repo.ListStaleProcessing(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}
	failed := 0
	for _, task := range stale {
		applied, err := m.Fail(ctx, task.ID, "processing deadline exceeded")
		if err != nil {
			m.logger.Error().Err(err).Str("task_id", task.ID).Msg("task: stale sweep failed")
			continue
		}
		if applied {
			failed++
		}
	}
	return failed, nil
}

// Wait blocks until all dispatched executions have finished. Tests and
// graceful shutdown use it.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) dispatch(task domain.GenerationTask) {
	if m.execute == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(context.Background(), task)
	}()
}

func (m *Manager) run(ctx context.Context, task domain.GenerationTask) {
	applied, err := m.MarkProcessing(ctx, task.ID)
	if err != nil {
		m.logger.Error().Err(err).Str("task_id", task.ID).Msg("task: mark processing failed")
		return
	}
	if !applied {
		// Someone else picked it up or it is already finished.
		return
	}

	result, execErr := m.execute(ctx, task)
	if execErr != nil {
		applied, err := m.Fail(ctx, task.ID, execErr.Error())
		if err != nil {
			m.logger.Error().Err(err).Str("task_id", task.ID).Msg("task: fail transition errored")
			return
		}
		if !applied {
			m.observeFinal(ctx, task.ID)
		}
		return
	}

	won, err := m.Complete(ctx, task.ID, result)
	if err != nil {
		m.logger.Error().Err(err).Str("task_id", task.ID).Msg("task: complete transition errored")
		return
	}
	if !won {
		m.observeFinal(ctx, task.ID)
		return
	}
	if m.onSuccess != nil {
		m.onSuccess(ctx, task, result)
	}
}

// observeFinal lets the transition hook see a terminal state recorded by
// someone else (a racing finalizer or the reconciler sweep) without
// re-broadcasting an event subscribers already received.
func (m *Manager) observeFinal(ctx context.Context, id string) {
	if m.onTransition == nil {
		return
	}
	task, err := m.repo.GetByID(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("task: final state read failed")
		return
	}
	m.onTransition(task)
}

// publishByID re-reads the task so the broadcast carries persisted state.
func (m *Manager) publishByID(ctx context.Context, id string) {
	task, err := m.repo.GetByID(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("task: broadcast read failed")
		return
	}
	if m.onTransition != nil {
		m.onTransition(task)
	}
	var result *domain.TaskResult
	if task.Status == domain.TaskStatusCompleted {
		result = &domain.TaskResult{URL: task.ResultURL, Content: task.ResultContent}
	}
	m.publish(task, result, task.ErrorMessage)
}

func (m *Manager) publish(task *domain.GenerationTask, result *domain.TaskResult, errMsg string) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(domain.TaskEvent{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Type:    task.Type,
		Status:  task.Status,
		Result:  result,
		Error:   errMsg,
		At:      m.now(),
	})
}
