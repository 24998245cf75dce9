// Package memory provides in-process implementations of the repository
// contracts. They back unit tests and the dev mode of cmd/api, and mirror the
// conditional-update semantics the Postgres adapter gets from SQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orchestrator/internal/domain"
)

// TaskStore is an in-memory domain.TaskRepository.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.GenerationTask
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*domain.GenerationTask)}
}

func (s *TaskStore) Create(_ context.Context, task *domain.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *TaskStore) GetByID(_ context.Context, id string) (*domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *TaskStore) ListByOwner(_ context.Context, ownerID string, status domain.TaskStatus, limit int) ([]domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenerationTask
	for _, task := range s.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, *task)
	}
	sortNewestFirst(out)
	return capSlice(out, limit), nil
}

func (s *TaskStore) ListByStatus(_ context.Context, status domain.TaskStatus, limit int) ([]domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenerationTask
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, *task)
		}
	}
	sortNewestFirst(out)
	return capSlice(out, limit), nil
}

func (s *TaskStore) ListStaleProcessing(_ context.Context, cutoff time.Time, limit int) ([]domain.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GenerationTask
	for _, task := range s.tasks {
		if task.Status != domain.TaskStatusProcessing {
			continue
		}
		if task.StartedAt != nil && task.StartedAt.Before(cutoff) {
			out = append(out, *task)
		}
	}
	sortNewestFirst(out)
	return capSlice(out, limit), nil
}

func (s *TaskStore) MarkProcessing(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if task.Status != domain.TaskStatusPending {
		return false, nil
	}
	task.Status = domain.TaskStatusProcessing
	started := at
	task.StartedAt = &started
	return true, nil
}

func (s *TaskStore) Finalize(_ context.Context, id string, status domain.TaskStatus, result *domain.TaskResult, errMsg string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if task.Status.Terminal() {
		return false, nil
	}
	task.Status = status
	completed := at
	task.CompletedAt = &completed
	if status == domain.TaskStatusCompleted && result != nil {
		task.ResultURL = result.URL
		task.ResultContent = result.Content
	}
	if status == domain.TaskStatusFailed {
		task.ErrorMessage = errMsg
	}
	return true, nil
}

func sortNewestFirst(tasks []domain.GenerationTask) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

func capSlice(tasks []domain.GenerationTask, limit int) []domain.GenerationTask {
	if limit > 0 && len(tasks) > limit {
		return tasks[:limit]
	}
	return tasks
}

type usageKey struct {
	owner   string
	feature domain.TaskType
	window  domain.WindowKind
}

type usageCell struct {
	windowStart time.Time
	count       int
}

// UsageStore is an in-memory domain.UsageRepository. Counter rollover happens
// lazily: a cell whose window start predates the requested boundary reads as
// zero and is replaced on the next commit.
type UsageStore struct {
	mu       sync.Mutex
	counters map[usageKey]*usageCell
	seen     map[string]struct{}
	spend    map[string]float64
	spendKey map[string]struct{}
	// CountReads counts Count calls; tests use it to prove the zero-cap
	// short circuit never touches usage history.
	CountReads int
}

func NewUsageStore() *UsageStore {
	return &UsageStore{
		counters: make(map[usageKey]*usageCell),
		seen:     make(map[string]struct{}),
		spend:    make(map[string]float64),
		spendKey: make(map[string]struct{}),
	}
}

func (s *UsageStore) Count(_ context.Context, ownerID string, feature domain.TaskType, window domain.WindowKind, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CountReads++
	cell, ok := s.counters[usageKey{ownerID, feature, window}]
	if !ok || cell.windowStart.Before(windowStart) {
		return 0, nil
	}
	return cell.count, nil
}

func (s *UsageStore) CommitUsage(_ context.Context, ownerID string, feature domain.TaskType, idempotencyKey string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[idempotencyKey]; dup {
		return false, nil
	}
	s.seen[idempotencyKey] = struct{}{}
	for _, window := range domain.AllWindows {
		key := usageKey{ownerID, feature, window}
		start := window.Start(at)
		cell, ok := s.counters[key]
		if !ok || cell.windowStart.Before(start) {
			s.counters[key] = &usageCell{windowStart: start, count: 1}
			continue
		}
		cell.count++
	}
	return true, nil
}

func (s *UsageStore) MonthToDateSpend(_ context.Context, ownerID string, monthStart time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spend[spendCellKey(ownerID, monthStart)], nil
}

func (s *UsageStore) AddSpend(_ context.Context, ownerID string, monthStart time.Time, amountUSD float64, idempotencyKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.spendKey[idempotencyKey]; dup {
		return false, nil
	}
	s.spendKey[idempotencyKey] = struct{}{}
	s.spend[spendCellKey(ownerID, monthStart)] += amountUSD
	return true, nil
}

func spendCellKey(ownerID string, monthStart time.Time) string {
	return ownerID + "|" + monthStart.UTC().Format("2006-01")
}

// ContextStore is an in-memory domain.ContextRepository with optimistic
// version checking.
type ContextStore struct {
	mu       sync.Mutex
	contexts map[string]*domain.ConversationContext
}

func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[string]*domain.ConversationContext)}
}

func contextCellKey(projectID, ownerID string) string {
	return projectID + "|" + ownerID
}

func (s *ContextStore) Get(_ context.Context, projectID, ownerID string) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.contexts[contextCellKey(projectID, ownerID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cc.Clone(), nil
}

func (s *ContextStore) Save(_ context.Context, cc *domain.ConversationContext, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contextCellKey(cc.ProjectID, cc.OwnerID)
	current, ok := s.contexts[key]
	if ok && current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if !ok && expectedVersion != 0 {
		return domain.ErrVersionConflict
	}
	s.contexts[key] = cc.Clone()
	return nil
}

var (
	_ domain.TaskRepository    = (*TaskStore)(nil)
	_ domain.UsageRepository   = (*UsageStore)(nil)
	_ domain.ContextRepository = (*ContextStore)(nil)
)
