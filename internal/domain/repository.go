package domain

import (
	"context"
	"time"
)

// TaskRepository defines persistence for generation tasks. Implementations
// must make MarkProcessing and Finalize conditional updates so that racing
// writers resolve to exactly one winner; the loser observes applied=false.
type TaskRepository interface {
	Create(ctx context.Context, task *GenerationTask) error
	GetByID(ctx context.Context, id string) (*GenerationTask, error)
	ListByOwner(ctx context.Context, ownerID string, status TaskStatus, limit int) ([]GenerationTask, error)
	ListByStatus(ctx context.Context, status TaskStatus, limit int) ([]GenerationTask, error)
	// ListStaleProcessing returns processing tasks whose StartedAt predates cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]GenerationTask, error)
	// MarkProcessing transitions pending -> processing. Returns false if the
	// task was not pending.
	MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	// Finalize transitions a non-terminal task to completed or failed,
	// recording result or error and the completion timestamp. Returns false
	// if the task was already terminal.
	Finalize(ctx context.Context, id string, status TaskStatus, result *TaskResult, errMsg string, at time.Time) (bool, error)
}

// UsageRepository defines persistence for admission counters and spend.
// Increments must be atomic at the persistence layer; CommitUsage and
// AddSpend are idempotent on their key so replays after a crash are safe.
type UsageRepository interface {
	// Count reads the active counter for the triple; a missing or rolled-over
	// counter reads as zero.
	Count(ctx context.Context, ownerID string, feature TaskType, window WindowKind, windowStart time.Time) (int, error)
	// CommitUsage increments every window's counter for the feature, at most
	// once per idempotency key. Returns false when the key was already seen.
	CommitUsage(ctx context.Context, ownerID string, feature TaskType, idempotencyKey string, at time.Time) (bool, error)
	MonthToDateSpend(ctx context.Context, ownerID string, monthStart time.Time) (float64, error)
	// AddSpend records paid-model spend, at most once per idempotency key.
	AddSpend(ctx context.Context, ownerID string, monthStart time.Time, amountUSD float64, idempotencyKey string) (bool, error)
}

// ContextRepository defines persistence for conversation contexts.
type ContextRepository interface {
	// Get returns ErrNotFound when no context exists for the pair.
	Get(ctx context.Context, projectID, ownerID string) (*ConversationContext, error)
	// Save persists cc only if the stored version still equals
	// expectedVersion; otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, cc *ConversationContext, expectedVersion int) error
}

// TaskPublisher emits task events; implementations need not support
// subscription (e.g. a cross-process notifier that only relays events).
type TaskPublisher interface {
	Publish(event TaskEvent)
}

// TaskBroadcaster fans task events out to live observers scoped by owner.
type TaskBroadcaster interface {
	TaskPublisher
	// Subscribe returns a receive channel for the owner's events and a
	// cancel function that must be called when the observer goes away.
	Subscribe(ownerID string) (<-chan TaskEvent, func())
}
