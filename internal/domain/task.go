package domain

import "time"

// TaskType enumerates supported generation task categories.
type TaskType string

const (
	TaskTypeChat      TaskType = "chat"
	TaskTypeImage     TaskType = "image"
	TaskTypeImageEdit TaskType = "image_edit"
	TaskTypeVideo     TaskType = "video"
	TaskTypePPT       TaskType = "ppt"
	TaskTypeTTS       TaskType = "tts"
	TaskTypeMusic     TaskType = "music"
)

// KnownTaskTypes lists every task type the engine accepts.
var KnownTaskTypes = []TaskType{
	TaskTypeChat,
	TaskTypeImage,
	TaskTypeImageEdit,
	TaskTypeVideo,
	TaskTypePPT,
	TaskTypeTTS,
	TaskTypeMusic,
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range KnownTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskResult is the outcome handed back by a generation gateway.
type TaskResult struct {
	URL     string
	Content string
}

// GenerationTask encapsulates one unit of generation work from submission
// through completion or failure. Status transitions are monotonic
// (pending -> processing -> completed|failed); result fields are set only on
// completed, the error message only on failed, and terminal tasks are
// immutable.
type GenerationTask struct {
	ID            string
	OwnerID       string
	ProjectID     string
	Type          TaskType
	Status        TaskStatus
	Prompt        string
	Params        map[string]any
	Model         string
	ResultURL     string
	ResultContent string
	ErrorMessage  string
	CostDeducted  float64
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// TaskEvent is broadcast to owner-scoped subscribers on every state change.
type TaskEvent struct {
	TaskID  string     `json:"task_id"`
	OwnerID string     `json:"owner_id"`
	Type    TaskType   `json:"task_type"`
	Status  TaskStatus `json:"status"`
	Result  *TaskResult `json:"result,omitempty"`
	Error   string     `json:"error,omitempty"`
	At      time.Time  `json:"at"`
}
