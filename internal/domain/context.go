package domain

import "time"

// ContextHistoryCap bounds how many prior snapshots a conversation context
// retains; the oldest snapshot is evicted once the cap is reached.
const ContextHistoryCap = 10

// ContextSnapshot preserves the pre-update state of a conversation context.
type ContextSnapshot struct {
	LongTerm  map[string]any `json:"long_term"`
	ShortTerm map[string]any `json:"short_term"`
	Version   int            `json:"version"`
	TakenAt   time.Time      `json:"taken_at"`
}

// ConversationContext owns the long-term and short-term conversational state
// for one (project, owner) pair. Version strictly increases by one per update
// and doubles as the optimistic-concurrency guard.
type ConversationContext struct {
	OwnerID   string
	ProjectID string
	LongTerm  map[string]any
	ShortTerm map[string]any
	Version   int
	History   []ContextSnapshot
	UpdatedAt time.Time
}

// NewConversationContext returns the default empty context handed out when a
// project has no stored context yet.
func NewConversationContext(projectID, ownerID string) *ConversationContext {
	return &ConversationContext{
		OwnerID:   ownerID,
		ProjectID: projectID,
		LongTerm:  map[string]any{},
		ShortTerm: map[string]any{},
		Version:   0,
	}
}

// Clone returns a deep enough copy for merge work: top-level maps are copied,
// history is copied by value.
func (c *ConversationContext) Clone() *ConversationContext {
	out := &ConversationContext{
		OwnerID:   c.OwnerID,
		ProjectID: c.ProjectID,
		LongTerm:  copyMap(c.LongTerm),
		ShortTerm: copyMap(c.ShortTerm),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
	out.History = append(out.History, c.History...)
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
