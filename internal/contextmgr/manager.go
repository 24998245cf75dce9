// Package contextmgr owns the long-term and short-term conversational
// context per project, with versioning and bounded history.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

// Updates carries the facts to fold into a context after a processed turn.
type Updates struct {
	LongTerm  map[string]any
	ShortTerm map[string]any
}

// Empty reports whether there is nothing to apply.
func (u Updates) Empty() bool {
	return len(u.LongTerm) == 0 && len(u.ShortTerm) == 0
}

const saveRetries = 3

// Manager reads and updates conversation contexts. Updates are optimistic: a
// writer carries the version it read and retries the merge when a concurrent
// writer advanced it first, rather than overwriting blindly.
type Manager struct {
	repo   domain.ContextRepository
	logger zerolog.Logger
	now    func() time.Time
}

func New(repo domain.ContextRepository, logger zerolog.Logger) *Manager {
	return &Manager{repo: repo, logger: logger, now: time.Now}
}

// Get returns the context for the pair, or the default empty context when
// none exists. Store unavailability is advisory: the pipeline proceeds on an
// empty context rather than failing the request.
func (m *Manager) Get(ctx context.Context, projectID, ownerID string) *domain.ConversationContext {
	cc, err := m.repo.Get(ctx, projectID, ownerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn().Err(err).
				Str("project_id", projectID).
				Msg("contextmgr: store read failed, using empty context")
		}
		return domain.NewConversationContext(projectID, ownerID)
	}
	return cc
}

// Update merges updates into the stored context: scalar fields override,
// array fields append then deduplicate, nested objects shallow-merge. The
// pre-update snapshot is pushed onto the bounded history and the version
// advances by exactly one. current is the state the caller read; on a
// version conflict the merge is retried against a fresh read.
func (m *Manager) Update(ctx context.Context, projectID, ownerID string, updates Updates, current *domain.ConversationContext) (*domain.ConversationContext, error) {
	if updates.Empty() {
		return current, nil
	}

	base := current
	if base == nil {
		base = m.Get(ctx, projectID, ownerID)
	}

	for attempt := 0; ; attempt++ {
		next := merged(base, updates, m.now())
		err := m.repo.Save(ctx, next, base.Version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= saveRetries {
			return nil, fmt.Errorf("save context %s/%s: %w", projectID, ownerID, err)
		}
		base = m.Get(ctx, projectID, ownerID)
	}
}

func merged(base *domain.ConversationContext, updates Updates, at time.Time) *domain.ConversationContext {
	next := base.Clone()

	snapshot := domain.ContextSnapshot{
		LongTerm:  next.LongTerm,
		ShortTerm: next.ShortTerm,
		Version:   base.Version,
		TakenAt:   at,
	}
	next.History = append(next.History, snapshot)
	if len(next.History) > domain.ContextHistoryCap {
		next.History = next.History[len(next.History)-domain.ContextHistoryCap:]
	}

	next.LongTerm = mergeMap(base.LongTerm, updates.LongTerm)
	next.ShortTerm = mergeMap(base.ShortTerm, updates.ShortTerm)
	next.Version = base.Version + 1
	next.UpdatedAt = at
	return next
}

// mergeMap applies src over dst without mutating either: scalars override,
// arrays append-then-deduplicate, nested maps shallow-merge.
func mergeMap(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		switch incoming := v.(type) {
		case []any:
			if prior, ok := asSlice(existing); ok {
				out[k] = dedupe(append(prior, incoming...))
				continue
			}
			out[k] = v
		case []string:
			if prior, ok := asSlice(existing); ok {
				out[k] = dedupe(append(prior, toAnySlice(incoming)...))
				continue
			}
			out[k] = v
		case map[string]any:
			if prior, ok := existing.(map[string]any); ok {
				shallow := make(map[string]any, len(prior)+len(incoming))
				for pk, pv := range prior {
					shallow[pk] = pv
				}
				for ik, iv := range incoming {
					shallow[ik] = iv
				}
				out[k] = shallow
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return append([]any(nil), s...), true
	case []string:
		return toAnySlice(s), true
	default:
		return nil, false
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func dedupe(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	var out []any
	for _, v := range values {
		key := fmt.Sprint(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
