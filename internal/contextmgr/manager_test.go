package contextmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/adapter/memory"
	"orchestrator/internal/domain"
)

func TestGetReturnsDefaultWhenAbsent(t *testing.T) {
	m := New(memory.NewContextStore(), zerolog.Nop())

	cc := m.Get(context.Background(), "proj", "owner")

	require.NotNil(t, cc)
	assert.Zero(t, cc.Version)
	assert.Empty(t, cc.LongTerm)
}

type brokenRepo struct{}

func (brokenRepo) Get(context.Context, string, string) (*domain.ConversationContext, error) {
	return nil, errors.New("store down")
}
func (brokenRepo) Save(context.Context, *domain.ConversationContext, int) error {
	return errors.New("store down")
}

func TestGetStoreFailureIsAdvisory(t *testing.T) {
	m := New(brokenRepo{}, zerolog.Nop())

	cc := m.Get(context.Background(), "proj", "owner")

	require.NotNil(t, cc, "store failure must yield an empty context, not nil")
	assert.Zero(t, cc.Version)
}

func TestUpdateVersionMonotonicAndHistory(t *testing.T) {
	store := memory.NewContextStore()
	m := New(store, zerolog.Nop())
	ctx := context.Background()

	current := m.Get(ctx, "proj", "owner")
	next, err := m.Update(ctx, "proj", "owner", Updates{
		ShortTerm: map[string]any{"current_task": "mug shoot"},
		LongTerm:  map[string]any{"business": "ceramics studio"},
	}, current)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Version)

	again, err := m.Update(ctx, "proj", "owner", Updates{
		ShortTerm: map[string]any{"current_task": "mug video"},
	}, next)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)

	// The immediately prior pair is at the top of history.
	require.NotEmpty(t, again.History)
	last := again.History[len(again.History)-1]
	assert.Equal(t, 1, last.Version)
	assert.Equal(t, "mug shoot", last.ShortTerm["current_task"])
	assert.Equal(t, "mug video", again.ShortTerm["current_task"])
}

func TestUpdateHistoryBounded(t *testing.T) {
	store := memory.NewContextStore()
	m := New(store, zerolog.Nop())
	ctx := context.Background()

	cc := m.Get(ctx, "proj", "owner")
	var err error
	for i := 0; i < domain.ContextHistoryCap+5; i++ {
		cc, err = m.Update(ctx, "proj", "owner", Updates{
			ShortTerm: map[string]any{"turn": i},
		}, cc)
		require.NoError(t, err)
	}

	assert.Len(t, cc.History, domain.ContextHistoryCap)
	// Oldest snapshots were evicted: history starts past version 0.
	assert.Equal(t, cc.Version-domain.ContextHistoryCap, cc.History[0].Version)
}

func TestMergeSemantics(t *testing.T) {
	base := map[string]any{
		"name":   "old",
		"topics": []any{"mugs", "plates"},
		"profile": map[string]any{
			"city": "Bandung",
			"size": "small",
		},
	}
	src := map[string]any{
		"name":   "new",
		"topics": []any{"plates", "bowls"},
		"profile": map[string]any{
			"size": "medium",
		},
	}

	got := mergeMap(base, src)

	assert.Equal(t, "new", got["name"], "scalars override")
	assert.Equal(t, []any{"mugs", "plates", "bowls"}, got["topics"], "arrays append then dedupe")
	profile := got["profile"].(map[string]any)
	assert.Equal(t, "Bandung", profile["city"], "nested maps keep untouched keys")
	assert.Equal(t, "medium", profile["size"], "nested maps shallow-merge")

	// Inputs are not mutated.
	assert.Equal(t, []any{"mugs", "plates"}, base["topics"])
}

func TestUpdateRetriesOnVersionConflict(t *testing.T) {
	store := memory.NewContextStore()
	m := New(store, zerolog.Nop())
	ctx := context.Background()

	first := m.Get(ctx, "proj", "owner")

	// A concurrent writer advances the version after our read.
	_, err := m.Update(ctx, "proj", "owner", Updates{ShortTerm: map[string]any{"other": true}}, first.Clone())
	require.NoError(t, err)

	// Our stale write retries against the fresh state instead of clobbering.
	got, err := m.Update(ctx, "proj", "owner", Updates{ShortTerm: map[string]any{"mine": true}}, first)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, true, got.ShortTerm["other"], "concurrent write preserved")
	assert.Equal(t, true, got.ShortTerm["mine"])
}
