package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/adapter/memory"
	"orchestrator/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Wednesday mid-month, mid-week, mid-day UTC.
var testNow = time.Date(2026, time.March, 18, 14, 30, 0, 0, time.UTC)

func newTestEnforcer(t *testing.T, policy *Policy) (*Enforcer, *memory.UsageStore) {
	t.Helper()
	usage := memory.NewUsageStore()
	e := NewEnforcer(policy, usage, zerolog.Nop()).WithClock(fixedClock(testNow))
	return e, usage
}

func TestCheckAdmitsUnderAllWindows(t *testing.T) {
	e, _ := newTestEnforcer(t, nil)

	d, err := e.Check(context.Background(), "u1", domain.TaskTypeImage, domain.TierStarter)

	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.UpgradeRequired)
	assert.Empty(t, d.Warning)
}

func TestCheckMonthlyWindowBindsDespiteDailyHeadroom(t *testing.T) {
	policy := DefaultPolicy()
	policy.Caps[domain.TierStarter][domain.TaskTypeImage] = Caps{Daily: 15, Weekly: 1000, Monthly: 240}
	e, usage := newTestEnforcer(t, policy)

	// 10 uses today; month-to-date pinned at the monthly cap.
	for i := 0; i < 240; i++ {
		_, err := usage.CommitUsage(context.Background(), "u1", domain.TaskTypeImage, keyN(i), testNow)
		require.NoError(t, err)
	}

	d, err := e.Check(context.Background(), "u1", domain.TaskTypeImage, domain.TierStarter)

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, d.UpgradeRequired)
	assert.Equal(t, domain.WindowMonth, d.BindingWindow)
	assert.Contains(t, d.Reason, "month")
}

func TestCheckZeroCapShortCircuitsWithoutUsageRead(t *testing.T) {
	e, usage := newTestEnforcer(t, nil)

	d, err := e.Check(context.Background(), "u1", domain.TaskTypeVideo, domain.TierFree)

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.UpgradeRequired)
	assert.Contains(t, d.Reason, "upgrade")
	assert.Zero(t, usage.CountReads, "zero-cap denial must not consult usage history")
}

func TestCheckUnknownTierDenied(t *testing.T) {
	e, _ := newTestEnforcer(t, nil)

	d, err := e.Check(context.Background(), "u1", domain.TaskTypeChat, domain.Tier("enterprise"))

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.UpgradeRequired)
}

func TestCheckWarnsNearBindingCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.Caps[domain.TierStarter][domain.TaskTypeImage] = Caps{Daily: 10, Weekly: 100, Monthly: 100}
	e, usage := newTestEnforcer(t, policy)

	for i := 0; i < 9; i++ {
		_, err := usage.CommitUsage(context.Background(), "u1", domain.TaskTypeImage, keyN(i), testNow)
		require.NoError(t, err)
	}

	d, err := e.Check(context.Background(), "u1", domain.TaskTypeImage, domain.TierStarter)

	require.NoError(t, err)
	assert.True(t, d.Allowed, "warning must not block admission")
	assert.Equal(t, 1, d.Remaining)
	assert.NotEmpty(t, d.Warning)
}

func TestCommitIsIdempotentOnTaskID(t *testing.T) {
	e, usage := newTestEnforcer(t, nil)

	require.NoError(t, e.Commit(context.Background(), "u1", domain.TaskTypeImage, "task-1"))
	require.NoError(t, e.Commit(context.Background(), "u1", domain.TaskTypeImage, "task-1"))

	used, err := usage.Count(context.Background(), "u1", domain.TaskTypeImage, domain.WindowDay, domain.WindowDay.Start(testNow))
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestWindowBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		window domain.WindowKind
		at     time.Time
		want   time.Time
	}{
		{
			name:   "day resets at midnight utc",
			window: domain.WindowDay,
			at:     time.Date(2026, time.March, 18, 23, 59, 59, 0, time.UTC),
			want:   time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "week starts monday",
			window: domain.WindowWeek,
			at:     time.Date(2026, time.March, 18, 14, 0, 0, 0, time.UTC), // Wednesday
			want:   time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "sunday belongs to the preceding monday",
			window: domain.WindowWeek,
			at:     time.Date(2026, time.March, 22, 1, 0, 0, 0, time.UTC), // Sunday
			want:   time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month starts on the first",
			window: domain.WindowMonth,
			at:     time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC),
			want:   time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.window.Start(tc.at); !got.Equal(tc.want) {
				t.Fatalf("Start() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUsageRollsOverAtWindowBoundary(t *testing.T) {
	e, usage := newTestEnforcer(t, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Commit(context.Background(), "u1", domain.TaskTypeImage, keyN(i)))
	}

	tomorrow := testNow.AddDate(0, 0, 1)
	used, err := usage.Count(context.Background(), "u1", domain.TaskTypeImage, domain.WindowDay, domain.WindowDay.Start(tomorrow))
	require.NoError(t, err)
	assert.Zero(t, used, "new day window must read as zero")

	// Week and month windows still carry the usage.
	used, err = usage.Count(context.Background(), "u1", domain.TaskTypeImage, domain.WindowWeek, domain.WindowWeek.Start(tomorrow))
	require.NoError(t, err)
	assert.Equal(t, 3, used)
}

func keyN(i int) string {
	return fmt.Sprintf("key-%04d", i)
}
