package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

// Decision is the structured admission result. A denial names the binding
// window and a human-readable reason; it is never retried by the core.
type Decision struct {
	Allowed         bool
	UpgradeRequired bool
	Feature         domain.TaskType
	BindingWindow   domain.WindowKind
	Remaining       int
	Reason          string
	Warning         string
}

// Enforcer performs multi-window admission control per (feature, tier).
// Admission requires usage strictly below the cap in every active window
// simultaneously. Usage is consumed only by Commit, which callers invoke
// after a generation commits successfully.
type Enforcer struct {
	policy *Policy
	usage  domain.UsageRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewEnforcer wires the enforcer. A nil policy takes the defaults.
func NewEnforcer(policy *Policy, usage domain.UsageRepository, logger zerolog.Logger) *Enforcer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Enforcer{policy: policy, usage: usage, logger: logger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Enforcer) WithClock(now func() time.Time) *Enforcer {
	e.now = now
	return e
}

// Check decides whether one more invocation of feature may proceed for the
// owner. A cap of exactly 0 short-circuits without reading usage history and
// reports a tier-upgrade requirement, distinct from exhaustion.
func (e *Enforcer) Check(ctx context.Context, ownerID string, feature domain.TaskType, tier domain.Tier) (Decision, error) {
	caps := e.policy.FeatureCaps(tier, feature)
	if caps.Unavailable() {
		return Decision{
			Feature:         feature,
			UpgradeRequired: true,
			Reason:          fmt.Sprintf("%s is not included in the %s tier; upgrade to unlock it", feature, tier),
		}, nil
	}

	now := e.now()
	binding := domain.WindowDay
	bindingRemaining := -1
	bindingCap := 0
	for _, window := range domain.AllWindows {
		limit := caps.Cap(window)
		used, err := e.usage.Count(ctx, ownerID, feature, window, window.Start(now))
		if err != nil {
			return Decision{}, fmt.Errorf("read %s usage: %w", window, err)
		}
		remaining := limit - used
		if bindingRemaining < 0 || remaining < bindingRemaining {
			binding = window
			bindingRemaining = remaining
			bindingCap = limit
		}
	}

	if bindingRemaining <= 0 {
		return Decision{
			Feature:       feature,
			BindingWindow: binding,
			Reason: fmt.Sprintf("%s limit for this %s reached (%d allowed); resets at the %s boundary",
				feature, binding, bindingCap, binding),
		}, nil
	}

	decision := Decision{
		Allowed:       true,
		Feature:       feature,
		BindingWindow: binding,
		Remaining:     bindingRemaining,
	}
	if float64(bindingRemaining)/float64(bindingCap) <= e.policy.WarnFraction {
		decision.Warning = fmt.Sprintf("only %d %s generations left this %s", bindingRemaining, feature, binding)
	}
	return decision, nil
}

// Commit records one successful generation against every window, idempotent
// on the task ID so an accounting replay after a crash cannot double-charge.
// Failures are logged and returned, but callers treat them as non-fatal: a
// delivered result is never rolled back because accounting failed.
func (e *Enforcer) Commit(ctx context.Context, ownerID string, feature domain.TaskType, taskID string) error {
	applied, err := e.usage.CommitUsage(ctx, ownerID, feature, taskID, e.now())
	if err != nil {
		e.logger.Error().Err(err).
			Str("owner_id", ownerID).
			Str("feature", string(feature)).
			Str("task_id", taskID).
			Msg("quota: usage commit failed")
		return err
	}
	if !applied {
		e.logger.Debug().Str("task_id", taskID).Msg("quota: usage commit replayed, skipped")
	}
	return nil
}
