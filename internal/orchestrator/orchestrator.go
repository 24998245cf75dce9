// Package orchestrator ties the pipeline together: classify the message,
// run quota admission, pick a model under the remaining budget, and hand the
// accepted request to the task manager.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orchestrator/internal/classify"
	"orchestrator/internal/contextmgr"
	"orchestrator/internal/domain"
	"orchestrator/internal/gateway"
	"orchestrator/internal/pricing"
	"orchestrator/internal/quota"
	"orchestrator/internal/task"
)

// SubmitRequest is one incoming user request.
type SubmitRequest struct {
	OwnerID        string
	ProjectID      string
	Tier           domain.Tier
	Message        string
	History        []classify.Turn
	PreferredModel string
	Params         map[string]any
}

// SubmitResult is the structured outcome. Denied is set on policy denial;
// the task is only present on admission.
type SubmitResult struct {
	Task           *domain.GenerationTask
	Interpretation domain.Interpretation
	Selection      pricing.Selection
	Denied         *quota.Decision
	Warning        string
}

// preferredByType names the full-quality model tried first when the caller
// does not ask for one.
var preferredByType = map[domain.TaskType]string{
	domain.TaskTypeChat:      "gemini-2.5-pro",
	domain.TaskTypeImage:     "imagen-4",
	domain.TaskTypeImageEdit: "gemini-2.5-image-edit",
	domain.TaskTypeVideo:     "veo-3",
	domain.TaskTypePPT:       "slides-agent-pro",
	domain.TaskTypeTTS:       "chirp-3-hd",
	domain.TaskTypeMusic:     "lyria-2",
}

// Orchestrator coordinates the classification, admission, budget, task and
// accounting components.
type Orchestrator struct {
	classifier *classify.Classifier
	contexts   *contextmgr.Manager
	selector   *pricing.Selector
	quota      *quota.Enforcer
	tasks      *task.Manager
	usage      domain.UsageRepository
	backends   gateway.Registry
	cache      *StatusCache
	logger     zerolog.Logger
	now        func() time.Time

	// pendingUpdates stashes per-task context updates between submission
	// and the task's terminal state: drained into the context on success,
	// dropped on failure. Advisory and in-process only.
	mu             sync.Mutex
	pendingUpdates map[string]contextmgr.Updates
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Classifier *classify.Classifier
	Contexts   *contextmgr.Manager
	Selector   *pricing.Selector
	Quota      *quota.Enforcer
	Tasks      *task.Manager
	Usage      domain.UsageRepository
	Backends   gateway.Registry
	Cache      *StatusCache
	Logger     zerolog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		classifier:     opts.Classifier,
		contexts:       opts.Contexts,
		selector:       opts.Selector,
		quota:          opts.Quota,
		tasks:          opts.Tasks,
		usage:          opts.Usage,
		backends:       opts.Backends,
		cache:          opts.Cache,
		logger:         opts.Logger,
		now:            time.Now,
		pendingUpdates: make(map[string]contextmgr.Updates),
	}
	if o.cache == nil {
		o.cache = NewStatusCache(0)
	}
	o.tasks.OnSuccess(o.settle)
	o.tasks.OnTransition(func(t *domain.GenerationTask) {
		o.cache.Invalidate(t.OwnerID)
		// Completed tasks drain their stash in settle; anything else
		// terminal never settles, so the entry is dropped here.
		if t.Status == domain.TaskStatusFailed {
			o.dropUpdates(t.ID)
		}
	})
	return o
}

// Executor returns the generation executor the task manager dispatches with.
func (o *Orchestrator) Executor() task.Executor {
	return func(ctx context.Context, t domain.GenerationTask) (domain.TaskResult, error) {
		return o.backends.Generate(ctx, t.Type, gateway.GenerateRequest{
			TaskID:  t.ID,
			OwnerID: t.OwnerID,
			Prompt:  t.Prompt,
			ModelID: t.Model,
			Params:  t.Params,
		})
	}
}

// Submit runs the full pipeline for one message. A quota denial is a
// structured result, not an error; only infrastructure problems surface as
// errors.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner required", domain.ErrInvalidRequest)
	}
	tier := req.Tier
	if !tier.Valid() {
		tier = domain.TierFree
	}

	cc := o.contexts.Get(ctx, req.ProjectID, req.OwnerID)
	interp := o.classifier.Classify(ctx, req.Message, req.History, tier, cc.LongTerm)

	decision, err := o.quota.Check(ctx, req.OwnerID, interp.TaskType, tier)
	if err != nil {
		return nil, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		o.logger.Info().
			Str("owner_id", req.OwnerID).
			Str("feature", string(interp.TaskType)).
			Bool("upgrade_required", decision.UpgradeRequired).
			Msg("orchestrator: request denied by quota")
		return &SubmitResult{Interpretation: interp, Denied: &decision}, nil
	}

	remaining, err := o.remainingBudget(ctx, req.OwnerID, tier)
	if err != nil {
		return nil, fmt.Errorf("read budget: %w", err)
	}
	preferred := req.PreferredModel
	if preferred == "" {
		preferred = preferredByType[interp.TaskType]
	}
	selection := o.selector.Select(preferred, remaining, interp.TaskType, tier)
	if selection.Downgraded {
		o.logger.Info().
			Str("owner_id", req.OwnerID).
			Str("preferred", preferred).
			Str("selected", selection.Model).
			Float64("remaining_usd", remaining).
			Msg("orchestrator: model downgraded under budget pressure")
	}

	created, err := o.tasks.Create(ctx, req.OwnerID, req.ProjectID, interp.TaskType, selection.Model, interp.EnhancedPrompt, req.Params, selection.CostUSD)
	if err != nil {
		return nil, err
	}
	// The stash must exist before execution starts: a fast completion
	// settles immediately and reads it.
	o.stashUpdates(created.ID, interp)
	o.tasks.Dispatch(*created)

	return &SubmitResult{
		Task:           created,
		Interpretation: interp,
		Selection:      selection,
		Warning:        decision.Warning,
	}, nil
}

// OwnerStatus serves the owner's recent task snapshot through the TTL cache.
func (o *Orchestrator) OwnerStatus(ctx context.Context, ownerID string) (StatusSnapshot, error) {
	if snapshot, ok := o.cache.Get(ownerID); ok {
		return snapshot, nil
	}
	tasks, err := o.tasks.ListByOwner(ctx, ownerID, "", 20)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("list tasks: %w", err)
	}
	snapshot := StatusSnapshot{
		OwnerID:   ownerID,
		Counts:    make(map[domain.TaskStatus]int, 4),
		Tasks:     tasks,
		FetchedAt: o.now(),
	}
	for _, t := range tasks {
		snapshot.Counts[t.Status]++
	}
	o.cache.Put(ownerID, snapshot)
	return snapshot, nil
}

// RemainingBudget reports the tier budget headroom for the owner.
func (o *Orchestrator) RemainingBudget(ctx context.Context, ownerID string, tier domain.Tier) (float64, error) {
	return o.remainingBudget(ctx, ownerID, tier)
}

func (o *Orchestrator) remainingBudget(ctx context.Context, ownerID string, tier domain.Tier) (float64, error) {
	monthStart := domain.WindowMonth.Start(o.now())
	spent, err := o.usage.MonthToDateSpend(ctx, ownerID, monthStart)
	if err != nil {
		return 0, err
	}
	return o.selector.Tables().Budget(tier) - spent, nil
}

// settle runs after a completion wins: quota commit, spend accounting and
// the context update. All three are at-least-once and idempotent on the task
// id; none of them can roll back the delivered result.
func (o *Orchestrator) settle(ctx context.Context, t domain.GenerationTask, _ domain.TaskResult) {
	if err := o.quota.Commit(ctx, t.OwnerID, t.Type, t.ID); err != nil {
		o.logger.Error().Err(err).Str("task_id", t.ID).Msg("orchestrator: quota commit failed, accounting will be retried by ops")
	}
	if t.CostDeducted > 0 {
		monthStart := domain.WindowMonth.Start(o.now())
		if _, err := o.usage.AddSpend(ctx, t.OwnerID, monthStart, t.CostDeducted, t.ID); err != nil {
			o.logger.Error().Err(err).Str("task_id", t.ID).Msg("orchestrator: spend accounting failed")
		}
	}

	updates := o.takeUpdates(t.ID)
	updates.ShortTerm = withTurnFacts(updates.ShortTerm, t)
	if _, err := o.contexts.Update(ctx, t.ProjectID, t.OwnerID, updates, nil); err != nil {
		o.logger.Warn().Err(err).Str("task_id", t.ID).Msg("orchestrator: context update failed")
	}
	o.cache.Invalidate(t.OwnerID)
}

func (o *Orchestrator) stashUpdates(taskID string, interp domain.Interpretation) {
	updates := contextmgr.Updates{}
	if len(interp.ContextUpdates) > 0 {
		updates.ShortTerm = interp.ContextUpdates
	}
	o.mu.Lock()
	o.pendingUpdates[taskID] = updates
	o.mu.Unlock()
}

func (o *Orchestrator) takeUpdates(taskID string) contextmgr.Updates {
	o.mu.Lock()
	defer o.mu.Unlock()
	updates := o.pendingUpdates[taskID]
	delete(o.pendingUpdates, taskID)
	return updates
}

// dropUpdates discards the stash of a task that will never settle, so failed
// generations do not accumulate entries for the life of the process.
func (o *Orchestrator) dropUpdates(taskID string) {
	o.mu.Lock()
	delete(o.pendingUpdates, taskID)
	o.mu.Unlock()
}

func withTurnFacts(shortTerm map[string]any, t domain.GenerationTask) map[string]any {
	if shortTerm == nil {
		shortTerm = map[string]any{}
	}
	shortTerm["last_task_type"] = string(t.Type)
	shortTerm["last_model"] = t.Model
	return shortTerm
}
