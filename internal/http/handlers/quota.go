package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"orchestrator/internal/domain"
	"orchestrator/internal/middleware"
)

type quotaResp struct {
	Feature         string  `json:"feature"`
	Allowed         bool    `json:"allowed"`
	UpgradeRequired bool    `json:"upgrade_required"`
	BindingWindow   string  `json:"binding_window,omitempty"`
	Remaining       int     `json:"remaining"`
	Warning         string  `json:"warning,omitempty"`
	BudgetLeftUSD   float64 `json:"budget_left_usd"`
}

// QuotaPreview reports whether one more invocation of the feature would be
// admitted right now, plus the remaining monthly budget. It is a read-only
// dry run; nothing is consumed.
func (a *App) QuotaPreview(w http.ResponseWriter, r *http.Request) {
	feature := domain.TaskType(chi.URLParam(r, "feature"))
	if !feature.Valid() {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "unknown feature"})
		return
	}

	ownerID := middleware.OwnerIDFromContext(r.Context())
	tier := middleware.TierFromContext(r.Context())

	decision, err := a.Quota.Check(r.Context(), ownerID, feature, tier)
	if err != nil {
		a.errorJSON(w, r, err)
		return
	}
	budgetLeft, err := a.Orch.RemainingBudget(r.Context(), ownerID, tier)
	if err != nil {
		a.errorJSON(w, r, err)
		return
	}
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	a.json(w, http.StatusOK, quotaResp{
		Feature:         string(feature),
		Allowed:         decision.Allowed,
		UpgradeRequired: decision.UpgradeRequired,
		BindingWindow:   string(decision.BindingWindow),
		Remaining:       decision.Remaining,
		Warning:         decision.Warning,
		BudgetLeftUSD:   budgetLeft,
	})
}
