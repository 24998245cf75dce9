package handlers

import (
	"encoding/json"
	"net/http"

	"orchestrator/internal/classify"
	"orchestrator/internal/middleware"
	"orchestrator/internal/orchestrator"
)

type submitReq struct {
	ProjectID      string          `json:"project_id"`
	Message        string          `json:"message"`
	PreferredModel string          `json:"preferred_model"`
	Params         map[string]any  `json:"params"`
	History        []classify.Turn `json:"history"`
}

type submitResp struct {
	TaskID     string  `json:"task_id,omitempty"`
	Status     string  `json:"status,omitempty"`
	TaskType   string  `json:"task_type"`
	Model      string  `json:"model,omitempty"`
	CostUSD    float64 `json:"cost_usd"`
	Downgraded bool    `json:"downgraded,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Warning    string  `json:"warning,omitempty"`
}

type deniedResp struct {
	Message         string `json:"message"`
	Reason          string `json:"reason"`
	UpgradeRequired bool   `json:"upgrade_required"`
	Feature         string `json:"feature"`
	BindingWindow   string `json:"binding_window,omitempty"`
}

// SubmitRequest runs the orchestration pipeline for one message. Denials are
// structured responses, not errors: 402 when the tier lacks the feature, 429
// when a window is exhausted.
func (a *App) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	res, err := a.Orch.Submit(r.Context(), orchestrator.SubmitRequest{
		OwnerID:        middleware.OwnerIDFromContext(r.Context()),
		ProjectID:      req.ProjectID,
		Tier:           middleware.TierFromContext(r.Context()),
		Message:        req.Message,
		History:        req.History,
		PreferredModel: req.PreferredModel,
		Params:         req.Params,
	})
	if err != nil {
		a.errorJSON(w, r, err)
		return
	}

	if res.Denied != nil {
		code := http.StatusTooManyRequests
		message := localized(r, "generation limit reached", "batas generasi tercapai")
		if res.Denied.UpgradeRequired {
			code = http.StatusPaymentRequired
			message = localized(r, "this feature requires a higher tier", "fitur ini membutuhkan paket berlangganan yang lebih tinggi")
		}
		a.json(w, code, deniedResp{
			Message:         message,
			Reason:          res.Denied.Reason,
			UpgradeRequired: res.Denied.UpgradeRequired,
			Feature:         string(res.Denied.Feature),
			BindingWindow:   string(res.Denied.BindingWindow),
		})
		return
	}

	a.json(w, http.StatusAccepted, submitResp{
		TaskID:     res.Task.ID,
		Status:     string(res.Task.Status),
		TaskType:   string(res.Task.Type),
		Model:      res.Selection.Model,
		CostUSD:    res.Selection.CostUSD,
		Downgraded: res.Selection.Downgraded,
		Reason:     res.Selection.Reason,
		Warning:    res.Warning,
	})
}
