package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orchestrator/internal/domain"
	"orchestrator/internal/middleware"
)

const streamHeartbeat = 15 * time.Second

type taskResp struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id,omitempty"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Prompt        string         `json:"prompt,omitempty"`
	Model         string         `json:"model"`
	ResultURL     string         `json:"result_url,omitempty"`
	ResultContent string         `json:"result_content,omitempty"`
	Error         string         `json:"error,omitempty"`
	CostUSD       float64        `json:"cost_usd"`
	Params        map[string]any `json:"params,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

func toTaskResp(t *domain.GenerationTask) taskResp {
	return taskResp{
		ID:            t.ID,
		ProjectID:     t.ProjectID,
		Type:          string(t.Type),
		Status:        string(t.Status),
		Prompt:        t.Prompt,
		Model:         t.Model,
		ResultURL:     t.ResultURL,
		ResultContent: t.ResultContent,
		Error:         t.ErrorMessage,
		CostUSD:       t.CostDeducted,
		Params:        t.Params,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
	}
}

// GetTask returns one task. Tasks are owner-scoped: asking for another
// owner's task reads as not found, deliberately indistinguishable from a
// task that does not exist.
func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := a.Tasks.Get(r.Context(), id)
	if err != nil {
		a.errorJSON(w, r, err)
		return
	}
	if task.OwnerID != middleware.OwnerIDFromContext(r.Context()) {
		a.errorJSON(w, r, domain.ErrNotFound)
		return
	}
	a.json(w, http.StatusOK, toTaskResp(task))
}

// ListTasks returns the caller's recent tasks with per-status counts,
// served through the orchestrator's snapshot cache.
func (a *App) ListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())

	if status := r.URL.Query().Get("status"); status != "" {
		tasks, err := a.Tasks.ListByOwner(r.Context(), ownerID, domain.TaskStatus(status), 50)
		if err != nil {
			a.errorJSON(w, r, err)
			return
		}
		out := make([]taskResp, 0, len(tasks))
		for i := range tasks {
			out = append(out, toTaskResp(&tasks[i]))
		}
		a.json(w, http.StatusOK, map[string]any{"tasks": out})
		return
	}

	snapshot, err := a.Orch.OwnerStatus(r.Context(), ownerID)
	if err != nil {
		a.errorJSON(w, r, err)
		return
	}
	out := make([]taskResp, 0, len(snapshot.Tasks))
	for i := range snapshot.Tasks {
		out = append(out, toTaskResp(&snapshot.Tasks[i]))
	}
	a.json(w, http.StatusOK, map[string]any{
		"tasks":      out,
		"counts":     snapshot.Counts,
		"fetched_at": snapshot.FetchedAt,
	})
}

type streamEvent struct {
	TaskID string             `json:"task_id"`
	Type   string             `json:"type"`
	Status string             `json:"status"`
	Result *domain.TaskResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	At     time.Time          `json:"at"`
}

// StreamTasks pushes the caller's task transitions over server-sent events.
// Every subscriber of the same owner receives every transition; a slow
// consumer misses events rather than stalling the state machine.
func (a *App) StreamTasks(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	ownerID := middleware.OwnerIDFromContext(r.Context())

	events, cancel := a.Hub.Subscribe(ownerID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The stream must outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(streamEvent{
				TaskID: event.TaskID,
				Type:   string(event.Type),
				Status: string(event.Status),
				Result: event.Result,
				Error:  event.Error,
				At:     event.At,
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: task\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
