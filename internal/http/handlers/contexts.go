package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"orchestrator/internal/middleware"
)

type contextResp struct {
	ProjectID string         `json:"project_id"`
	LongTerm  map[string]any `json:"long_term"`
	ShortTerm map[string]any `json:"short_term"`
	Version   int            `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GetContext returns the caller's conversation context for the project. A
// project without history answers with the empty version-zero context.
func (a *App) GetContext(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	cc := a.Contexts.Get(r.Context(), projectID, middleware.OwnerIDFromContext(r.Context()))
	a.json(w, http.StatusOK, contextResp{
		ProjectID: cc.ProjectID,
		LongTerm:  cc.LongTerm,
		ShortTerm: cc.ShortTerm,
		Version:   cc.Version,
		UpdatedAt: cc.UpdatedAt,
	})
}
