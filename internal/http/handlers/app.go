// Package handlers carries the HTTP handlers for the orchestration API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"orchestrator/internal/contextmgr"
	"orchestrator/internal/domain"
	"orchestrator/internal/middleware"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/quota"
	"orchestrator/internal/task"
)

const maxBodyBytes = 1 << 20

// App bundles the handler dependencies.
type App struct {
	Orch     *orchestrator.Orchestrator
	Tasks    *task.Manager
	Quota    *quota.Enforcer
	Contexts *contextmgr.Manager
	Hub      domain.TaskBroadcaster
	Logger   zerolog.Logger
}

func NewApp(orch *orchestrator.Orchestrator, tasks *task.Manager, enforcer *quota.Enforcer, contexts *contextmgr.Manager, hub domain.TaskBroadcaster, logger zerolog.Logger) *App {
	return &App{
		Orch:     orch,
		Tasks:    tasks,
		Quota:    enforcer,
		Contexts: contexts,
		Hub:      hub,
		Logger:   logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) errorJSON(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrProviderFailure):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
	}
	a.json(w, code, map[string]string{"error": publicError(err, code)})
}

func publicError(err error, code int) string {
	if code == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// localized picks the user-facing message for the negotiated locale.
func localized(r *http.Request, en, id string) string {
	if middleware.LocaleFromContext(r.Context()) == "id" {
		return id
	}
	return en
}
