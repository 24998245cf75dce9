// Package gateway holds the clients for the engine's external collaborators:
// the interpretation call used by classification and the generation backends,
// one per task type.
package gateway

import (
	"context"
	"fmt"

	"orchestrator/internal/domain"
)

// GenerateRequest is the normalized request passed to any generation backend.
type GenerateRequest struct {
	TaskID  string
	OwnerID string
	Prompt  string
	ModelID string
	Params  map[string]any
}

// Generator is the contract implemented by all generation backends. The
// response is a result handle (URL or inline content) or an error; latency
// varies from sub-second to tens of seconds.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (domain.TaskResult, error)
}

// Registry maps each task type to the backend serving it.
type Registry map[domain.TaskType]Generator

// Generate dispatches to the backend for the task type.
func (r Registry) Generate(ctx context.Context, taskType domain.TaskType, req GenerateRequest) (domain.TaskResult, error) {
	backend, ok := r[taskType]
	if !ok {
		return domain.TaskResult{}, fmt.Errorf("%w: no backend for task type %q", domain.ErrProviderFailure, taskType)
	}
	return backend.Generate(ctx, req)
}
