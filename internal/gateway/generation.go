package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orchestrator/internal/domain"
)

const generateDefaultTimeout = 120 * time.Second

// HTTPGenerator talks to one generation backend over HTTP. One instance is
// registered per task type; the wire shape is the generation gateway
// contract: {prompt, model_id, params} in, a result handle or error out.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type generateWireRequest struct {
	Prompt  string         `json:"prompt"`
	ModelID string         `json:"model_id"`
	Params  map[string]any `json:"params,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
}

type generateWireResponse struct {
	ResultURL string `json:"result_url"`
	Content   string `json:"content"`
	Error     string `json:"error"`
}

func NewHTTPGenerator(endpoint, apiKey string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: generateDefaultTimeout}
	}
	return &HTTPGenerator{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (domain.TaskResult, error) {
	var buf bytes.Buffer
	wire := generateWireRequest{
		Prompt:  req.Prompt,
		ModelID: req.ModelID,
		Params:  req.Params,
		TaskID:  req.TaskID,
	}
	if err := json.NewEncoder(&buf).Encode(wire); err != nil {
		return domain.TaskResult{}, fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, &buf)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return domain.TaskResult{}, fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateWireResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decode generation response: %w", err)
	}
	if out.Error != "" {
		return domain.TaskResult{}, fmt.Errorf("%w: %s", domain.ErrProviderFailure, out.Error)
	}
	if out.ResultURL == "" && out.Content == "" {
		return domain.TaskResult{}, fmt.Errorf("%w: empty result", domain.ErrProviderFailure)
	}
	return domain.TaskResult{URL: out.ResultURL, Content: out.Content}, nil
}

// SyntheticGenerator fabricates deterministic results without calling any
// backend. It serves dev mode when no API credentials are configured, the
// same way the previous worker fell back to synthetic assets.
type SyntheticGenerator struct {
	taskType domain.TaskType
}

func NewSyntheticGenerator(taskType domain.TaskType) *SyntheticGenerator {
	return &SyntheticGenerator{taskType: taskType}
}

func (s *SyntheticGenerator) Generate(_ context.Context, req GenerateRequest) (domain.TaskResult, error) {
	if s.taskType == domain.TaskTypeChat {
		return domain.TaskResult{Content: fmt.Sprintf("[synthetic:%s] %s", req.ModelID, req.Prompt)}, nil
	}
	return domain.TaskResult{
		URL: fmt.Sprintf("synthetic://%s/%s/%s", s.taskType, req.ModelID, req.TaskID),
	}, nil
}

// SyntheticRegistry registers a synthetic backend for every known task type.
func SyntheticRegistry() Registry {
	registry := make(Registry, len(domain.KnownTaskTypes))
	for _, taskType := range domain.KnownTaskTypes {
		registry[taskType] = NewSyntheticGenerator(taskType)
	}
	return registry
}

var (
	_ Generator = (*HTTPGenerator)(nil)
	_ Generator = (*SyntheticGenerator)(nil)
)
