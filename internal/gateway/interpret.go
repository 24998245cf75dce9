package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orchestrator/internal/classify"
)

const interpretDefaultTimeout = 15 * time.Second

// GeminiOptions configures the interpretation client.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiInterpreter delegates interpretation to the Gemini generateContent
// endpoint. It returns the raw candidate text; the classifier owns the
// tolerant parse, so no well-formedness is promised here.
type GeminiInterpreter struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiInterpreter(opts GeminiOptions) (*GeminiInterpreter, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: interpretDefaultTimeout}
	}
	return &GeminiInterpreter{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Interpret sends the classification request and returns the raw reply text.
func (g *GeminiInterpreter) Interpret(ctx context.Context, req classify.InterpretRequest) (string, error) {
	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: g.buildPrompt(req)}},
	}}
	payload := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.2,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode interpretation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return "", fmt.Errorf("build interpretation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("interpretation call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("interpretation call: status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode interpretation response: %w", err)
	}
	text := extractText(out)
	if text == "" {
		return "", fmt.Errorf("interpretation response carried no text")
	}
	return text, nil
}

func (g *GeminiInterpreter) buildPrompt(req classify.InterpretRequest) string {
	sb := &strings.Builder{}
	sb.WriteString(req.SystemPrompt)
	sb.WriteString("\n\n")
	if req.ContextSummary != "" {
		fmt.Fprintf(sb, "Context: %s\n", req.ContextSummary)
	}
	for _, turn := range req.RecentTurns {
		fmt.Fprintf(sb, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(sb, "user: %s\n", req.NewMessage)
	return sb.String()
}

func (g *GeminiInterpreter) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

var _ classify.InterpretationGateway = (*GeminiInterpreter)(nil)
