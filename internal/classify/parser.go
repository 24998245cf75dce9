package classify

import (
	"encoding/json"
	"strings"

	"orchestrator/internal/domain"
)

// interpretationPayload is the strictly-typed shape expected inside the
// gateway's free-text reply. Every field is optional on the wire; defaulting
// happens here at the parse boundary, not at call sites.
type interpretationPayload struct {
	Intent         string         `json:"intent"`
	Complexity     string         `json:"complexity"`
	Confidence     *float64       `json:"confidence"`
	EnhancedPrompt string         `json:"enhanced_prompt"`
	Assumptions    []string       `json:"assumptions"`
	Warnings       []string       `json:"warnings"`
	SourceMediaURL string         `json:"source_media_url"`
	ContextUpdates map[string]any `json:"context_updates"`
}

const (
	defaultConfidence  = 0.6
	fallbackConfidence = 0.3
)

// ParseInterpretation extracts the first balanced JSON object from raw and
// decodes it, defaulting any missing or malformed field. The second return
// is false when nothing decodable was found; the caller then falls back to
// FallbackInterpretation. Parsing never returns an error.
func ParseInterpretation(raw, originalMessage string) (domain.Interpretation, bool) {
	fragment := extractBalancedObject(trimCodeFence(raw))
	if fragment == "" {
		return domain.Interpretation{}, false
	}
	var payload interpretationPayload
	if err := json.Unmarshal([]byte(fragment), &payload); err != nil {
		return domain.Interpretation{}, false
	}

	interp := domain.Interpretation{
		Intent:         normalizeIntent(payload.Intent),
		Complexity:     normalizeComplexity(payload.Complexity),
		EnhancedPrompt: strings.TrimSpace(payload.EnhancedPrompt),
		Assumptions:    payload.Assumptions,
		Warnings:       payload.Warnings,
		SourceMediaURL: strings.TrimSpace(payload.SourceMediaURL),
		ContextUpdates: payload.ContextUpdates,
	}
	interp.TaskType = domain.TaskTypeForIntent(interp.Intent)
	if interp.EnhancedPrompt == "" {
		interp.EnhancedPrompt = originalMessage
	}
	interp.Confidence = defaultConfidence
	if payload.Confidence != nil {
		interp.Confidence = clamp01(*payload.Confidence)
	}
	return interp, true
}

// FallbackInterpretation is the safe result used when classification cannot
// produce anything better: treat the message as plain chat with lowered
// confidence. Classification failure never aborts the pipeline.
func FallbackInterpretation(message string) domain.Interpretation {
	return domain.Interpretation{
		Intent:         domain.IntentChat,
		TaskType:       domain.TaskTypeChat,
		Complexity:     domain.ComplexityModerate,
		Confidence:     fallbackConfidence,
		EnhancedPrompt: message,
		Warnings:       []string{"interpretation unavailable, treated as chat"},
	}
}

func normalizeIntent(raw string) domain.Intent {
	switch domain.Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.IntentImage:
		return domain.IntentImage
	case domain.IntentImageEdit:
		return domain.IntentImageEdit
	case domain.IntentVideo:
		return domain.IntentVideo
	case domain.IntentPPT:
		return domain.IntentPPT
	case domain.IntentTTS:
		return domain.IntentTTS
	case domain.IntentMusic:
		return domain.IntentMusic
	default:
		return domain.IntentChat
	}
}

func normalizeComplexity(raw string) domain.Complexity {
	switch domain.Complexity(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ComplexitySimple:
		return domain.ComplexitySimple
	case domain.ComplexityComplex:
		return domain.ComplexityComplex
	default:
		return domain.ComplexityModerate
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractBalancedObject returns the first brace-balanced JSON object in text,
// respecting string literals and escapes so braces inside values do not
// truncate the scan.
func extractBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
