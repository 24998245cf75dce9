// Package classify maps an incoming message onto an Interpretation: what the
// user wants, how complex it is, and the prompt the generation gateway should
// actually receive.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

// Turn is one prior exchange handed to the full classification path.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InterpretRequest is the contract with the interpretation gateway. The
// response is free text expected to embed one JSON object; there is no
// well-formedness guarantee, so the caller tolerates malformed replies.
type InterpretRequest struct {
	SystemPrompt   string
	ContextSummary string
	RecentTurns    []Turn
	NewMessage     string
}

// InterpretationGateway performs the external interpretation call.
type InterpretationGateway interface {
	Interpret(ctx context.Context, req InterpretRequest) (string, error)
}

const (
	// recentTurnLimit bounds how much history travels to the gateway.
	recentTurnLimit = 6
	// fastPathWordLimit marks messages short enough to skip the gateway.
	fastPathWordLimit = 3

	fastPathConfidence = 0.95
)

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|yo|thanks|thank you|ok|okay|halo|hai|makasih|terima kasih|good (morning|afternoon|evening))[.!?\s]*$`)

// Classifier decides between the fast local path and the full gateway path.
type Classifier struct {
	gateway InterpretationGateway
	logger  zerolog.Logger
}

func New(gateway InterpretationGateway, logger zerolog.Logger) *Classifier {
	return &Classifier{gateway: gateway, logger: logger}
}

// Classify produces an Interpretation for the message. It never fails: every
// degraded path lands on a usable fallback rather than an error, because a
// classification hiccup must not abort the request pipeline.
func (c *Classifier) Classify(ctx context.Context, message string, history []Turn, tier domain.Tier, longTerm map[string]any) domain.Interpretation {
	trimmed := strings.TrimSpace(message)
	if interp, ok := c.fastPath(trimmed); ok {
		return interp
	}

	if c.gateway == nil {
		return FallbackInterpretation(trimmed)
	}

	req := InterpretRequest{
		SystemPrompt:   systemPrompt(),
		ContextSummary: buildContextSummary(tier, longTerm),
		RecentTurns:    lastTurns(history, recentTurnLimit),
		NewMessage:     trimmed,
	}
	raw, err := c.gateway.Interpret(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("classify: interpretation call failed, falling back to chat")
		return FallbackInterpretation(trimmed)
	}

	interp, ok := ParseInterpretation(raw, trimmed)
	if !ok {
		c.logger.Warn().Str("raw_prefix", prefix(raw, 80)).Msg("classify: unparseable interpretation, falling back to chat")
		return FallbackInterpretation(trimmed)
	}
	return interp
}

// fastPath answers trivially short or greeting-shaped messages without the
// external call; it saves both latency and interpretation cost.
func (c *Classifier) fastPath(message string) (domain.Interpretation, bool) {
	if message == "" || greetingPattern.MatchString(message) || len(strings.Fields(message)) <= fastPathWordLimit {
		return domain.Interpretation{
			Intent:         domain.IntentChat,
			TaskType:       domain.TaskTypeChat,
			Complexity:     domain.ComplexitySimple,
			Confidence:     fastPathConfidence,
			EnhancedPrompt: message,
		}, true
	}
	return domain.Interpretation{}, false
}

func systemPrompt() string {
	sb := &strings.Builder{}
	sb.WriteString("You are the request interpreter for a multimodal generation service. ")
	sb.WriteString("Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"intent":"chat|image|image_edit|video|ppt|tts|music","complexity":"simple|moderate|complex","confidence":number,"enhanced_prompt":string,"assumptions":string[],"warnings":string[],"source_media_url":string,"context_updates":object}`)
	sb.WriteString(". Infer the user's intent from the newest message in light of the conversation.")
	return sb.String()
}

func buildContextSummary(tier domain.Tier, longTerm map[string]any) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Subscriber tier: %s (%s).", tier, tierCapabilityNote(tier))
	if len(longTerm) > 0 {
		sb.WriteString(" Known facts:")
		for key, value := range longTerm {
			fmt.Fprintf(sb, " %s=%v;", key, value)
		}
	}
	return sb.String()
}

func tierCapabilityNote(tier domain.Tier) string {
	switch tier {
	case domain.TierPremium:
		return "all generation features, highest quality models"
	case domain.TierPro:
		return "all generation features"
	case domain.TierStarter:
		return "chat, image, video, slides, speech and music at moderate limits"
	default:
		return "chat and basic image generation only"
	}
}

func lastTurns(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
