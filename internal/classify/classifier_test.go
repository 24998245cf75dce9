package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"orchestrator/internal/domain"
)

type stubGateway struct {
	reply string
	err   error
	calls int
}

func (s *stubGateway) Interpret(_ context.Context, _ InterpretRequest) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestFastPathSkipsGateway(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "greeting", message: "Hello!"},
		{name: "greeting indonesian", message: "terima kasih"},
		{name: "very short", message: "sure go ahead"},
		{name: "empty", message: "   "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &stubGateway{reply: `{"intent":"video"}`}
			c := New(gw, zerolog.Nop())

			interp := c.Classify(context.Background(), tc.message, nil, domain.TierFree, nil)

			if gw.calls != 0 {
				t.Fatalf("gateway called %d times, want 0", gw.calls)
			}
			if interp.Intent != domain.IntentChat {
				t.Fatalf("Intent = %q, want chat", interp.Intent)
			}
			if interp.Confidence != fastPathConfidence {
				t.Fatalf("Confidence = %v, want %v", interp.Confidence, fastPathConfidence)
			}
		})
	}
}

func TestFullPathParsesGatewayReply(t *testing.T) {
	gw := &stubGateway{reply: "Sure, here is the interpretation:\n```json\n" +
		`{"intent":"image","complexity":"complex","confidence":0.88,"enhanced_prompt":"studio photo of a ceramic mug","assumptions":["product photography"],"context_updates":{"current_task":"mug shoot"}}` +
		"\n```"}
	c := New(gw, zerolog.Nop())

	interp := c.Classify(context.Background(), "make me a nice product picture of my mug please", nil, domain.TierPro, nil)

	if gw.calls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.calls)
	}
	if interp.Intent != domain.IntentImage || interp.TaskType != domain.TaskTypeImage {
		t.Fatalf("Intent/TaskType = %q/%q, want image/image", interp.Intent, interp.TaskType)
	}
	if interp.Confidence != 0.88 {
		t.Fatalf("Confidence = %v, want 0.88", interp.Confidence)
	}
	if interp.EnhancedPrompt != "studio photo of a ceramic mug" {
		t.Fatalf("EnhancedPrompt = %q", interp.EnhancedPrompt)
	}
	if interp.ContextUpdates["current_task"] != "mug shoot" {
		t.Fatalf("ContextUpdates = %v", interp.ContextUpdates)
	}
}

func TestGatewayErrorFallsBackToChat(t *testing.T) {
	gw := &stubGateway{err: errors.New("upstream timeout")}
	c := New(gw, zerolog.Nop())

	msg := "please render a cinematic video of a sunrise over rice fields"
	interp := c.Classify(context.Background(), msg, nil, domain.TierPro, nil)

	if interp.Intent != domain.IntentChat {
		t.Fatalf("Intent = %q, want chat fallback", interp.Intent)
	}
	if interp.EnhancedPrompt != msg {
		t.Fatalf("EnhancedPrompt = %q, want original message", interp.EnhancedPrompt)
	}
	if interp.Confidence != fallbackConfidence {
		t.Fatalf("Confidence = %v, want lowered %v", interp.Confidence, fallbackConfidence)
	}
}

func TestUnparseableReplyFallsBackToChat(t *testing.T) {
	gw := &stubGateway{reply: "I could not decide, sorry!"}
	c := New(gw, zerolog.Nop())

	interp := c.Classify(context.Background(), "turn this deck outline into a full presentation for me", nil, domain.TierPro, nil)

	if interp.Intent != domain.IntentChat {
		t.Fatalf("Intent = %q, want chat fallback", interp.Intent)
	}
	if len(interp.Warnings) == 0 {
		t.Fatal("fallback should carry a warning")
	}
}

func TestParseInterpretationDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Interpretation
	}{
		{
			name: "missing fields default",
			raw:  `{"intent":"tts"}`,
			want: domain.Interpretation{
				Intent:         domain.IntentTTS,
				TaskType:       domain.TaskTypeTTS,
				Complexity:     domain.ComplexityModerate,
				Confidence:     defaultConfidence,
				EnhancedPrompt: "original",
			},
		},
		{
			name: "unknown intent becomes chat",
			raw:  `{"intent":"teleport","confidence":2.5}`,
			want: domain.Interpretation{
				Intent:         domain.IntentChat,
				TaskType:       domain.TaskTypeChat,
				Complexity:     domain.ComplexityModerate,
				Confidence:     1,
				EnhancedPrompt: "original",
			},
		},
		{
			name: "prose around a nested object",
			raw:  `The result {"intent":"music","enhanced_prompt":"lofi track with {vinyl} crackle","complexity":"simple"} hope that helps`,
			want: domain.Interpretation{
				Intent:         domain.IntentMusic,
				TaskType:       domain.TaskTypeMusic,
				Complexity:     domain.ComplexitySimple,
				Confidence:     defaultConfidence,
				EnhancedPrompt: "lofi track with {vinyl} crackle",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseInterpretation(tc.raw, "original")
			if !ok {
				t.Fatal("ParseInterpretation() ok = false")
			}
			if got.Intent != tc.want.Intent || got.TaskType != tc.want.TaskType ||
				got.Complexity != tc.want.Complexity || got.Confidence != tc.want.Confidence ||
				got.EnhancedPrompt != tc.want.EnhancedPrompt {
				t.Fatalf("ParseInterpretation() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestExtractBalancedObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "nested", raw: `x {"a":{"b":2}} y`, want: `{"a":{"b":2}}`},
		{name: "brace inside string", raw: `{"a":"}{"}`, want: `{"a":"}{"}`},
		{name: "escaped quote", raw: `{"a":"he said \"}\""}`, want: `{"a":"he said \"}\""}`},
		{name: "unterminated", raw: `{"a":1`, want: ""},
		{name: "no object", raw: "nothing here", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractBalancedObject(tc.raw); got != tc.want {
				t.Fatalf("extractBalancedObject(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
