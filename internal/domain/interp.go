package domain

// Intent is the broad category of work a message asks for. It maps one-to-one
// onto TaskType for dispatch, but is kept distinct because classification can
// also carry non-dispatch intents in the future.
type Intent string

const (
	IntentChat      Intent = "chat"
	IntentImage     Intent = "image"
	IntentImageEdit Intent = "image_edit"
	IntentVideo     Intent = "video"
	IntentPPT       Intent = "ppt"
	IntentTTS       Intent = "tts"
	IntentMusic     Intent = "music"
)

// Complexity grades how demanding the interpreted request is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Interpretation is the ephemeral result of classifying a message. It is not
// persisted as an entity; it informs task creation and context updates.
// Fields are explicit at the parse boundary: a missing field defaults here,
// not ad hoc at call sites.
type Interpretation struct {
	Intent         Intent
	TaskType       TaskType
	Complexity     Complexity
	Confidence     float64
	EnhancedPrompt string
	Assumptions    []string
	Warnings       []string
	SourceMediaURL string
	ContextUpdates map[string]any
}

// TaskTypeForIntent maps an intent onto the task type that serves it.
// Unknown intents fall back to chat, never to an error.
func TaskTypeForIntent(in Intent) TaskType {
	switch in {
	case IntentImage:
		return TaskTypeImage
	case IntentImageEdit:
		return TaskTypeImageEdit
	case IntentVideo:
		return TaskTypeVideo
	case IntentPPT:
		return TaskTypePPT
	case IntentTTS:
		return TaskTypeTTS
	case IntentMusic:
		return TaskTypeMusic
	default:
		return TaskTypeChat
	}
}
