package domain

import "errors"

// Quota denials and finalization races are intentionally not errors: denials
// travel as a structured quota.Decision and a losing finalizer reports
// applied=false.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrVersionConflict = errors.New("context version conflict")
	ErrProviderFailure = errors.New("provider failure")
)
