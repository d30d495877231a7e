package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTrigger marks a trigger whose value fails its kind's validator.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrInvalidAction marks an action missing fields its kind requires.
	ErrInvalidAction = errors.New("invalid action")

	// ErrInvalidWorkflow marks a workflow record with bad metadata.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrMalformedBlob is logged when a stored trigger or action blob cannot be
	// decoded. It is never returned to callers.
	ErrMalformedBlob = errors.New("malformed blob")
)

// ValidationError describes why user supplied data was rejected.
type ValidationError struct {
	Kind   error  // one of ErrInvalidTrigger, ErrInvalidAction, ErrInvalidWorkflow
	Field  string // offending field, e.g. "value" or "name"
	Reason string // human readable reason, suitable for UI feedback
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func newTriggerError(field, reason string) *ValidationError {
	return &ValidationError{Kind: ErrInvalidTrigger, Field: field, Reason: reason}
}

func newActionError(field, reason string) *ValidationError {
	return &ValidationError{Kind: ErrInvalidAction, Field: field, Reason: reason}
}

func newWorkflowError(field, reason string) *ValidationError {
	return &ValidationError{Kind: ErrInvalidWorkflow, Field: field, Reason: reason}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
