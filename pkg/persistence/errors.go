package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRecordNotFound indicates no record exists for the given id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates an insert with an explicit id collided with an
	// existing record.
	ErrRecordExists = errors.New("record already exists")

	// ErrStoreClosed is returned by stores used after Close.
	ErrStoreClosed = errors.New("store closed")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op  string // Operation being performed (e.g., "GetByID", "Insert", "Delete")
	ID  uint64 // Record ID if applicable
	Err error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for record %d: %v", e.Op, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op string, id uint64, err error) *RecordError {
	return &RecordError{Op: op, ID: id, Err: err}
}

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
