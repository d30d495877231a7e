package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for operations submitted after Cleanup.
	ErrClosed = errors.New("gateway closed")

	// ErrCanceled completes operations still queued when Cleanup ran.
	ErrCanceled = errors.New("operation canceled")
)

// StoreError reports a failed gateway operation.
type StoreError struct {
	Op  string
	ID  uint64
	Err error
}

func (e *StoreError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("gateway %s failed for workflow %d: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newStoreError(op string, id uint64, err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}

	return &StoreError{Op: op, ID: id, Err: err}
}

func IsStoreError(err error) bool {
	var se *StoreError

	return errors.As(err, &se)
}

// IsClosed reports whether err stems from using a gateway after Cleanup.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
