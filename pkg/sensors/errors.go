package sensors

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means the user has not granted access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable means the device has no such capability.
	ErrUnavailable = errors.New("capability unavailable")

	// ErrServiceDisabled means the capability exists but is switched off,
	// e.g. Bluetooth or location services.
	ErrServiceDisabled = errors.New("service disabled")

	// ErrNoFix means the location provider has no reading to offer.
	ErrNoFix = errors.New("no location fix")

	// ErrTimeout means the capability did not answer in time.
	ErrTimeout = errors.New("capability timed out")
)

// CapabilityError is a soft failure reading a sensor. Evaluations that hit
// one resolve to NotFired.
type CapabilityError struct {
	Capability Capability
	Reason     string
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Capability, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Capability, e.Reason, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError wraps err for capability c.
func NewCapabilityError(c Capability, err error, reason string) *CapabilityError {
	return &CapabilityError{Capability: c, Reason: reason, Err: err}
}

// IsCapabilityError reports whether err carries a *CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError

	return errors.As(err, &ce)
}

// IsPermissionDenied reports whether err stems from a missing permission.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
