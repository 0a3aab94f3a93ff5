package pin

import (
	"errors"
	"fmt"
	"strings"
)

// Reason categorizes a resolution failure.
type Reason string

const (
	// ReasonInvalid indicates a malformed pin (e.g. empty name).
	ReasonInvalid Reason = "invalid"

	// ReasonNotExact indicates a range, shorthand or otherwise inexact version.
	ReasonNotExact Reason = "not_exact"

	// ReasonConflict indicates the same name pinned to two versions.
	ReasonConflict Reason = "conflict"

	// ReasonUnavailable indicates the index does not list the pinned version.
	ReasonUnavailable Reason = "unavailable"

	// ReasonIndex indicates the index itself could not be read.
	ReasonIndex Reason = "index"

	// ReasonLockDrift indicates the resolution differs from the lockfile.
	ReasonLockDrift Reason = "lock_drift"

	// ReasonLockMissing indicates verify mode found no lockfile.
	ReasonLockMissing Reason = "lock_missing"
)

// ResolutionError is returned when a dependency spec cannot be satisfied
// exactly. It is fatal to the run: no fixture is built and no workload runs.
type ResolutionError struct {
	Reason    Reason
	Pin       Pin
	Available []string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dependency resolution failed (%s)", e.Reason)
	if e.Pin.Name != "" {
		fmt.Fprintf(&b, ": %s", e.Pin)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&b, " (available: %s)", strings.Join(e.Available, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsResolutionError reports whether err is or wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
