package fixture

import (
	"errors"
	"fmt"
)

// SetupError is returned when a fixture cannot be constructed or reset.
// The run must not proceed to the workload.
type SetupError struct {
	Fixture string
	Op      string
	Err     error
}

func (e *SetupError) Error() string {
	if e.Fixture == "" {
		return fmt.Sprintf("fixture setup failed: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fixture setup failed: %s: %s: %v", e.Fixture, e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError reports whether err is or wraps a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// NoMethodError is returned by Call for an undefined method.
type NoMethodError struct {
	Fixture string
	Method  string
}

func (e *NoMethodError) Error() string {
	return fmt.Sprintf("undefined method '%s' for %s", e.Method, e.Fixture)
}

// FaultKind names the workload fault.
func (e *NoMethodError) FaultKind() string { return "NoMethodError" }

// ScriptError is returned by Call when a method raises.
type ScriptError struct {
	Method string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// FaultKind names the workload fault.
func (e *ScriptError) FaultKind() string { return "ScriptError" }
