package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/repro/internal/harness"
)

// Exit codes for CLI commands.
const (
	ExitSuccess       = harness.ExitOK            // Expectations satisfied or defect reproduced
	ExitFailure       = harness.ExitMismatch      // Expectation mismatch, invalid scenario, flaky history
	ExitCommandError  = harness.ExitSetupFailed   // Setup failure or command error (bad paths, bad config)
	ExitNotReproduced = harness.ExitNotReproduced // Defect signature no longer reproduces
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that carry no
// code (flag parsing, argument counts) are command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// severity orders exit codes when several scenarios run in one command.
// A setup failure outranks a mismatch, which outranks a stale defect.
func severity(code int) int {
	switch code {
	case ExitCommandError:
		return 3
	case ExitFailure:
		return 2
	case ExitNotReproduced:
		return 1
	default:
		return 0
	}
}

// worstExit returns the most severe of codes.
func worstExit(codes []int) int {
	worst := ExitSuccess
	for _, c := range codes {
		if severity(c) > severity(worst) {
			worst = c
		}
	}
	return worst
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_SETUP", "E_MISMATCH", ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Error codes used in JSON responses.
const (
	ErrCodeGeneric       = "E_GENERIC"
	ErrCodeInvalid       = "E_INVALID_SCENARIO"
	ErrCodeSetup         = "E_SETUP"
	ErrCodeMismatch      = "E_MISMATCH"
	ErrCodeNotReproduced = "E_NOT_REPRODUCED"
	ErrCodeTestFailed    = "E_TEST_FAILED"
	ErrCodeFlaky         = "E_FLAKY"
)

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Respond writes a full response in JSON mode. Text callers print their
// own output.
func (f *OutputFormatter) Respond(resp CLIResponse) error {
	return f.encode(resp)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// verdictErrCode maps a non-passing verdict to a JSON error code.
func verdictErrCode(v harness.Verdict) string {
	switch v {
	case harness.VerdictMismatch:
		return ErrCodeMismatch
	case harness.VerdictNotReproduced:
		return ErrCodeNotReproduced
	case harness.VerdictSetupFailed:
		return ErrCodeSetup
	default:
		return ErrCodeGeneric
	}
}
