package exitcode

import (
	"context"
	"errors"
	"os"
	"strings"

	derrors "github.com/felixgeelhaar/docflow/internal/errors"
	"github.com/felixgeelhaar/docflow/internal/planner"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PlanningDeadlock indicates pending units that can never become ready
	PlanningDeadlock = 3

	// StaleArtifacts indicates the resume check found stale downstream kinds
	StaleArtifacts = 4

	// UnitFailures indicates a run finished with failed or blocked units
	UnitFailures = 5

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Error carries an explicit exit code through cobra's error return.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return GetExitCodeDescription(e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode attaches code to err.
func WithCode(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to a process exit code. Explicit codes
// win, then typed domain errors, then error codes, then cobra's usage
// messages.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}

	if errors.Is(err, context.Canceled) {
		return Interrupted
	}

	var pe *planner.PlanningError
	if errors.As(err, &pe) {
		return PlanningDeadlock
	}

	if code, ok := derrors.CodeOf(err); ok {
		switch code {
		case derrors.ErrCodePlanDeadlock:
			return PlanningDeadlock
		case derrors.ErrCodeResumeStale:
			return StaleArtifacts
		case derrors.ErrCodeRunUnitsFailed:
			return UnitFailures
		case derrors.ErrCodeConfigInvalid:
			return UsageError
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") ||
		strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") ||
		strings.Contains(errMsg, "requires at least") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case PlanningDeadlock:
		return "Planning deadlock"
	case StaleArtifacts:
		return "Stale artifacts detected"
	case UnitFailures:
		return "Units failed or were blocked"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
