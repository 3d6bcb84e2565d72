package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Registry errors (REGISTRY-001 to REGISTRY-099)
	ErrCodeRegistryNotFound ErrorCode = "REGISTRY-001"
	ErrCodeRegistryInvalid  ErrorCode = "REGISTRY-002"

	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphCycle       ErrorCode = "GRAPH-001"
	ErrCodeGraphUnknownDep  ErrorCode = "GRAPH-002"
	ErrCodeGraphUnknownUnit ErrorCode = "GRAPH-003"

	// Planning errors (PLAN-001 to PLAN-099)
	ErrCodePlanDeadlock ErrorCode = "PLAN-001"

	// Status store errors (STATUS-001 to STATUS-099)
	ErrCodeStatusTransition ErrorCode = "STATUS-001"
	ErrCodeStatusPersist    ErrorCode = "STATUS-002"

	// Resume errors (RESUME-001 to RESUME-099)
	ErrCodeResumePattern ErrorCode = "RESUME-001"
	ErrCodeResumeStale   ErrorCode = "RESUME-002"

	// Run errors (RUN-001 to RUN-099)
	ErrCodeRunUnitsFailed ErrorCode = "RUN-001"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
)

// DocflowError represents an enhanced error with code, suggestions, and documentation
type DocflowError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *DocflowError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DocflowError) Unwrap() error {
	return e.Cause
}

// New creates a new DocflowError
func New(code ErrorCode, message string) *DocflowError {
	return &DocflowError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new DocflowError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *DocflowError {
	return &DocflowError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *DocflowError) WithSuggestion(suggestion string) *DocflowError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *DocflowError) WithSuggestions(suggestions ...string) *DocflowError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *DocflowError) WithDocs(url string) *DocflowError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first DocflowError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DocflowError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// Common error constructors for frequently used errors

// NewRegistryNotFoundError creates a registry file not found error
func NewRegistryNotFoundError(path string) *DocflowError {
	return New(ErrCodeRegistryNotFound, fmt.Sprintf("unit registry not found: %s", path)).
		WithSuggestion("Pass --registry or set 'registry' in .docflow/config.yaml").
		WithSuggestion("Check if the file path is correct").
		WithDocs("https://github.com/felixgeelhaar/docflow#unit-registry")
}

// NewRegistryInvalidError creates a registry validation error
func NewRegistryInvalidError(cause error) *DocflowError {
	return Wrap(ErrCodeRegistryInvalid, "invalid unit registry", cause).
		WithSuggestion("Run 'docflow validate' to see registry errors").
		WithDocs("https://github.com/felixgeelhaar/docflow#unit-registry")
}

// NewCycleError creates a dependency cycle error
func NewCycleError(cause error) *DocflowError {
	return Wrap(ErrCodeGraphCycle, "dependency cycle detected", cause).
		WithSuggestion("Remove one of the dependencies on the reported path").
		WithSuggestion("Run 'docflow validate' after editing the registry")
}

// NewDeadlockError creates a planning deadlock error
func NewDeadlockError(cause error) *DocflowError {
	return Wrap(ErrCodePlanDeadlock, "planning deadlock", cause).
		WithSuggestion("Run 'docflow reconcile' to fail units stuck in running").
		WithSuggestion("Run 'docflow status' to inspect unit states")
}

// NewTransitionError creates an illegal status transition error
func NewTransitionError(cause error) *DocflowError {
	return Wrap(ErrCodeStatusTransition, "illegal status transition", cause).
		WithSuggestion("Run 'docflow status' to re-read the current state").
		WithSuggestion("Use 'docflow reset' or 'docflow retry' to re-enter a unit")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *DocflowError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *DocflowError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
