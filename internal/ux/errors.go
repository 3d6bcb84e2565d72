package ux

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a recovery hint to common uncoded failures. Errors it
// does not recognise are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	var already *ErrorWithSuggestion
	if errors.As(err, &already) {
		return err
	}

	errMsg := err.Error()

	switch {
	case errors.Is(err, fs.ErrNotExist):
		switch {
		case strings.Contains(errMsg, "config.yaml"):
			return NewErrorWithSuggestion(err, "Create .docflow/config.yaml or pass --config")
		case strings.Contains(errMsg, "units."):
			return NewErrorWithSuggestion(err, "Pass --registry or set 'registry' in .docflow/config.yaml")
		}
		return NewErrorWithSuggestion(err, "Check that the path exists")

	case errors.Is(err, fs.ErrPermission):
		return NewErrorWithSuggestion(err,
			"Check file permissions on the state directory and registry")

	case strings.Contains(errMsg, "has no command"):
		return NewErrorWithSuggestion(err,
			"Add a 'command' to the unit in the registry, or run with --noop")

	case strings.Contains(errMsg, "yaml:"):
		return NewErrorWithSuggestion(err, "Fix the YAML syntax, then run 'docflow validate'")

	case strings.Contains(errMsg, "unknown format"):
		return NewErrorWithSuggestion(err, "Use --format text, json or yaml")
	}

	return err
}
