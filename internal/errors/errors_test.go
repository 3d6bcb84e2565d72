package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeRegistryNotFound, "test error message")

	if err.Code != ErrCodeRegistryNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeRegistryNotFound, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *DocflowError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeRegistryInvalid, "invalid registry"),
			wantCode: "REGISTRY-002",
			wantMsg:  "invalid registry",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantCode: "IO-002",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrCodeRegistryNotFound, "registry not found").
		WithSuggestion("Check the file path")

	if len(err.Suggestions) != 1 {
		t.Errorf("expected 1 suggestion, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "Suggestions:") {
		t.Errorf("error string should contain suggestions section")
	}
	if !strings.Contains(errStr, "Check the file path") {
		t.Errorf("error string should contain suggestion text")
	}
}

func TestWithDocs(t *testing.T) {
	docsURL := "https://github.com/felixgeelhaar/docflow#docs"
	err := New(ErrCodeRegistryInvalid, "invalid registry").WithDocs(docsURL)

	errStr := err.Error()
	if !strings.Contains(errStr, "Documentation:") || !strings.Contains(errStr, docsURL) {
		t.Errorf("error string should contain documentation link, got: %s", errStr)
	}
}

func TestDomainConstructors(t *testing.T) {
	cause := fmt.Errorf("a -> b -> a")

	tests := []struct {
		name string
		err  *DocflowError
		code ErrorCode
	}{
		{"cycle", NewCycleError(cause), ErrCodeGraphCycle},
		{"deadlock", NewDeadlockError(cause), ErrCodePlanDeadlock},
		{"transition", NewTransitionError(cause), ErrCodeStatusTransition},
		{"registry invalid", NewRegistryInvalidError(cause), ErrCodeRegistryInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if !errors.Is(tt.err, cause) {
				t.Errorf("expected cause to be preserved")
			}
			if len(tt.err.Suggestions) == 0 {
				t.Errorf("expected suggestions")
			}
		})
	}
}

func TestNewRegistryNotFoundError(t *testing.T) {
	err := NewRegistryNotFoundError("/path/to/units.yaml")

	if !strings.Contains(err.Message, "/path/to/units.yaml") {
		t.Errorf("error message should contain file path")
	}
	if err.DocsURL == "" {
		t.Errorf("expected docs URL to be set")
	}
}

func TestNewFileUnmarshalError(t *testing.T) {
	cause := fmt.Errorf("invalid YAML syntax at line 5")
	err := NewFileUnmarshalError("/path/to/units.yaml", "YAML", cause)

	if err.Code != ErrCodeFileUnmarshal {
		t.Errorf("expected code %s, got %s", ErrCodeFileUnmarshal, err.Code)
	}
	if err.Cause != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !strings.Contains(err.Message, "YAML") {
		t.Errorf("error message should contain format")
	}
}

func TestCodeOf(t *testing.T) {
	inner := New(ErrCodePlanDeadlock, "stuck")
	wrapped := fmt.Errorf("run: %w", inner)

	code, ok := CodeOf(wrapped)
	if !ok || code != ErrCodePlanDeadlock {
		t.Errorf("expected %s, got %s (ok=%v)", ErrCodePlanDeadlock, code, ok)
	}

	if _, ok := CodeOf(fmt.Errorf("plain")); ok {
		t.Errorf("plain errors should not report a code")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "read failed", cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap should return the cause")
	}
}
