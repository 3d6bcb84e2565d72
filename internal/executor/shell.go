package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/docflow/internal/unit"
)

// Environment variables exported to unit commands.
const (
	EnvUnitID   = "DOCFLOW_UNIT_ID"
	EnvUnitKind = "DOCFLOW_UNIT_KIND"
)

const stderrTail = 512

// Shell runs a unit's Command through a shell.
type Shell struct {
	// Shell is the interpreter, defaults to "sh".
	Shell string
	// Dir is the working directory, defaults to the current one.
	Dir string
	// Env holds extra KEY=VALUE entries added to the process environment.
	Env []string
	// Stdout and Stderr receive the command output. Stderr is always
	// captured as well so failures carry its tail.
	Stdout io.Writer
	Stderr io.Writer
}

// CommandError reports a non-zero exit.
type CommandError struct {
	Unit     string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command for unit %s exited with code %d", e.Unit, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Execute implements Executor.
func (s *Shell) Execute(ctx context.Context, u unit.Unit) error {
	if strings.TrimSpace(u.Command) == "" {
		return fmt.Errorf("unit %s has no command", u.ID)
	}

	shell := s.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", u.Command)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, EnvUnitID+"="+u.ID, EnvUnitKind+"="+u.Kind)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if s.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, s.Stderr)
	}
	cmd.Stdout = s.Stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Unit: u.ID, ExitCode: exitErr.ExitCode(), Stderr: tail(stderr.String())}
		}
		return fmt.Errorf("start command for unit %s: %w", u.ID, err)
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}
