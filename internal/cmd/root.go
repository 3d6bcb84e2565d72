// Package cmd implements the docflow command line.
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	derrors "github.com/felixgeelhaar/docflow/internal/errors"
	"github.com/felixgeelhaar/docflow/internal/metrics"
	"github.com/felixgeelhaar/docflow/internal/telemetry"
)

// NewRootCommand builds the full command tree. Every call returns fresh
// commands with fresh flag state.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docflow",
		Short: "Dependency-aware scheduler for generated documents",
		Long: `docflow decides which generation units must run, in what order and with how
much parallelism, and whether previously generated artifacts are still valid.

Units and their dependencies are declared in a registry file (YAML, HCL or
JSON). Unit status lives under .docflow/state and survives restarts: a run
that is interrupted picks up where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is .docflow/config.yaml in the project)")
	flags.String("registry", "", "unit registry file (overrides config)")
	flags.String("state-dir", "", "status directory (overrides config)")
	flags.StringP("format", "o", "text", "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newValidateCmd(),
		newOrderCmd(),
		newPlanCmd(),
		newRunCmd(),
		newStatusCmd(),
		newResetCmd(),
		newRetryCmd(),
		newReconcileCmd(),
		newResumeCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx. Domain errors are returned
// with codes and suggestions attached.
func ExecuteContext(ctx context.Context) error {
	return execute(ctx, NewRootCommand())
}

func execute(ctx context.Context, root *cobra.Command) error {
	start := time.Now()
	executed, err := root.ExecuteContextC(ctx)

	name := "docflow"
	if executed != nil {
		name = executed.Name()
	}
	if m := metrics.Default; m != nil {
		m.RecordCommand(name, err == nil, time.Since(start))
	}

	if err == nil {
		return nil
	}
	err = FromDomain(err)
	if code, ok := derrors.CodeOf(err); ok && metrics.Default != nil {
		metrics.Default.RecordError(string(code))
	}
	return err
}

// commandSpan starts the span wrapping one command invocation.
func commandSpan(cmd *cobra.Command) (context.Context, func(error)) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.Name())
	return ctx, func(err error) {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
}
