package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/docflow/internal/cmd"
	"github.com/felixgeelhaar/docflow/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		exitcode.Exit(exitcode.Success)
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "\nInterrupted. Units still running will be reconciled by the next run.")
		exitcode.Exit(exitcode.Interrupted)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitcode.ExitWithError(err)
}
