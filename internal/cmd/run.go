package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/executor"
	"github.com/felixgeelhaar/docflow/internal/exitcode"
	"github.com/felixgeelhaar/docflow/internal/planner"
	"github.com/felixgeelhaar/docflow/internal/progress"
	"github.com/felixgeelhaar/docflow/internal/runner"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/unit"
)

type runOptions struct {
	concurrency int
	liveness    time.Duration
	dryRun      bool
	noop        bool
	resetStale  bool
	quiet       bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every unit that is not done yet",
		Long: `Run pending units batch by batch. Units in one batch have no dependency on each
other and run concurrently; the next batch is chosen only after the current
one finished, from freshly persisted status.

A failing unit blocks everything that depends on it. Independent branches keep
running. Interrupting a run leaves the executing units in the running state;
the next run reconciles units that stayed running past the liveness threshold.

Exit codes:
  0    every unit succeeded
  3    planning deadlock (a pending unit waits on a unit stuck in running)
  5    one or more units failed, were blocked or are excluded by an earlier failure
  130  interrupted

Examples:
  docflow run
  docflow run --concurrency 4
  docflow run --reset-stale
  docflow run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", -1, "maximum units running at once (0 = unbounded, default from config)")
	cmd.Flags().DurationVar(&opts.liveness, "liveness", 0, "reconcile units running longer than this (default from config)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without executing anything")
	cmd.Flags().BoolVar(&opts.noop, "noop", false, "mark pending units succeeded without running their commands")
	cmd.Flags().BoolVar(&opts.resetStale, "reset-stale", false, "reset units whose artifacts are stale before running")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress per-unit progress lines")
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions) (err error) {
	p, err := openProject(cmd, withStore)
	if err != nil {
		return err
	}
	defer func() { p.Close(err) }()

	if err := p.Store.SetRegistryFingerprint(p.Registry.Fingerprint()); err != nil {
		return err
	}

	if opts.resetStale {
		if _, err := resetStale(p); err != nil {
			return err
		}
	}

	if opts.dryRun {
		snap := p.Store.Snapshot()
		plan, err := planner.Plan(p.Graph, p.Graph.Costs(), snap)
		if err != nil {
			return err
		}
		return p.Print(planner.NewReport(p.Graph, snap, plan))
	}

	r := &runner.Runner{
		Graph:       p.Graph,
		Store:       p.Store,
		Executor:    p.executor(opts.noop),
		Costs:       p.Graph.Costs(),
		Concurrency: p.Config.Concurrency,
		Liveness:    time.Duration(p.Config.Liveness),
		Logger:      p.Logger,
		Metrics:     p.Metrics,
	}
	if opts.concurrency >= 0 {
		r.Concurrency = opts.concurrency
	}
	if opts.liveness > 0 {
		r.Liveness = opts.liveness
	}

	var ind *progress.Indicator
	var unsubscribe func()
	if p.Text() && !opts.quiet {
		ind = progress.NewIndicator(progress.Config{Writer: p.Out}, p.Store.Snapshot())
		var events <-chan status.Event
		events, unsubscribe = p.Store.Subscribe(256)
		ind.PrintResumeInfo(p.Config.Registry)
		ind.Follow(events)
	}

	summary, runErr := r.Run(p.Ctx)

	if ind != nil {
		unsubscribe()
		ind.Wait()
		ind.Stop()
		ind.PrintSummary()
	} else if summary != nil {
		if err := p.Print(summary); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if !summary.OK() {
		return exitcode.WithCode(exitcode.UnitFailures,
			fmt.Errorf("%d unit(s) failed, %d blocked, %d excluded by earlier failures",
				len(summary.Failed)+len(summary.Reconciled), len(summary.Blocked), len(summary.Excluded)))
	}
	return nil
}

// executor returns the configured shell executor, or one that succeeds
// immediately when noop is set. Unit output is prefixed with the unit id.
func (p *project) executor(noop bool) executor.Executor {
	if noop {
		return executor.Noop{}
	}

	dir := p.Config.Executor.Dir
	if dir == "" {
		dir = p.Root
	}
	stdout := p.Out
	if !p.Text() {
		stdout = p.Err
	}
	base := executor.Shell{
		Shell: p.Config.Executor.Shell,
		Dir:   dir,
		Env:   p.Config.Executor.Env,
	}
	return executor.Func(func(ctx context.Context, u unit.Unit) error {
		out := progress.NewStreamWriter(stdout, "["+u.ID+"]")
		errOut := progress.NewStreamWriter(p.Err, "["+u.ID+"]")
		sh := base
		sh.Stdout, sh.Stderr = out, errOut
		err := sh.Execute(ctx, u)
		flushAll(out, errOut)
		return err
	})
}

func flushAll(ws ...*progress.StreamWriter) {
	for _, w := range ws {
		_ = w.Flush()
	}
}
