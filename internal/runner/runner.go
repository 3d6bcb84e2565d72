// Package runner drives units through the status store batch by batch.
//
// Each iteration re-plans from a fresh snapshot and runs only the first
// batch, so a failure observed in batch N is reflected before batch N+1 is
// chosen. Unit failures are outcomes, never errors: they block the failing
// unit's dependents while independent branches keep running.
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/docflow/internal/executor"
	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/metrics"
	"github.com/felixgeelhaar/docflow/internal/planner"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/telemetry"
	"github.com/felixgeelhaar/docflow/internal/unit"
)

// Runner executes a graph against a status store.
type Runner struct {
	Graph    *graph.Graph
	Store    *status.Store
	Executor executor.Executor

	// Costs overrides unit estimates for planning.
	Costs map[string]float64
	// Concurrency bounds units running at once within a batch; 0 is unbounded.
	Concurrency int
	// Liveness is the reconciliation threshold; 0 disables reconciliation.
	Liveness time.Duration

	Logger  *log.Logger
	Metrics *metrics.Metrics

	// NewRunID generates run identifiers; defaults to a random UUID.
	NewRunID func() string

	mu      sync.Mutex
	summary *Summary
}

// Summary describes one Run.
type Summary struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Batches    int           `json:"batches" yaml:"batches"`
	Succeeded  []string      `json:"succeeded" yaml:"succeeded"`
	Failed     []string      `json:"failed" yaml:"failed"`
	Blocked    []string      `json:"blocked" yaml:"blocked"`
	Reconciled []string      `json:"reconciled,omitempty" yaml:"reconciled,omitempty"`
	// Excluded lists units that could not run because of failures recorded
	// before this run.
	Excluded []string      `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// OK reports whether every unit of the graph ended up succeeded.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Blocked) == 0 && len(s.Reconciled) == 0 && len(s.Excluded) == 0
}

func (s *Summary) sort() {
	sort.Strings(s.Succeeded)
	sort.Strings(s.Failed)
	sort.Strings(s.Blocked)
	sort.Strings(s.Excluded)
}

// exclude records the plan's excluded units that this run did not already
// report as failed, blocked or reconciled.
func (s *Summary) exclude(ids []string) {
	seen := make(map[string]bool, len(s.Failed)+len(s.Blocked)+len(s.Reconciled))
	for _, id := range s.Reconciled {
		seen[id] = true
	}
	for _, id := range s.Failed {
		seen[id] = true
	}
	for _, id := range s.Blocked {
		seen[id] = true
	}
	s.Excluded = nil
	for _, id := range ids {
		if !seen[id] {
			s.Excluded = append(s.Excluded, id)
		}
	}
}

func (r *Runner) logger() *log.Logger {
	return log.OrDefault(r.Logger).With("component", "runner")
}

func (r *Runner) validate() error {
	if r.Graph == nil || r.Store == nil || r.Executor == nil {
		return fmt.Errorf("runner requires a graph, a status store and an executor")
	}
	if r.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", r.Concurrency)
	}
	return nil
}

// Run reconciles stale Running units and then executes batches until the
// plan is empty. The Summary is returned even when Run fails. Cancelling ctx
// stops dispatching; units already executing when cancellation is observed
// stay Running and are reconciled by a later Run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	if r.NewRunID != nil {
		runID = r.NewRunID()
	}
	r.Store.SetRunID(runID)
	defer r.Store.SetRunID("")

	summary := &Summary{RunID: runID}
	r.mu.Lock()
	r.summary = summary
	r.mu.Unlock()
	defer func() {
		summary.sort()
		summary.Duration = time.Since(start)
	}()

	logger := r.logger().WithRun(runID)

	if r.Liveness > 0 {
		rec, err := Reconcile(r.Graph, r.Store, r.Liveness, logger)
		r.record(func(s *Summary) {
			s.Reconciled = rec.Failed
			s.Blocked = append(s.Blocked, rec.Blocked...)
		})
		if err != nil {
			return summary, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		p, err := planner.Plan(r.Graph, r.Costs, r.Store.Snapshot())
		if err != nil {
			return summary, fmt.Errorf("plan: %w", err)
		}
		if p.Empty() {
			r.record(func(s *Summary) { s.exclude(p.Excluded) })
			logger.Info("run complete", "batches", summary.Batches,
				"succeeded", len(summary.Succeeded), "failed", len(summary.Failed), "blocked", len(summary.Blocked),
				"excluded", len(summary.Excluded))
			return summary, nil
		}

		batch := p.Batches[0]
		summary.Batches++
		logger.Info("batch started", "batch", summary.Batches, "units", batch.Units,
			"remaining_batches", len(p.Batches)-1, "remaining_duration", p.RemainingDuration)

		if err := r.runBatch(ctx, logger, runID, summary.Batches, batch.Units); err != nil {
			return summary, err
		}
	}
}

func (r *Runner) runBatch(ctx context.Context, logger *log.Logger, runID string, index int, ids []string) error {
	if r.Metrics != nil {
		r.Metrics.RecordBatch(len(ids))
	}

	ctx, span := telemetry.StartBatchSpan(ctx, runID, index, ids)
	defer span.End()

	for _, id := range ids {
		us, _ := r.Store.Get(id)
		if us.State == status.Ready {
			continue
		}
		if _, err := r.Store.Transition(id, status.Ready, status.Meta{Reason: "scheduled"}); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			return r.runUnit(gctx, logger.WithUnit(id), id)
		})
	}

	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.RecordSuccess(span)
	return nil
}

func (r *Runner) runUnit(ctx context.Context, logger *log.Logger, id string) error {
	if ctx.Err() != nil {
		return nil
	}

	u, _ := r.Graph.Unit(id)

	if _, err := r.Store.Transition(id, status.Running, status.Meta{Reason: "dispatched"}); err != nil {
		return err
	}

	ctx, span := telemetry.StartUnitSpan(ctx, id, u.Kind)
	defer span.End()

	execErr := r.execute(ctx, u)

	if ctx.Err() != nil {
		// Left Running on purpose; reconciliation decides its fate.
		logger.WarnContext(ctx, "run cancelled while unit was executing", "error", ctx.Err())
		telemetry.RecordError(span, ctx.Err())
		return nil
	}

	if execErr == nil {
		if _, err := r.Store.Transition(id, status.Succeeded, status.Meta{Reason: "executor"}); err != nil {
			return err
		}
		telemetry.RecordSuccess(span)
		r.record(func(s *Summary) { s.Succeeded = append(s.Succeeded, id) })
		logger.InfoContext(ctx, "unit succeeded")
		return nil
	}

	telemetry.RecordError(span, execErr)
	if _, err := r.Store.Transition(id, status.Failed, status.Meta{Error: execErr.Error(), Reason: "executor"}); err != nil {
		return err
	}
	r.record(func(s *Summary) { s.Failed = append(s.Failed, id) })
	logger.WithError(execErr).WarnContext(ctx, "unit failed")
	return r.blockDependents(id)
}

func (r *Runner) execute(ctx context.Context, u unit.Unit) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panicked: %v", p)
		}
	}()
	return r.Executor.Execute(ctx, u)
}

// blockDependents blocks the pending dependents of id and records them in
// the current summary.
func (r *Runner) blockDependents(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked, err := blockDependents(r.Graph, r.Store, id)
	if r.summary != nil {
		r.summary.Blocked = append(r.summary.Blocked, blocked...)
	}
	return err
}

func (r *Runner) record(fn func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		fn(r.summary)
	}
}

func (s *Summary) String() string {
	msg := fmt.Sprintf("run %s: %d batch(es), %d succeeded, %d failed, %d blocked in %s",
		s.RunID, s.Batches, len(s.Succeeded), len(s.Failed), len(s.Blocked), s.Duration.Round(time.Millisecond))
	if len(s.Reconciled) > 0 {
		msg += fmt.Sprintf(" (%d reconciled)", len(s.Reconciled))
	}
	if len(s.Excluded) > 0 {
		msg += fmt.Sprintf("; %d excluded by earlier failures", len(s.Excluded))
	}
	return msg
}
