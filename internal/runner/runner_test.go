package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/docflow/internal/executor"
	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/metrics"
	"github.com/felixgeelhaar/docflow/internal/planner"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/unit"
)

type fixture struct {
	graph *graph.Graph
	store *status.Store
	dir   string
}

func newFixture(t *testing.T, units ...unit.Unit) *fixture {
	t.Helper()
	g, err := graph.Build(units)
	require.NoError(t, err)
	dir := t.TempDir()
	store, err := status.Open(dir, g.IDs(), status.Options{Logger: log.Nop()})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return &fixture{graph: g, store: store, dir: dir}
}

func (f *fixture) runner(exec executor.Executor) *Runner {
	return &Runner{
		Graph:    f.graph,
		Store:    f.store,
		Executor: exec,
		Logger:   log.Nop(),
		NewRunID: func() string { return "run-test" },
	}
}

func (f *fixture) state(id string) status.State {
	return f.store.Snapshot().State(id)
}

func u(id string, deps ...string) unit.Unit {
	return unit.Unit{ID: id, Dependencies: deps}
}

// recorder executes units, failing those listed, and keeps the order in
// which units started.
type recorder struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
}

func (r *recorder) Execute(_ context.Context, un unit.Unit) error {
	r.mu.Lock()
	r.order = append(r.order, un.ID)
	r.mu.Unlock()
	if r.fail[un.ID] {
		return fmt.Errorf("%s exploded", un.ID)
	}
	return nil
}

func (r *recorder) index(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestRunDiamond(t *testing.T) {
	f := newFixture(t, u("A"), u("B", "A"), u("C", "A"), u("D", "B", "C"))
	rec := &recorder{}

	summary, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-test", summary.RunID)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, []string{"A", "B", "C", "D"}, summary.Succeeded)
	assert.True(t, summary.OK())

	assert.Equal(t, 0, rec.index("A"))
	assert.Equal(t, 3, rec.index("D"))
	for _, id := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, status.Succeeded, f.state(id), id)
	}

	events, err := status.ReadAudit(f.store.AuditPath())
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "run-test", events[0].RunID)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, u("a"), u("b", "a"))
	rec := &recorder{}

	_, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)

	summary, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Batches)
	assert.Len(t, rec.order, 2, "succeeded units are not executed again")
}

func TestRunFailureBlocksDependentsOnly(t *testing.T) {
	f := newFixture(t,
		u("a"),
		u("b", "a"),
		u("c", "b"),
		u("x"),
		u("y", "x"),
	)
	rec := &recorder{fail: map[string]bool{"a": true}}

	summary, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err, "unit failures are outcomes")
	assert.Equal(t, []string{"a"}, summary.Failed)
	assert.Equal(t, []string{"b", "c"}, summary.Blocked)
	assert.Equal(t, []string{"x", "y"}, summary.Succeeded)
	assert.False(t, summary.OK())

	assert.Equal(t, status.Failed, f.state("a"))
	assert.Equal(t, status.Blocked, f.state("b"))
	assert.Equal(t, status.Blocked, f.state("c"))
	assert.Equal(t, -1, rec.index("b"), "blocked units never run")

	failed, _ := f.store.Get("a")
	assert.Equal(t, "a exploded", failed.LastError)
}

func TestRunSiblingFailuresShareDependent(t *testing.T) {
	f := newFixture(t, u("a"), u("b"), u("c", "a", "b"))
	rec := &recorder{fail: map[string]bool{"a": true, "b": true}}

	summary, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, summary.Failed)
	assert.Equal(t, []string{"c"}, summary.Blocked)
}

func TestRunPanickingExecutorFailsUnit(t *testing.T) {
	f := newFixture(t, u("a"))
	exec := executor.Func(func(context.Context, unit.Unit) error { panic("boom") })

	summary, err := f.runner(exec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Failed)
	us, _ := f.store.Get("a")
	assert.Contains(t, us.LastError, "panicked")
}

func TestRunConcurrencyLimit(t *testing.T) {
	units := make([]unit.Unit, 8)
	for i := range units {
		units[i] = u(fmt.Sprintf("u%d", i))
	}
	f := newFixture(t, units...)

	var active, peak int32
	exec := executor.Func(func(context.Context, unit.Unit) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})

	r := f.runner(exec)
	r.Concurrency = 2
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Succeeded, 8)
	assert.Equal(t, 1, summary.Batches)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunBatchMembersRunConcurrently(t *testing.T) {
	f := newFixture(t, u("a"), u("b"))

	var wg sync.WaitGroup
	wg.Add(2)
	exec := executor.Func(func(ctx context.Context, _ unit.Unit) error {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling never started")
		}
	})

	summary, err := f.runner(exec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, summary.Succeeded)
}

func TestRunCancellationLeavesUnitRunning(t *testing.T) {
	f := newFixture(t, u("a"), u("b", "a"))

	ctx, cancel := context.WithCancel(context.Background())
	exec := executor.Func(func(ctx context.Context, _ unit.Unit) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := f.runner(exec).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, status.Running, f.state("a"))
	assert.Equal(t, status.NotStarted, f.state("b"))
}

func TestRunReconcilesCrashedUnits(t *testing.T) {
	f := newFixture(t, u("a"), u("b", "a"), u("c"))
	for _, st := range []status.State{status.Ready, status.Running} {
		_, err := f.store.Transition("a", st, status.Meta{})
		require.NoError(t, err)
	}

	// without reconciliation the running unit deadlocks its dependent
	r := f.runner(&recorder{})
	_, err := r.Run(context.Background())
	var pe *planner.PlanningError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"b"}, pe.Stuck)

	time.Sleep(5 * time.Millisecond)
	r.Liveness = time.Millisecond
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Reconciled)
	assert.Equal(t, []string{"b"}, summary.Blocked)
	assert.Equal(t, status.Failed, f.state("a"))
	us, _ := f.store.Get("a")
	assert.Equal(t, status.CrashedError, us.LastError)
	assert.Empty(t, summary.Excluded)
	assert.False(t, summary.OK())
}

func TestReconcileBlocksDependents(t *testing.T) {
	f := newFixture(t, u("a"), u("b", "a"), u("c", "b"), u("d"))
	for _, st := range []status.State{status.Ready, status.Running} {
		_, err := f.store.Transition("a", st, status.Meta{})
		require.NoError(t, err)
	}

	rec, err := Reconcile(f.graph, f.store, time.Hour, log.Nop())
	require.NoError(t, err)
	assert.Empty(t, rec.Failed, "unit is still within its liveness window")
	assert.Empty(t, rec.Blocked)

	time.Sleep(5 * time.Millisecond)
	rec, err = Reconcile(f.graph, f.store, time.Millisecond, log.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rec.Failed)
	assert.Equal(t, []string{"b", "c"}, rec.Blocked)
	assert.Equal(t, status.Blocked, f.state("b"))
	assert.Equal(t, status.Blocked, f.state("c"))
	assert.Equal(t, status.NotStarted, f.state("d"))

	// the graph is not deadlocked: the independent unit still runs
	summary, err := f.runner(&recorder{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, summary.Succeeded)
	assert.Equal(t, []string{"a", "b", "c"}, summary.Excluded)
	assert.False(t, summary.OK())
}

func TestRunAfterFailureIsNotOK(t *testing.T) {
	f := newFixture(t, u("a"), u("b", "a"), u("x"))
	rec := &recorder{fail: map[string]bool{"a": true}}

	first, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, first.OK())
	assert.Empty(t, first.Excluded, "units reported in this run are not excluded again")

	second, err := f.runner(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Batches)
	assert.Empty(t, second.Failed)
	assert.Empty(t, second.Blocked)
	assert.Equal(t, []string{"a", "b"}, second.Excluded)
	assert.False(t, second.OK())
	assert.Contains(t, second.String(), "2 excluded by earlier failures")
}

func TestRunRecordsMetrics(t *testing.T) {
	f := newFixture(t, u("a"), u("b"), u("c", "a"))
	_, m := metrics.NewRegistry()

	r := f.runner(&recorder{})
	r.Metrics = m
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Batches))
}

func TestRunValidates(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)

	f := newFixture(t, u("a"))
	r := f.runner(&recorder{})
	r.Concurrency = -1
	_, err = r.Run(context.Background())
	assert.Error(t, err)
}
