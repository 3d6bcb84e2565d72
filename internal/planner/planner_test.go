package planner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/unit"
)

func mustGraph(t *testing.T, units ...unit.Unit) *graph.Graph {
	t.Helper()
	g, err := graph.Build(units)
	require.NoError(t, err)
	return g
}

func u(id string, cost float64, deps ...string) unit.Unit {
	return unit.Unit{ID: id, EstimatedCost: cost, Dependencies: deps}
}

func diamond(t *testing.T) *graph.Graph {
	return mustGraph(t,
		u("A", 1),
		u("B", 2, "A"),
		u("C", 3, "A"),
		u("D", 1, "B", "C"),
	)
}

func TestPlanIndependentUnits(t *testing.T) {
	g := mustGraph(t, u("e", 1), u("d", 1), u("c", 1), u("b", 1), u("a", 1))

	p, err := Plan(g, nil, status.SnapshotOf(nil))
	require.NoError(t, err)
	require.Len(t, p.Batches, 1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, p.Batches[0].Units)
	assert.Equal(t, 1.0, p.TotalDuration)
	assert.Len(t, p.CriticalPath, 1)
	assert.Equal(t, []string{"a"}, p.CriticalPath, "ties go to the smallest id")
}

func TestPlanDiamond(t *testing.T) {
	g := diamond(t)

	p, err := Plan(g, g.Costs(), status.SnapshotOf(nil))
	require.NoError(t, err)

	if diff := cmp.Diff([][]string{{"A"}, {"B", "C"}, {"D"}}, p.BatchIDs()); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"A", "C", "D"}, p.CriticalPath)
	assert.Equal(t, 5.0, p.TotalDuration)
	assert.Equal(t, 5.0, p.RemainingDuration)
	assert.Empty(t, p.Excluded)

	for _, b := range p.Batches {
		assert.True(t, b.IsCritical)
	}
	assert.Equal(t, 3.0, p.Batches[1].Cost)
}

func TestPlanSchedule(t *testing.T) {
	g := diamond(t)
	p, err := Plan(g, nil, status.SnapshotOf(nil))
	require.NoError(t, err)

	b := p.Schedule["B"]
	assert.Equal(t, 1.0, b.ES)
	assert.Equal(t, 3.0, b.EF)
	assert.Equal(t, 2.0, b.LS)
	assert.Equal(t, 4.0, b.LF)
	assert.Equal(t, 1.0, b.Slack)
	assert.False(t, b.IsCritical)
	assert.Equal(t, 1, b.Batch)

	for _, id := range []string{"A", "C", "D"} {
		assert.True(t, p.Schedule[id].IsCritical, id)
		assert.Zero(t, p.Schedule[id].Slack, id)
	}
}

func TestPlanCostOverrides(t *testing.T) {
	g := diamond(t)
	p, err := Plan(g, map[string]float64{"B": 10, "C": -1}, status.SnapshotOf(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, p.CriticalPath)
	assert.Equal(t, 12.0, p.TotalDuration)
}

func TestPlanIgnoresNonFiniteCostOverrides(t *testing.T) {
	g := diamond(t)
	var p *ExecutionPlan
	p, err := Plan(g, map[string]float64{"B": math.Inf(1), "C": math.NaN()}, status.SnapshotOf(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, p.CriticalPath)
	assert.Equal(t, 5.0, p.TotalDuration)
}

func TestPlanAllSucceeded(t *testing.T) {
	g := diamond(t)
	snap := status.SnapshotOf(map[string]status.State{
		"A": status.Succeeded, "B": status.Succeeded, "C": status.Succeeded, "D": status.Succeeded,
	})

	p, err := Plan(g, nil, snap)
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Zero(t, p.RemainingDuration)
	assert.Equal(t, 5.0, p.TotalDuration, "total covers every unit")

	again, err := Plan(g, nil, snap)
	require.NoError(t, err)
	assert.Empty(t, again.Batches)
}

func TestPlanPartialProgress(t *testing.T) {
	g := diamond(t)
	snap := status.SnapshotOf(map[string]status.State{
		"A": status.Succeeded, "B": status.Succeeded,
	})

	p, err := Plan(g, nil, snap)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"C"}, {"D"}}, p.BatchIDs())
	assert.Equal(t, 4.0, p.RemainingDuration)
	assert.Equal(t, -1, p.Schedule["A"].Batch)
}

func TestPlanExcludesFailedDescendants(t *testing.T) {
	g := mustGraph(t,
		u("a", 1),
		u("b", 1, "a"),
		u("c", 1, "b"),
		u("x", 1),
		u("y", 1, "x"),
	)

	for _, st := range []status.State{status.Failed, status.Blocked} {
		t.Run(st.String(), func(t *testing.T) {
			snap := status.SnapshotOf(map[string]status.State{"a": status.Succeeded, "b": st})

			p, err := Plan(g, nil, snap)
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "c"}, p.Excluded)
			assert.Equal(t, [][]string{{"x"}, {"y"}}, p.BatchIDs())
			assert.NotContains(t, ReadySet(g, snap), "c")
		})
	}
}

func TestPlanRunningDependencyDeadlocks(t *testing.T) {
	g := mustGraph(t, u("a", 1), u("b", 1, "a"), u("c", 1))
	snap := status.SnapshotOf(map[string]status.State{"a": status.Running})

	_, err := Plan(g, nil, snap)
	var pe *PlanningError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"b"}, pe.Stuck)
	assert.Equal(t, []string{"a"}, pe.Running)
	assert.Contains(t, pe.Error(), "waiting on running: a")
}

func TestPlanRunningLeafIsNotScheduled(t *testing.T) {
	g := mustGraph(t, u("a", 1), u("b", 1))
	snap := status.SnapshotOf(map[string]status.State{"a": status.Running})

	p, err := Plan(g, nil, snap)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b"}}, p.BatchIDs())
	assert.Equal(t, []string{"a"}, p.Running)
}

func TestReadySet(t *testing.T) {
	g := diamond(t)

	assert.Equal(t, []string{"A"}, ReadySet(g, status.SnapshotOf(nil)))
	assert.Equal(t, []string{"B", "C"}, ReadySet(g, status.SnapshotOf(map[string]status.State{"A": status.Succeeded})))
	assert.Equal(t, []string{"C"}, ReadySet(g, status.SnapshotOf(map[string]status.State{
		"A": status.Succeeded, "B": status.Running,
	})))
	assert.Equal(t, []string{"B"}, ReadySet(g, status.SnapshotOf(map[string]status.State{
		"A": status.Succeeded, "B": status.Ready, "C": status.Succeeded,
	})))
}

// Every batch member's dependencies finish in an earlier batch, and no batch
// holds two units connected by an edge.
func TestPlanRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 25; round++ {
		n := 5 + rng.Intn(20)
		units := make([]unit.Unit, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("u%02d", i)
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					deps = append(deps, fmt.Sprintf("u%02d", j))
				}
			}
			units[i] = u(id, float64(1+rng.Intn(5)), deps...)
		}
		g := mustGraph(t, units...)

		p, err := Plan(g, nil, status.SnapshotOf(nil))
		require.NoError(t, err)
		assert.Equal(t, n, p.Scheduled())

		batchOf := make(map[string]int)
		for _, b := range p.Batches {
			for _, id := range b.Units {
				batchOf[id] = b.Index
			}
		}
		for _, un := range units {
			for _, dep := range un.Dependencies {
				assert.Less(t, batchOf[dep], batchOf[un.ID], "%s depends on %s", un.ID, dep)
			}
		}

		// critical path is a dependency chain summing to the total
		sum := 0.0
		for i, id := range p.CriticalPath {
			un, _ := g.Unit(id)
			sum += un.Cost()
			if i > 0 {
				assert.Contains(t, g.DirectDependencies(id), p.CriticalPath[i-1])
			}
		}
		assert.InDelta(t, p.TotalDuration, sum, 1e-9)
	}
}
