// Package planner turns a dependency graph and a status snapshot into an
// execution plan: an ordered list of batches whose members may run
// concurrently, plus the critical path and a per-unit schedule.
//
// Planning is a pure function of its inputs. Nothing here mutates the status
// store; "hypothetically succeeded" units exist only inside one Plan call.
package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/status"
)

// PlanningError reports pending units that can never become ready, for
// example because a dependency is still Running or the store is
// inconsistent with the graph.
type PlanningError struct {
	Stuck   []string
	Running []string
}

func (e *PlanningError) Error() string {
	msg := fmt.Sprintf("planning deadlock: %d unit(s) can never become ready: %s",
		len(e.Stuck), strings.Join(e.Stuck, ", "))
	if len(e.Running) > 0 {
		msg += fmt.Sprintf(" (waiting on running: %s)", strings.Join(e.Running, ", "))
	}
	return msg
}

// Batch is a set of units with no dependency between them.
type Batch struct {
	Index      int      `json:"index" yaml:"index"`
	Units      []string `json:"units" yaml:"units"`
	Cost       float64  `json:"cost" yaml:"cost"`
	IsCritical bool     `json:"critical" yaml:"critical"`
}

// UnitSchedule holds critical path method figures for one unit.
type UnitSchedule struct {
	ID         string  `json:"id" yaml:"id"`
	ES         float64 `json:"earliest_start" yaml:"earliest_start"`
	EF         float64 `json:"earliest_finish" yaml:"earliest_finish"`
	LS         float64 `json:"latest_start" yaml:"latest_start"`
	LF         float64 `json:"latest_finish" yaml:"latest_finish"`
	Slack      float64 `json:"slack" yaml:"slack"`
	IsCritical bool    `json:"critical" yaml:"critical"`
	Batch      int     `json:"batch" yaml:"batch"` // -1 when not scheduled
}

// ExecutionPlan is the result of planning one snapshot.
type ExecutionPlan struct {
	Batches           []Batch                  `json:"batches" yaml:"batches"`
	CriticalPath      []string                 `json:"critical_path" yaml:"critical_path"`
	TotalDuration     float64                  `json:"total_duration" yaml:"total_duration"`
	RemainingDuration float64                  `json:"remaining_duration" yaml:"remaining_duration"`
	Excluded          []string                 `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Running           []string                 `json:"running,omitempty" yaml:"running,omitempty"`
	Schedule          map[string]*UnitSchedule `json:"schedule" yaml:"schedule"`
}

// BatchIDs returns the unit ids of every batch.
func (p *ExecutionPlan) BatchIDs() [][]string {
	out := make([][]string, len(p.Batches))
	for i, b := range p.Batches {
		out[i] = append([]string(nil), b.Units...)
	}
	return out
}

// Scheduled returns the number of units placed in a batch.
func (p *ExecutionPlan) Scheduled() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Units)
	}
	return n
}

// Empty reports whether nothing is left to run.
func (p *ExecutionPlan) Empty() bool {
	return len(p.Batches) == 0
}

func pending(s status.State) bool {
	return s == status.NotStarted || s == status.Ready
}

// ReadySet returns the units that may start now: pending units whose
// dependencies have all succeeded. The result is sorted.
func ReadySet(g *graph.Graph, snap status.Snapshot) []string {
	var ready []string
	for _, id := range g.IDs() {
		if !pending(snap.State(id)) {
			continue
		}
		if depsDone(g, id, func(dep string) bool { return snap.State(dep) == status.Succeeded }) {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

func depsDone(g *graph.Graph, id string, done func(string) bool) bool {
	for _, dep := range g.DirectDependencies(id) {
		if !done(dep) {
			return false
		}
	}
	return true
}

// Plan computes batches over snap. Succeeded units are done; Failed and
// Blocked units and every unit depending on them are excluded; Running units
// are in flight and never scheduled. Pending units that never become ready
// yield a *PlanningError. costs overrides the graph's estimates; missing,
// non-positive or non-finite entries fall back to the unit's own cost.
func Plan(g *graph.Graph, costs map[string]float64, snap status.Snapshot) (*ExecutionPlan, error) {
	cost := costFunc(g, costs)

	excluded := make(map[string]bool)
	var running []string
	for _, id := range g.IDs() {
		switch snap.State(id) {
		case status.Failed, status.Blocked:
			excluded[id] = true
			for _, d := range g.Descendants(id) {
				if st := snap.State(d); pending(st) || st == status.Failed || st == status.Blocked {
					excluded[d] = true
				}
			}
		case status.Running:
			running = append(running, id)
		}
	}
	sort.Strings(running)

	done := make(map[string]bool)
	remaining := make(map[string]bool)
	for _, id := range g.IDs() {
		st := snap.State(id)
		switch {
		case st == status.Succeeded:
			done[id] = true
		case pending(st) && !excluded[id]:
			remaining[id] = true
		}
	}

	p := &ExecutionPlan{Running: running}
	for len(remaining) > 0 {
		var batch []string
		for id := range remaining {
			if depsDone(g, id, func(dep string) bool { return done[dep] }) {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			stuck := make([]string, 0, len(remaining))
			for id := range remaining {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &PlanningError{Stuck: stuck, Running: running}
		}
		sort.Strings(batch)

		b := Batch{Index: len(p.Batches), Units: batch}
		for _, id := range batch {
			delete(remaining, id)
			done[id] = true
			if c := cost(id); c > b.Cost {
				b.Cost = c
			}
		}
		p.Batches = append(p.Batches, b)
	}

	for id := range excluded {
		p.Excluded = append(p.Excluded, id)
	}
	sort.Strings(p.Excluded)

	scheduled := make(map[string]bool)
	batchOf := make(map[string]int)
	for _, b := range p.Batches {
		for _, id := range b.Units {
			scheduled[id] = true
			batchOf[id] = b.Index
		}
	}

	p.CriticalPath, p.TotalDuration = criticalPath(g, cost, func(string) bool { return true })
	_, p.RemainingDuration = criticalPath(g, cost, func(id string) bool { return scheduled[id] })
	p.Schedule = schedule(g, cost, p.TotalDuration)
	for id, s := range p.Schedule {
		s.Batch = -1
		if idx, ok := batchOf[id]; ok {
			s.Batch = idx
		}
	}

	onPath := make(map[string]bool, len(p.CriticalPath))
	for _, id := range p.CriticalPath {
		onPath[id] = true
	}
	for i := range p.Batches {
		for _, id := range p.Batches[i].Units {
			if onPath[id] {
				p.Batches[i].IsCritical = true
				break
			}
		}
	}

	return p, nil
}

func costFunc(g *graph.Graph, costs map[string]float64) func(string) float64 {
	return func(id string) float64 {
		if c, ok := costs[id]; ok && c > 0 && !math.IsInf(c, 1) {
			return c
		}
		if u, ok := g.Unit(id); ok {
			return u.Cost()
		}
		return 1
	}
}
