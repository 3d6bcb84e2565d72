package planner

import (
	"math"

	"github.com/felixgeelhaar/docflow/internal/graph"
)

const epsilon = 1e-9

// criticalPath runs the longest-path DP over the topological order,
// restricted to units for which include returns true. Ties at the end unit
// and while walking back go to the smallest id.
func criticalPath(g *graph.Graph, cost func(string) float64, include func(string) bool) ([]string, float64) {
	finish := make(map[string]float64)
	prev := make(map[string]string)

	for _, id := range g.TopologicalOrder() {
		if !include(id) {
			continue
		}
		best := 0.0
		bestDep := ""
		for _, dep := range g.DirectDependencies(id) {
			f, ok := finish[dep]
			if !ok {
				continue
			}
			if bestDep == "" || f > best+epsilon || (math.Abs(f-best) <= epsilon && dep < bestDep) {
				best = f
				bestDep = dep
			}
		}
		finish[id] = best + cost(id)
		prev[id] = bestDep
	}

	end := ""
	total := 0.0
	for id, f := range finish {
		if end == "" || f > total+epsilon || (math.Abs(f-total) <= epsilon && id < end) {
			end = id
			total = f
		}
	}
	if end == "" {
		return nil, 0
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total
}

// schedule computes earliest and latest start/finish for every unit with a
// forward pass over the topological order and a backward pass against
// projectEnd.
func schedule(g *graph.Graph, cost func(string) float64, projectEnd float64) map[string]*UnitSchedule {
	order := g.TopologicalOrder()
	out := make(map[string]*UnitSchedule, len(order))

	for _, id := range order {
		s := &UnitSchedule{ID: id}
		for _, dep := range g.DirectDependencies(id) {
			if ef := out[dep].EF; ef > s.ES {
				s.ES = ef
			}
		}
		s.EF = s.ES + cost(id)
		out[id] = s
	}

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		s := out[id]
		s.LF = projectEnd
		for _, dep := range g.DirectDependents(id) {
			if ls := out[dep].LS; ls < s.LF {
				s.LF = ls
			}
		}
		s.LS = s.LF - cost(id)
		s.Slack = s.LS - s.ES
		if math.Abs(s.Slack) <= epsilon {
			s.Slack = 0
			s.IsCritical = true
		}
	}
	return out
}
