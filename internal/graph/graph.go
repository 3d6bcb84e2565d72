// Package graph builds the immutable dependency graph over generation units.
//
// A Graph is validated on construction: every dependency must be declared and
// the dependency relation must be acyclic. Once built it is safe for
// concurrent read access.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/docflow/internal/unit"
)

// CycleError reports a dependency cycle. Path starts and ends with the same
// unit, e.g. [a b a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// Graph holds forward (dependents) and backward (dependencies) adjacency.
type Graph struct {
	units map[string]unit.Unit
	order []string // declaration order
	index map[string]int

	dependencies map[string][]string
	dependents   map[string][]string

	topo []string
}

// Build constructs and validates a graph from units.
func Build(units []unit.Unit) (*Graph, error) {
	g := &Graph{
		units:        make(map[string]unit.Unit, len(units)),
		order:        make([]string, 0, len(units)),
		index:        make(map[string]int, len(units)),
		dependencies: make(map[string][]string, len(units)),
		dependents:   make(map[string][]string, len(units)),
	}

	for _, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("unit ID is required")
		}
		if _, exists := g.units[u.ID]; exists {
			return nil, fmt.Errorf("duplicate unit ID %q", u.ID)
		}
		g.units[u.ID] = u
		g.index[u.ID] = len(g.order)
		g.order = append(g.order, u.ID)
	}

	for _, id := range g.order {
		seen := make(map[string]bool)
		for _, dep := range g.units[id].Dependencies {
			if _, ok := g.units[dep]; !ok {
				return nil, fmt.Errorf("unit %s depends on unknown unit %s", id, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.dependencies[id] = append(g.dependencies[id], dep)
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}

	g.topo = g.kahn()
	return g, nil
}

// BuildRegistry is a convenience wrapper around Build.
func BuildRegistry(r *unit.Registry) (*Graph, error) {
	return Build(r.Units)
}

// detectCycle runs a depth-first traversal with an in-progress marker per node.
// Re-entering an in-progress node closes a cycle; the reported path is the
// stack from that node back to itself.
func (g *Graph) detectCycle() error {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = inProgress
		stack = append(stack, id)

		for _, dep := range g.dependencies[id] {
			switch state[dep] {
			case inProgress:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), dep)
				return &CycleError{Path: path}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// kahn computes the topological order, breaking ties by declaration order.
func (g *Graph) kahn() []string {
	indeg := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indeg[id] = len(g.dependencies[id])
	}

	// ready is kept sorted by declaration index
	var ready []int
	for _, id := range g.order {
		if indeg[id] == 0 {
			ready = append(ready, g.index[id])
		}
	}

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		next := g.order[ready[0]]
		ready = ready[1:]
		out = append(out, next)

		for _, dep := range g.dependents[next] {
			indeg[dep]--
			if indeg[dep] == 0 {
				i := g.index[dep]
				pos := sort.SearchInts(ready, i)
				ready = append(ready, 0)
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = i
			}
		}
	}
	return out
}

// TopologicalOrder returns unit ids such that every dependency precedes its
// dependents. Ties are broken by declaration order.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.topo...)
}

// DirectDependencies returns the units id depends on, in declaration order.
func (g *Graph) DirectDependencies(id string) []string {
	return append([]string(nil), g.dependencies[id]...)
}

// DirectDependents returns the units that depend on id.
func (g *Graph) DirectDependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Descendants returns every unit transitively depending on id, sorted.
func (g *Graph) Descendants(id string) []string {
	return g.reach(id, g.dependents)
}

// Ancestors returns every unit id transitively depends on, sorted.
func (g *Graph) Ancestors(id string) []string {
	return g.reach(id, g.dependencies)
}

func (g *Graph) reach(id string, adj map[string][]string) []string {
	visited := map[string]bool{id: true}
	queue := append([]string(nil), adj[id]...)
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, cur)
		queue = append(queue, adj[cur]...)
	}
	sort.Strings(out)
	return out
}

// Has reports whether id is part of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.units[id]
	return ok
}

// Unit returns the unit declared under id.
func (g *Graph) Unit(id string) (unit.Unit, bool) {
	u, ok := g.units[id]
	return u, ok
}

// IDs returns unit ids in declaration order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Len returns the number of units.
func (g *Graph) Len() int {
	return len(g.order)
}

// Costs returns the planning estimate of every unit.
func (g *Graph) Costs() map[string]float64 {
	costs := make(map[string]float64, len(g.order))
	for id, u := range g.units {
		costs[id] = u.Cost()
	}
	return costs
}
