package unit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Registry is the ordered set of declared units. Declaration order is the
// tie-breaker for topological ordering.
type Registry struct {
	Units []Unit `json:"units" yaml:"units"`
}

// NewRegistry builds a registry from units and validates it.
func NewRegistry(units ...Unit) (*Registry, error) {
	r := &Registry{Units: append([]Unit(nil), units...)}
	for i := range r.Units {
		r.Units[i].normalize()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks ids, duplicates and that every dependency is declared.
// Cycles are detected when the dependency graph is built.
func (r *Registry) Validate() error {
	if len(r.Units) == 0 {
		return fmt.Errorf("registry must declare at least one unit")
	}

	ids := make(map[string]bool, len(r.Units))
	for i := range r.Units {
		u := &r.Units[i]
		if err := u.Validate(); err != nil {
			return fmt.Errorf("unit at index %d is invalid: %w", i, err)
		}
		if ids[u.ID] {
			return fmt.Errorf("duplicate unit ID %q at index %d", u.ID, i)
		}
		ids[u.ID] = true
	}

	for _, u := range r.Units {
		for _, dep := range u.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("unit %s depends on undeclared unit %s", u.ID, dep)
			}
		}
	}
	return nil
}

// Lookup returns the unit with the given id.
func (r *Registry) Lookup(id string) (Unit, bool) {
	for _, u := range r.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// IDs returns unit ids in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.Units))
	for i, u := range r.Units {
		ids[i] = u.ID
	}
	return ids
}

// Costs returns the planning estimate of every unit.
func (r *Registry) Costs() map[string]float64 {
	costs := make(map[string]float64, len(r.Units))
	for _, u := range r.Units {
		costs[u.ID] = u.Cost()
	}
	return costs
}

// ByKind returns the ids of units producing the given artifact kind.
func (r *Registry) ByKind(kind string) []string {
	var ids []string
	for _, u := range r.Units {
		if u.Kind == kind {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// Fingerprint returns a blake3 digest of the structural content of the
// registry (ids, dependencies, costs). Titles and commands do not contribute.
func (r *Registry) Fingerprint() string {
	type canonicalUnit struct {
		ID   string   `json:"id"`
		Deps []string `json:"deps"`
		Cost float64  `json:"cost"`
	}

	units := make([]canonicalUnit, 0, len(r.Units))
	for _, u := range r.Units {
		deps := append([]string{}, u.Dependencies...)
		sort.Strings(deps)
		units = append(units, canonicalUnit{ID: u.ID, Deps: deps, Cost: u.Cost()})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	// Marshal of plain structs and slices cannot fail.
	data, _ := json.Marshal(units)
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// hclRegistry mirrors Registry for HCL decoding:
//
//	unit "srs" {
//	  title      = "Software requirements"
//	  depends_on = ["prd"]
//	  cost       = 3
//	}
type hclRegistry struct {
	Units []hclUnit `hcl:"unit,block"`
}

type hclUnit struct {
	ID        string   `hcl:"id,label"`
	Title     string   `hcl:"title,optional"`
	Kind      string   `hcl:"kind,optional"`
	DependsOn []string `hcl:"depends_on,optional"`
	Cost      float64  `hcl:"cost,optional"`
	Command   string   `hcl:"command,optional"`
}

// LoadRegistry reads a registry from a YAML (.yaml/.yml), HCL (.hcl) or JSON
// (.json) file and validates it.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var units []Unit
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var r Registry
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal registry: %w", err)
		}
		units = r.Units
	case ".json":
		var r Registry
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal registry: %w", err)
		}
		units = r.Units
	case ".hcl":
		var r hclRegistry
		if err := hclsimple.Decode(path, data, nil, &r); err != nil {
			return nil, fmt.Errorf("decode registry: %w", err)
		}
		for _, hu := range r.Units {
			units = append(units, Unit{
				ID:            hu.ID,
				Title:         hu.Title,
				Kind:          hu.Kind,
				Dependencies:  hu.DependsOn,
				EstimatedCost: hu.Cost,
				Command:       hu.Command,
			})
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q (supported: .yaml, .yml, .hcl, .json)", filepath.Ext(path))
	}

	r, err := NewRegistry(units...)
	if err != nil {
		return nil, fmt.Errorf("validate registry: %w", err)
	}
	return r, nil
}
