// Package unit defines generation units and the registry they are declared in.
package unit

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// DefaultCost is applied when a registry entry omits its estimate.
const DefaultCost = 1.0

var (
	// idPattern allows letters, digits, dots, underscores and hyphens, starting with a letter or digit
	idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

	maxIDLength = 100
)

// Unit is one schedulable item of work: a document to generate or an agent task to run.
type Unit struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Kind names the artifact kind this unit produces. It links the unit to
	// resume detection, which reports staleness per kind.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	Dependencies  []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	EstimatedCost float64  `json:"cost,omitempty" yaml:"cost,omitempty"`

	// Command is run by the shell executor. Other executors ignore it.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
}

// ValidateID checks that id is usable as a unit identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("unit ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("unit ID %q exceeds maximum length of %d characters", id, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("unit ID %q must start with a letter or digit and contain only letters, digits, '.', '_' and '-'", id)
	}
	return nil
}

// Validate checks the unit in isolation. Dependency existence is checked by the registry.
func (u *Unit) Validate() error {
	if err := ValidateID(u.ID); err != nil {
		return err
	}
	if u.EstimatedCost < 0 || math.IsNaN(u.EstimatedCost) || math.IsInf(u.EstimatedCost, 0) {
		return fmt.Errorf("unit %s: cost must be a finite positive number, got %g", u.ID, u.EstimatedCost)
	}
	for i, dep := range u.Dependencies {
		if err := ValidateID(dep); err != nil {
			return fmt.Errorf("unit %s: dependency at index %d: %w", u.ID, i, err)
		}
	}
	return nil
}

// Cost returns the planning estimate, defaulting unset costs.
func (u Unit) Cost() float64 {
	if u.EstimatedCost <= 0 {
		return DefaultCost
	}
	return u.EstimatedCost
}

// normalize drops duplicate dependencies while keeping declaration order.
func (u *Unit) normalize() {
	if len(u.Dependencies) == 0 {
		return
	}
	seen := make(map[string]bool, len(u.Dependencies))
	deps := make([]string, 0, len(u.Dependencies))
	for _, d := range u.Dependencies {
		d = strings.TrimSpace(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		deps = append(deps, d)
	}
	u.Dependencies = deps
}
