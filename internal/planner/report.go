package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/status"
)

// UnitReport is one row of the planning report.
type UnitReport struct {
	ID         string       `json:"id" yaml:"id"`
	Title      string       `json:"title,omitempty" yaml:"title,omitempty"`
	State      status.State `json:"state" yaml:"state"`
	Batch      int          `json:"batch" yaml:"batch"`
	Cost       float64      `json:"cost" yaml:"cost"`
	Slack      float64      `json:"slack" yaml:"slack"`
	Critical   bool         `json:"critical" yaml:"critical"`
	RetryCount int          `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	LastError  string       `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Report is the operator-facing view of a plan.
type Report struct {
	GeneratedAt       time.Time      `json:"generated_at" yaml:"generated_at"`
	Units             []UnitReport   `json:"units" yaml:"units"`
	Batches           [][]string     `json:"batches" yaml:"batches"`
	CriticalPath      []string       `json:"critical_path" yaml:"critical_path"`
	TotalDuration     float64        `json:"total_duration" yaml:"total_duration"`
	RemainingDuration float64        `json:"remaining_duration" yaml:"remaining_duration"`
	Excluded          []string       `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Counts            map[string]int `json:"counts" yaml:"counts"`
}

// NewReport builds a report. Units are listed in topological order.
func NewReport(g *graph.Graph, snap status.Snapshot, p *ExecutionPlan) *Report {
	r := &Report{
		GeneratedAt:       snap.TakenAt(),
		Batches:           p.BatchIDs(),
		CriticalPath:      append([]string(nil), p.CriticalPath...),
		TotalDuration:     p.TotalDuration,
		RemainingDuration: p.RemainingDuration,
		Excluded:          append([]string(nil), p.Excluded...),
		Counts:            make(map[string]int),
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}

	onPath := make(map[string]bool, len(p.CriticalPath))
	for _, id := range p.CriticalPath {
		onPath[id] = true
	}

	for _, id := range g.TopologicalOrder() {
		u, _ := g.Unit(id)
		us, _ := snap.Get(id)
		row := UnitReport{
			ID:         id,
			Title:      u.Title,
			State:      snap.State(id),
			Batch:      -1,
			Cost:       u.Cost(),
			Critical:   onPath[id],
			RetryCount: us.RetryCount,
			LastError:  us.LastError,
		}
		if s, ok := p.Schedule[id]; ok {
			row.Batch = s.Batch
			row.Slack = s.Slack
		}
		r.Units = append(r.Units, row)
		r.Counts[row.State.String()]++
	}
	return r
}

var (
	reportTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	reportLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	reportValue    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	reportCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func stateStyle(s status.State) lipgloss.Style {
	color := "7"
	switch s {
	case status.Succeeded:
		color = "2"
	case status.Failed:
		color = "1"
	case status.Blocked:
		color = "3"
	case status.Running, status.Ready:
		color = "12"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// String renders the report for a terminal.
func (r *Report) String() string {
	var b strings.Builder

	b.WriteString(reportTitle.Render("Execution Plan"))
	b.WriteString("\n\n")

	states := make([]string, 0, len(r.Counts))
	for s := range r.Counts {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s=%d", s, r.Counts[s]))
	}
	fmt.Fprintf(&b, "%s %s\n", reportLabel.Render("Units:"), reportValue.Render(fmt.Sprintf("%d (%s)", len(r.Units), strings.Join(parts, " "))))
	fmt.Fprintf(&b, "%s %s\n", reportLabel.Render("Total duration:"), reportValue.Render(formatCost(r.TotalDuration)))
	fmt.Fprintf(&b, "%s %s\n", reportLabel.Render("Remaining:"), reportValue.Render(formatCost(r.RemainingDuration)))
	if len(r.CriticalPath) > 0 {
		fmt.Fprintf(&b, "%s %s\n", reportLabel.Render("Critical path:"), reportCritical.Render(strings.Join(r.CriticalPath, " → ")))
	}
	b.WriteString("\n")

	if len(r.Batches) == 0 {
		b.WriteString(reportLabel.Render("Nothing to run."))
		b.WriteString("\n")
	}
	for i, batch := range r.Batches {
		fmt.Fprintf(&b, "%s %s\n", reportLabel.Render(fmt.Sprintf("Batch %d:", i+1)), strings.Join(batch, ", "))
	}

	if len(r.Excluded) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s\n", reportLabel.Render("Excluded:"), stateStyle(status.Blocked).Render(strings.Join(r.Excluded, ", ")))
	}

	b.WriteString("\n")
	for _, u := range r.Units {
		marker := " "
		if u.Critical {
			marker = reportCritical.Render("*")
		}
		batch := "-"
		if u.Batch >= 0 {
			batch = fmt.Sprintf("%d", u.Batch+1)
		}
		line := fmt.Sprintf("%s %-24s %-12s batch %-3s cost %-6s slack %s",
			marker, u.ID, stateStyle(u.State).Render(u.State.String()), batch, formatCost(u.Cost), formatCost(u.Slack))
		if u.LastError != "" {
			line += "  " + stateStyle(status.Failed).Render(u.LastError)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func formatCost(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
