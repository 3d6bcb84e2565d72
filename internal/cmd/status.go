package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/planner"
	"github.com/felixgeelhaar/docflow/internal/progress"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted status of every unit",
		Long: `Display the lifecycle state, retry count and last error of every unit, in
topological order, together with the units that could start right now.

Examples:
  docflow status
  docflow status --format yaml`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// UnitRow is one unit in the status report.
type UnitRow struct {
	ID         string       `json:"id" yaml:"id"`
	Kind       string       `json:"kind,omitempty" yaml:"kind,omitempty"`
	State      status.State `json:"state" yaml:"state"`
	RetryCount int          `json:"retry_count" yaml:"retry_count"`
	UpdatedAt  *time.Time   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	LastError  string       `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// StatusReport is the output of docflow status.
type StatusReport struct {
	Registry string         `json:"registry" yaml:"registry"`
	Counts   map[string]int `json:"counts" yaml:"counts"`
	Ready    []string       `json:"ready" yaml:"ready"`
	Units    []UnitRow      `json:"units" yaml:"units"`
}

func (r *StatusReport) RenderText(w io.Writer) error {
	tbl := &ux.Table{Headers: []string{"", "UNIT", "STATE", "RETRIES", "UPDATED", "ERROR"}}
	for _, u := range r.Units {
		updated := "-"
		if u.UpdatedAt != nil {
			updated = u.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		tbl.AddRow(progress.Symbol(u.State), u.ID, u.State.String(), fmt.Sprint(u.RetryCount), ux.Muted(updated), u.LastError)
	}
	if err := tbl.RenderText(w); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d units: %d succeeded, %d failed, %d blocked, %d running, %d pending\n",
		len(r.Units), r.Counts[status.Succeeded.String()], r.Counts[status.Failed.String()],
		r.Counts[status.Blocked.String()], r.Counts[status.Running.String()],
		r.Counts[status.NotStarted.String()]+r.Counts[status.Ready.String()])
	if err != nil {
		return err
	}
	if len(r.Ready) > 0 {
		_, err = fmt.Fprintf(w, "Ready to start: %s\n", joinIDs(r.Ready))
	}
	return err
}

func runStatus(cmd *cobra.Command, _ []string) (err error) {
	p, err := openProject(cmd, withStore)
	if err != nil {
		return err
	}
	defer func() { p.Close(err) }()

	return p.Print(buildStatusReport(p))
}

func buildStatusReport(p *project) *StatusReport {
	snap := p.Store.Snapshot()
	report := &StatusReport{
		Registry: p.Config.Registry,
		Counts:   make(map[string]int),
		Ready:    planner.ReadySet(p.Graph, snap),
	}
	for st, n := range snap.Counts() {
		report.Counts[st.String()] = n
	}
	for _, id := range p.Graph.TopologicalOrder() {
		us, _ := snap.Get(id)
		u, _ := p.Graph.Unit(id)
		row := UnitRow{
			ID:         id,
			Kind:       u.Kind,
			State:      us.State,
			RetryCount: us.RetryCount,
			LastError:  us.LastError,
		}
		if !us.UpdatedAt.IsZero() {
			t := us.UpdatedAt
			row.UpdatedAt = &t
		}
		report.Units = append(report.Units, row)
	}
	return report
}
