package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/progress"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

func newHistoryCmd() *cobra.Command {
	var (
		unitID string
		runID  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded status transitions",
		Long: `Print the audit log of committed transitions, oldest first.

Examples:
  docflow history --unit design-doc
  docflow history --limit 20 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			p, err := openProject(cmd, withStore)
			if err != nil {
				return err
			}
			defer func() { p.Close(err) }()

			events, err := status.ReadAudit(p.Store.AuditPath())
			if err != nil {
				return err
			}
			return p.Print(&History{Events: filterEvents(events, unitID, runID, limit)})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "only show transitions of this unit")
	cmd.Flags().StringVar(&runID, "run", "", "only show transitions of this run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last n transitions")
	return cmd
}

// History is the output of docflow history.
type History struct {
	Events []status.Event `json:"events" yaml:"events"`
}

func (h *History) RenderText(w io.Writer) error {
	if len(h.Events) == 0 {
		_, err := io.WriteString(w, "No transitions recorded.\n")
		return err
	}
	tbl := &ux.Table{Headers: []string{"TIME", "UNIT", "TRANSITION", "RUN", "DETAIL"}}
	for _, ev := range h.Events {
		detail := ev.Reason
		if ev.Error != "" {
			detail = ev.Error
		}
		run := ev.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		tbl.AddRow(
			ux.Muted(ev.At.Local().Format("2006-01-02 15:04:05")),
			ev.Unit,
			ev.From.String()+" → "+progress.Symbol(ev.To)+" "+ev.To.String(),
			run,
			detail,
		)
	}
	return tbl.RenderText(w)
}

func filterEvents(events []status.Event, unitID, runID string, limit int) []status.Event {
	out := make([]status.Event, 0, len(events))
	for _, ev := range events {
		if unitID != "" && ev.Unit != unitID {
			continue
		}
		if runID != "" && ev.RunID != runID {
			continue
		}
		out = append(out, ev)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
