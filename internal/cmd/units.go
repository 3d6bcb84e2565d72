package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/runner"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

// ChangeResult lists the units a command moved.
type ChangeResult struct {
	Action string   `json:"action" yaml:"action"`
	Units  []string `json:"units" yaml:"units"`
	// Blocked lists dependents blocked as a consequence.
	Blocked []string `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

func (r *ChangeResult) String() string {
	if len(r.Units) == 0 {
		return fmt.Sprintf("Nothing to %s.", r.Action)
	}
	msg := fmt.Sprintf("%s %d unit(s): %s", strings.ToUpper(r.Action[:1])+r.Action[1:], len(r.Units), joinIDs(r.Units))
	if len(r.Blocked) > 0 {
		msg += fmt.Sprintf("\nBlocked %d dependent(s): %s", len(r.Blocked), joinIDs(r.Blocked))
	}
	return msg
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}

func newResetCmd() *cobra.Command {
	var (
		all         bool
		yes         bool
		descendants bool
	)
	cmd := &cobra.Command{
		Use:   "reset [unit...]",
		Short: "Move units back to not started",
		Long: `Reset the given units so the next run executes them again. Running units
cannot be reset; reconcile them first.

With --descendants every unit depending on a reset unit is reset as well,
which is what a regenerated upstream document usually calls for.

Examples:
  docflow reset design-doc
  docflow reset srs --descendants
  docflow reset --all --yes`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if all == (len(args) > 0) {
				return fmt.Errorf("required: either unit ids or --all")
			}
			p, err := openProject(cmd, withStore)
			if err != nil {
				return err
			}
			defer func() { p.Close(err) }()

			ids := args
			if all {
				if !yes && !ux.Confirm(cmd.InOrStdin(), p.Err, "Reset all units?", false) {
					return p.Print(&ChangeResult{Action: "reset"})
				}
				ids = p.Graph.TopologicalOrder()
			}
			reset, err := resetUnits(p, ids, descendants)
			if err != nil {
				return err
			}
			return p.Print(&ChangeResult{Action: "reset", Units: reset})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every unit")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&descendants, "descendants", false, "also reset every dependent unit")
	return cmd
}

func resetUnits(p *project, ids []string, descendants bool) ([]string, error) {
	targets := make(map[string]bool)
	for _, id := range ids {
		if !p.Graph.Has(id) {
			return nil, &status.TransitionError{Unit: id, To: status.NotStarted, Unknown: true}
		}
		targets[id] = true
		if descendants {
			for _, d := range p.Graph.Descendants(id) {
				targets[d] = true
			}
		}
	}

	var reset []string
	for _, id := range p.Graph.TopologicalOrder() {
		if !targets[id] {
			continue
		}
		us, _ := p.Store.Get(id)
		if us.State == status.NotStarted {
			continue
		}
		if err := p.Store.Reset(id, "manual reset"); err != nil {
			return reset, err
		}
		reset = append(reset, id)
	}
	p.Logger.Info("units reset", "units", reset)
	return reset, nil
}

func newRetryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [unit...]",
		Short: "Retry failed units",
		Long: `Move failed or blocked units back to not started, together with the units they
blocked, and increase their retry count. Nothing is retried automatically.

Examples:
  docflow retry design-doc
  docflow retry --all && docflow run`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if all == (len(args) > 0) {
				return fmt.Errorf("required: either unit ids or --all")
			}
			p, err := openProject(cmd, withStore)
			if err != nil {
				return err
			}
			defer func() { p.Close(err) }()

			ids := args
			if all {
				ids = runner.FailedUnits(p.Store.Snapshot())
			}
			reset, err := runner.Retry(p.Graph, p.Store, ids, p.Logger)
			if err != nil {
				return err
			}
			return p.Print(&ChangeResult{Action: "retry", Units: reset})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "retry every failed unit")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	var liveness time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fail units left running by a crashed process",
		Long: `Mark every unit that has been running longer than the liveness threshold as
failed and block the units waiting on it. docflow run does this automatically;
use this command after killing a run when you do not want to wait for the
threshold.

Examples:
  docflow reconcile
  docflow reconcile --liveness 0s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			p, err := openProject(cmd, withStore)
			if err != nil {
				return err
			}
			defer func() { p.Close(err) }()

			threshold := time.Duration(p.Config.Liveness)
			if cmd.Flags().Changed("liveness") {
				threshold = liveness
			}
			rec, err := runner.Reconcile(p.Graph, p.Store, threshold, p.Logger)
			if err != nil {
				return err
			}
			if len(rec.Failed) > 0 && p.Text() {
				fmt.Fprintln(p.Err, "Run 'docflow retry --all' to run them again.")
			}
			return p.Print(&ChangeResult{Action: "reconcile", Units: rec.Failed, Blocked: rec.Blocked})
		},
	}
	cmd.Flags().DurationVar(&liveness, "liveness", 0, "running time after which a unit is assumed crashed (default from config)")
	return cmd
}

