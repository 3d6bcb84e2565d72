package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/planner"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the execution plan for the current status",
		Long: `Compute the batches that would run next, the critical path and the remaining
duration from the persisted unit status. Nothing is executed.

Succeeded units are done. Failed and blocked units, and everything that
depends on them, are listed as excluded until they are retried.

Examples:
  docflow plan
  docflow plan --format json`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}
}

func runPlan(cmd *cobra.Command, _ []string) (err error) {
	p, err := openProject(cmd, withStore)
	if err != nil {
		return err
	}
	defer func() { p.Close(err) }()

	snap := p.Store.Snapshot()
	plan, err := planner.Plan(p.Graph, p.Graph.Costs(), snap)
	if err != nil {
		return err
	}
	return p.Print(planner.NewReport(p.Graph, snap, plan))
}
