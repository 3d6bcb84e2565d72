package runner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/status"
)

// Reconciliation lists the units Reconcile moved.
type Reconciliation struct {
	Failed  []string `json:"failed" yaml:"failed"`
	Blocked []string `json:"blocked" yaml:"blocked"`
}

// Reconcile fails every unit left Running longer than liveness and blocks
// the pending units depending on them, so no unit is left waiting on a
// failed dependency. The result is returned even when Reconcile fails.
func Reconcile(g *graph.Graph, store *status.Store, liveness time.Duration, logger *log.Logger) (*Reconciliation, error) {
	logger = log.OrDefault(logger).With("component", "runner")

	res := &Reconciliation{}
	failed, err := store.Reconcile(liveness)
	res.Failed = failed
	if err != nil {
		return res, fmt.Errorf("reconcile: %w", err)
	}

	for _, id := range failed {
		blocked, err := blockDependents(g, store, id)
		res.Blocked = append(res.Blocked, blocked...)
		if err != nil {
			return res, err
		}
	}
	sort.Strings(res.Blocked)

	if len(failed) > 0 {
		logger.Warn("failed units left running by a previous run",
			"units", failed, "blocked", res.Blocked, "liveness", liveness)
	}
	return res, nil
}

// blockDependents moves every pending transitive dependent of id to Blocked
// and returns the ids it moved.
func blockDependents(g *graph.Graph, store *status.Store, id string) ([]string, error) {
	var blocked []string
	for _, d := range g.Descendants(id) {
		us, _ := store.Get(d)
		if us.State != status.NotStarted && us.State != status.Ready {
			continue
		}
		_, err := store.Transition(d, status.Blocked, status.Meta{Reason: fmt.Sprintf("dependency %s failed", id)})
		if err != nil {
			var te *status.TransitionError
			if errors.As(err, &te) && te.From == status.Blocked {
				continue
			}
			return blocked, err
		}
		blocked = append(blocked, d)
	}
	return blocked, nil
}
