package runner

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/resume"
	"github.com/felixgeelhaar/docflow/internal/status"
)

// ResetStale moves every Succeeded unit producing a stale kind back to
// NotStarted, together with its Succeeded dependents, so the next Run
// regenerates them. It returns the reset ids, sorted.
func ResetStale(g *graph.Graph, store *status.Store, report *resume.Report, logger *log.Logger) ([]string, error) {
	logger = log.OrDefault(logger).With("component", "runner")

	stale := make(map[string]bool)
	for _, k := range report.StaleKinds() {
		stale[k] = true
	}
	if len(stale) == 0 {
		return nil, nil
	}

	targets := make(map[string]bool)
	for _, id := range g.IDs() {
		u, _ := g.Unit(id)
		if u.Kind == "" || !stale[u.Kind] {
			continue
		}
		targets[id] = true
		for _, d := range g.Descendants(id) {
			targets[d] = true
		}
	}

	var reset []string
	for _, id := range g.TopologicalOrder() {
		if !targets[id] {
			continue
		}
		us, _ := store.Get(id)
		if us.State != status.Succeeded {
			continue
		}
		u, _ := g.Unit(id)
		reason := "stale artifacts"
		if u.Kind != "" && stale[u.Kind] {
			reason = fmt.Sprintf("stale artifacts: %s", u.Kind)
		}
		if err := store.Reset(id, reason); err != nil {
			return reset, err
		}
		reset = append(reset, id)
	}
	sort.Strings(reset)
	if len(reset) > 0 {
		logger.Info("reset units with stale artifacts", "units", reset, "kinds", report.StaleKinds())
	}
	return reset, nil
}

// Retry moves the given Failed or Blocked units back to NotStarted, plus
// every Blocked unit depending on them. Units already NotStarted are skipped;
// any other state is an error. It returns the reset ids, sorted.
func Retry(g *graph.Graph, store *status.Store, ids []string, logger *log.Logger) ([]string, error) {
	logger = log.OrDefault(logger).With("component", "runner")

	targets := make(map[string]bool)
	for _, id := range ids {
		if !g.Has(id) {
			return nil, fmt.Errorf("unknown unit %q", id)
		}
		us, _ := store.Get(id)
		switch us.State {
		case status.Failed, status.Blocked:
			targets[id] = true
		case status.NotStarted:
			continue
		default:
			return nil, fmt.Errorf("unit %s is %s; only failed or blocked units can be retried", id, us.State)
		}
		for _, d := range g.Descendants(id) {
			if st, _ := store.Get(d); st.State == status.Blocked {
				targets[d] = true
			}
		}
	}

	var reset []string
	for _, id := range g.TopologicalOrder() {
		if !targets[id] {
			continue
		}
		if err := store.Reset(id, "retry"); err != nil {
			return reset, err
		}
		reset = append(reset, id)
	}
	sort.Strings(reset)
	if len(reset) > 0 {
		logger.Info("units queued for retry", "units", reset)
	}
	return reset, nil
}

// FailedUnits returns every unit currently Failed, sorted.
func FailedUnits(snap status.Snapshot) []string {
	var out []string
	for _, id := range snap.IDs() {
		if snap.State(id) == status.Failed {
			out = append(out, id)
		}
	}
	return out
}
