package cmd

import (
	"errors"

	derrors "github.com/felixgeelhaar/docflow/internal/errors"
	"github.com/felixgeelhaar/docflow/internal/exitcode"
	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/planner"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

// FromDomain attaches an error code and recovery suggestions to the typed
// errors returned by the core packages. Errors that already carry a code or
// an explicit exit code are returned unchanged.
func FromDomain(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := derrors.CodeOf(err); ok {
		return err
	}
	var ec *exitcode.Error
	if errors.As(err, &ec) {
		return err
	}

	var (
		cycle      *graph.CycleError
		deadlock   *planner.PlanningError
		transition *status.TransitionError
	)
	switch {
	case errors.As(err, &cycle):
		return derrors.NewCycleError(err)
	case errors.As(err, &deadlock):
		return derrors.NewDeadlockError(err)
	case errors.As(err, &transition):
		return derrors.NewTransitionError(err)
	}
	return ux.EnhanceError(err)
}
