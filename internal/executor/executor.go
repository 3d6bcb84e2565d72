// Package executor provides the work callbacks a runner invokes per unit.
// The runner only looks at the returned error: nil means the unit
// succeeded, anything else means it failed.
package executor

import (
	"context"

	"github.com/felixgeelhaar/docflow/internal/unit"
)

// Executor performs the actual work of one unit.
type Executor interface {
	Execute(ctx context.Context, u unit.Unit) error
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, u unit.Unit) error

// Execute calls f.
func (f Func) Execute(ctx context.Context, u unit.Unit) error {
	return f(ctx, u)
}

// Noop succeeds immediately unless ctx is already done. Used for dry runs.
type Noop struct{}

// Execute implements Executor.
func (Noop) Execute(ctx context.Context, _ unit.Unit) error {
	return ctx.Err()
}

var (
	_ Executor = Func(nil)
	_ Executor = Noop{}
	_ Executor = (*Shell)(nil)
)
