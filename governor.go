package kgraph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Query governor: resource limits on query execution. Two protections:
// MaxResultRows bounds how many rows a single execution may materialize,
// and DefaultQueryTimeout supplies a deadline when the caller set none.
// The governor is immutable after Open.
// --------------------------------------------------------------------------

// ErrResultTooLarge is wrapped when a query materializes more rows than
// Options.MaxResultRows allows.
var ErrResultTooLarge = errors.New("result set exceeds row limit")

type governor struct {
	maxRows        int
	defaultTimeout time.Duration
}

func newGovernor(opts *Options) *governor {
	return &governor{
		maxRows:        opts.MaxResultRows,
		defaultTimeout: opts.DefaultQueryTimeout.std(),
	}
}

// limitCtx attaches the default deadline when the caller supplied none.
// The returned cancel must always be called.
func (g *governor) limitCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	if _, has := ctx.Deadline(); has {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.defaultTimeout)
}

// checkRows errors once an execution has accumulated more than the cap.
func (g *governor) checkRows(n int) error {
	if g.maxRows > 0 && n > g.maxRows {
		return fmt.Errorf("%w: %d rows, cap %d", ErrResultTooLarge, n, g.maxRows)
	}
	return nil
}
