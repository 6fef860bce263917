package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Step is a stateless object over the persisted pipeline context with a
// single entry point. It returns the one outcome that happened this
// call; it never edits status directly.
type Step interface {
	Name() string
	Handle(ctx context.Context, pctx *Context) Outcome
}

// ReadyFunc reports whether a waiting step's condition has been met.
type ReadyFunc func(ctx context.Context, pctx *Context) (bool, error)

// Await implements the waiting-step contract shared by every polling
// step (await-mgmt, await-app, await-worker, await-beat): not ready and
// under the iteration cap reschedules after period; not ready at the
// cap degrades permanently; ready returns an empty patch so the engine
// advances to the next step.
func Await(ctx context.Context, pctx *Context, isReady ReadyFunc, maxIterations int, period time.Duration) Outcome {
	ready, err := isReady(ctx, pctx)
	if err != nil {
		return Permanent(err)
	}
	if ready {
		return Return(nil)
	}
	if pctx.Retry >= maxIterations {
		return Permanent(fmt.Errorf("exceeded %d iterations waiting to become ready", maxIterations))
	}
	return Temporary(period)
}

// Timeout resolves a waiting step's (iterations, period) pair from the
// spec's initManageTimeouts, falling back to defaults when unset —
// spec.md's "step-specific overrides" hook, generalized to every
// waiting step rather than just the management-command one.
func Timeout(pctx *Context, defaultIterations int, defaultPeriod time.Duration) (int, time.Duration) {
	iterations := pctx.Spec.InitManageTimeouts.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	period := defaultPeriod
	if pctx.Spec.InitManageTimeouts.Period > 0 {
		period = time.Duration(pctx.Spec.InitManageTimeouts.Period) * time.Second
	}
	return iterations, period
}
