package steps

import (
	"context"
	"time"

	"github.com/thismatters/django-operator/internal/pipeline"
)

// awaitResource waits for purpose's green Deployment to report
// Available; it deletes nothing (blues are retired by start-<purpose> or
// by cleanup). Green is read from the per-run pipeline context
// (created.deployment.<purpose>), the name start-<purpose> itself just
// wrote there — status.created isn't committed until cleanup, so
// reading it mid-run would never see the green name a migration just
// created.
type awaitResource struct {
	purpose string
}

func awaitApp() pipeline.Step    { return awaitResource{purpose: "app"} }
func awaitWorker() pipeline.Step { return awaitResource{purpose: "worker"} }
func awaitBeat() pipeline.Step   { return awaitResource{purpose: "beat"} }

func (s awaitResource) Name() string { return "await-" + s.purpose }

func (s awaitResource) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	iterations, period := pipeline.Timeout(pctx, 60, 5*time.Second)
	return pipeline.Await(ctx, pctx, func(ctx context.Context, pctx *pipeline.Context) (bool, error) {
		green := pctx.GetString("created.deployment." + s.purpose)
		if green == "" {
			green = pctx.Reconciler.GreenName(s.purpose)
		}
		if green == "" {
			return false, nil
		}
		return pctx.Reconciler.DeploymentReachedCondition(ctx, green, "Available")
	}, iterations, period)
}
