package steps

import (
	"context"
	"fmt"

	"github.com/thismatters/django-operator/internal/pipeline"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

// startResource renders and ensures the green Deployment for purpose.
// app defers deleting its blue until migrate-service has cut the
// Service over; worker and beat have no shared traffic gate, so their
// blue is retired as soon as the green exists.
type startResource struct {
	purpose    string
	skipDelete bool
}

func startApp() pipeline.Step    { return startResource{purpose: "app", skipDelete: true} }
func startWorker() pipeline.Step { return startResource{purpose: "worker"} }
func startBeat() pipeline.Step   { return startResource{purpose: "beat"} }

func (s startResource) Name() string { return "start-" + s.purpose }

func (s startResource) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	existing, former := pctx.Reconciler.ResourceNames(resourceservice.KindDeployment, s.purpose)
	green := existing
	if green == "" {
		green = pctx.Reconciler.GreenName(s.purpose)
	}
	if former == green {
		former = ""
	}

	inv, err := pctx.Reconciler.MigrateResource(ctx, s.purpose, s.skipDelete)
	if err != nil {
		return pipeline.Permanent(fmt.Errorf("starting %s: %w", s.purpose, err))
	}

	patch := map[string]any{"created": mergeCreated(inv)}
	patch["blue_"+s.purpose] = former
	return pipeline.Return(patch)
}
