package steps

import (
	"context"
	"fmt"

	"github.com/thismatters/django-operator/internal/pipeline"
)

// MigrateService repoints the app Service's selector at the green app
// Deployment and ensures the Ingress, then records the now-live version.
type MigrateService struct{}

func (MigrateService) Name() string { return "migrate-service" }

func (MigrateService) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	green := pctx.Reconciler.GreenName("app")

	inv, err := pctx.Reconciler.MigrateService(ctx, green)
	if err != nil {
		return pipeline.Permanent(fmt.Errorf("migrating service: %w", err))
	}

	return pipeline.Return(map[string]any{
		"created":        mergeCreated(inv),
		"status:version": pctx.Spec.Version,
	})
}
