// Package steps implements the ten named migration-step label values:
// start-mgmt, await-mgmt, start-app, await-app, start-worker,
// await-worker, start-beat, await-beat, migrate-service, cleanup.
package steps

import (
	"context"

	"github.com/thismatters/django-operator/internal/pipeline"
)

// StartMgmt ensures redis, then — iff the Django always runs migrations
// or its recorded migrationVersion doesn't match the in-flight
// spec.version — starts the management-command pod.
type StartMgmt struct{}

func (StartMgmt) Name() string { return "start-mgmt" }

func (StartMgmt) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	redisInv, err := pctx.Reconciler.EnsureRedis(ctx)
	if err != nil {
		return pipeline.Permanent(err)
	}

	if !pctx.Spec.AlwaysRunMigrations && pctx.MigrationVersion == pctx.Spec.Version {
		return pipeline.Return(map[string]any{"created": mergeCreated(redisInv)})
	}

	name, podInv, err := pctx.Reconciler.StartManageCommandsPod(ctx)
	if err != nil {
		return pipeline.Permanent(err)
	}
	return pipeline.Return(map[string]any{
		"mgmt_pod_name": name,
		"created":       mergeCreated(redisInv, podInv),
	})
}
