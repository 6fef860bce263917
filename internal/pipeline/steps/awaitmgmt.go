package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/thismatters/django-operator/internal/pipeline"
)

// AwaitMgmt polls the management-command pod until it succeeds, then
// deletes it and records the new migrationVersion. Any phase other than
// succeeded or the known wait states (pending/running) is a permanent
// failure, including unknown — whether that's an explicit kubelet
// Unknown phase or a pod that can't be found/read at all.
type AwaitMgmt struct{}

func (AwaitMgmt) Name() string { return "await-mgmt" }

func (AwaitMgmt) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	podName := pctx.GetString("mgmt_pod_name")
	if podName == "" {
		// start-mgmt skipped the pod entirely: already at this version.
		return pipeline.Return(map[string]any{"status:migrationVersion": pctx.Spec.Version})
	}

	phase, err := pctx.Reconciler.PodPhase(ctx, podName)
	if err != nil {
		return pipeline.Permanent(err)
	}

	switch phase {
	case "succeeded":
		if err := pctx.Reconciler.CleanManageCommands(ctx); err != nil {
			return pipeline.Permanent(err)
		}
		return pipeline.Return(map[string]any{"status:migrationVersion": pctx.Spec.Version})
	case "failed", "unknown":
		return pipeline.Permanent(fmt.Errorf("management pod %s reported phase %q", podName, phase))
	}

	iterations, period := pipeline.Timeout(pctx, 60, 5*time.Second)
	if pctx.Retry >= iterations {
		return pipeline.Permanent(fmt.Errorf("management pod %s did not succeed after %d attempts", podName, iterations))
	}
	return pipeline.Temporary(period)
}
