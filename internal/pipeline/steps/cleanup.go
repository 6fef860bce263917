package steps

import (
	"context"

	"github.com/thismatters/django-operator/internal/pipeline"
)

// Cleanup assembles the expected inventory (the seven standing
// resources plus any enabled autoscalers), compares it against what the
// earlier steps actually accumulated, and either commits (deleting the
// three retired blues) or rolls back (deleting the greens that were
// never confirmed and the still-lingering management pod, which
// AwaitMgmt only cleans up on its own success path).
type Cleanup struct{}

func (Cleanup) Name() string { return "cleanup" }

var cleanupPurposes = []string{"app", "worker", "beat"}

func (Cleanup) Handle(ctx context.Context, pctx *pipeline.Context) pipeline.Outcome {
	created, _ := pctx.GetOr("created", map[string]any{}).(map[string]any)
	complete := isComplete(pctx, created)

	patch := map[string]any{}

	if complete {
		patch["status:created"] = created
		for _, purpose := range cleanupPurposes {
			blue := pctx.GetString("blue_" + purpose)
			if blue != "" {
				if err := pctx.Reconciler.DeleteDeployment(ctx, purpose, blue); err != nil {
					return pipeline.Permanent(err)
				}
			}
		}
	} else {
		for _, purpose := range cleanupPurposes {
			blue := pctx.GetString("blue_" + purpose)
			green := pctx.Reconciler.GreenName(purpose)
			if green == blue {
				continue
			}
			if err := pctx.Reconciler.DeleteDeployment(ctx, purpose, green); err != nil {
				return pipeline.Permanent(err)
			}
		}
		if err := pctx.Reconciler.CleanManageCommands(ctx); err != nil {
			return pipeline.Permanent(err)
		}
	}

	patch["migration_complete"] = complete
	return pipeline.Return(patch)
}

// isComplete checks that every one of the seven standing resources, plus
// every autoscaler enabled on the spec, resolved to a recorded name.
func isComplete(pctx *pipeline.Context, created map[string]any) bool {
	expected := map[string][]string{
		"deployment": {"app", "worker", "beat", "redis"},
		"service":    {"app", "redis"},
		"ingress":    {"app"},
	}
	var autoscalers []string
	for purpose, as := range pctx.Spec.Autoscalers {
		if as.Enabled {
			autoscalers = append(autoscalers, purpose)
		}
	}
	if len(autoscalers) > 0 {
		expected["horizontalpodautoscaler"] = autoscalers
	}

	for kind, purposes := range expected {
		byPurpose, ok := created[kind].(map[string]any)
		if !ok {
			return false
		}
		for _, purpose := range purposes {
			name, ok := byPurpose[purpose].(string)
			if !ok || name == "" {
				return false
			}
		}
	}
	return true
}
