package k8sclient

import (
	"context"
	"fmt"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/pipeline"
)

// ApplyResult commits a pipeline.HandleResult against namespace/name.
// ResetContext is honored as the documented null-then-set pair of PATCH
// calls; a non-empty Label is written together with StatusPatch in one
// status-then-labels round trip so a watcher woken by the label change
// always observes the step's merged context already in place.
func ApplyResult(ctx context.Context, client *DjangoClient, namespace, name string, result *pipeline.HandleResult) error {
	if result == nil {
		return nil
	}

	if result.ResetContext {
		if _, err := client.PatchStatus(ctx, namespace, name, map[string]any{"migration_pipeline": nil}); err != nil {
			return fmt.Errorf("clearing migration pipeline context for %s/%s: %w", namespace, name, err)
		}
	}

	if result.Label != "" {
		_, err := client.PatchStatusAndLabel(ctx, namespace, name, result.StatusPatch, djangov1alpha.MigrationStepLabel, result.Label)
		return err
	}

	if len(result.StatusPatch) > 0 {
		_, err := client.PatchStatus(ctx, namespace, name, result.StatusPatch)
		return err
	}

	return nil
}
