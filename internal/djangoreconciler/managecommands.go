package djangoreconciler

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/thismatters/django-operator/internal/pathmap"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

// ManageCommandsPodName is the deterministic name of the one-shot pod
// that runs every initManageCommands entry for the current version.
func (r *DjangoReconciler) ManageCommandsPodName() string {
	return fmt.Sprintf("%s-migrate-%s", r.django.Name, r.versionSlug)
}

// StartManageCommandsPod creates the management-command pod: one init
// container per entry in spec.initManageCommands, each running
// `python manage.py <args...>` and named by slugifying the joined args,
// sharing env/envFrom/mounts/volumes with the main app container. The
// main "wait" container (from the migrations template) exits
// immediately once every init container has finished, so pod phase
// succeeded signals every management command completed in order.
func (r *DjangoReconciler) StartManageCommandsPod(ctx context.Context) (name string, inventory map[string]map[string]string, err error) {
	name = r.ManageCommandsPodName()

	enrichments, err := r.manageCommandsEnrichments()
	if err != nil {
		return "", nil, err
	}
	inventory, err = r.ensure(ctx, resourceservice.KindPod, "migrations", name, enrichments, map[string]string{"purpose": "migrations"}, false)
	if err != nil {
		return "", nil, err
	}
	return name, inventory, nil
}

func (r *DjangoReconciler) manageCommandsEnrichments() (map[string]any, error) {
	env, err := r.envEntries()
	if err != nil {
		return nil, fmt.Errorf("converting env: %w", err)
	}
	envFrom := r.envFromEntries()
	mounts, err := r.volumeMountEntries()
	if err != nil {
		return nil, fmt.Errorf("converting volumeMounts: %w", err)
	}

	initContainers := make([]any, 0, len(r.django.Spec.InitManageCommands))
	for _, args := range r.django.Spec.InitManageCommands {
		container := map[string]any{
			"name":    pathmap.Slug(strings.Join(args, "-")),
			"image":   r.image,
			"command": []any{"python", "manage.py"},
			"args":    toAnySlice(args),
		}
		if env != nil {
			container["env"] = env
		}
		if len(envFrom) > 0 {
			container["envFrom"] = envFrom
		}
		if mounts != nil {
			container["volumeMounts"] = mounts
		}
		initContainers = append(initContainers, container)
	}

	podSpecOverrides := map[string]any{"initContainers": initContainers}
	volumes, err := r.volumeEntries()
	if err != nil {
		return nil, fmt.Errorf("converting volumes: %w", err)
	}
	if volumes != nil {
		podSpecOverrides["volumes"] = volumes
	}
	pullSecrets, err := r.imagePullSecretEntries()
	if err != nil {
		return nil, fmt.Errorf("converting imagePullSecrets: %w", err)
	}
	if pullSecrets != nil {
		podSpecOverrides["imagePullSecrets"] = pullSecrets
	}

	return map[string]any{"spec": podSpecOverrides}, nil
}

// PodPhase reads the named pod's status phase, lowercased, defaulting to
// "unknown" whenever the pod isn't found or carries no status yet; any
// other read error is returned to the caller. A
// pod that isn't found or hasn't had its phase set is treated exactly
// like an explicit Unknown phase: the caller degrades permanently
// rather than waiting for it to resolve.
func (r *DjangoReconciler) PodPhase(ctx context.Context, name string) (string, error) {
	obj, err := r.resources.Get(ctx, resourceservice.KindPod, r.django.Namespace, name)
	if err != nil {
		return "", err
	}
	if obj == nil {
		return "unknown", nil
	}
	pod, ok := obj.(*corev1.Pod)
	if !ok || pod.Status.Phase == "" {
		return "unknown", nil
	}
	return strings.ToLower(string(pod.Status.Phase)), nil
}

// CleanManageCommands deletes the management-command pod. AwaitMgmt
// calls it once it has observed the pod succeed, and Cleanup calls it on
// its rollback branch.
func (r *DjangoReconciler) CleanManageCommands(ctx context.Context) error {
	_, err := r.resources.Ensure(ctx, resourceservice.EnsureOptions{
		Kind:   resourceservice.KindPod,
		Name:   r.ManageCommandsPodName(),
		Owner:  r.django,
		Delete: true,
	})
	return err
}
