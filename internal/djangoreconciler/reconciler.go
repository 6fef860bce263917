// Package djangoreconciler is the per-event façade pipeline steps drive:
// it owns required-field validation, base manifest parameters, blue/green
// naming, and the purpose-specific ensure/migrate helpers layered on top
// of internal/resourceservice and internal/manifests.
package djangoreconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/manifests"
	"github.com/thismatters/django-operator/internal/pathmap"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

// DjangoReconciler captures one event's (namespace, spec, status, logger)
// and exposes the operations pipeline steps call.
type DjangoReconciler struct {
	django      *djangov1alpha.Django
	resources   *resourceservice.ResourceService
	logger      *slog.Logger
	params      manifests.Params
	image       string
	versionSlug string
}

// New validates the small fixed required-field set and computes the base
// manifest parameters shared by every template render this event
// triggers. A ConfigError is always permanent.
func New(django *djangov1alpha.Django, resources *resourceservice.ResourceService, logger *slog.Logger) (*DjangoReconciler, error) {
	if missing := django.Spec.RequiredFieldsSet(); len(missing) > 0 {
		return nil, &ConfigError{Missing: missing}
	}

	versionSlug := pathmap.Slug(django.Spec.Version)
	image := fmt.Sprintf("%s:%s", django.Spec.Image, django.Spec.Version)

	params := manifests.Params{
		Namespace:     django.Namespace,
		Host:          django.Spec.Host,
		Domain:        domainOf(django.Spec.Host),
		ClusterIssuer: django.Spec.ClusterIssuer,
		AppPort:       django.Spec.Ports.App,
		RedisPort:     django.Spec.Ports.Redis,
		Image:         image,
		VersionSlug:   versionSlug,
	}
	if params.AppPort == 0 {
		params.AppPort = 8000
	}
	if params.RedisPort == 0 {
		params.RedisPort = 6379
	}

	return &DjangoReconciler{
		django:      django,
		resources:   resources,
		logger:      logger,
		params:      params,
		image:       image,
		versionSlug: versionSlug,
	}, nil
}

// domainOf strips the leftmost label off host, e.g. "www.example.com" ->
// "example.com". A bare host with no dot is returned unchanged.
func domainOf(host string) string {
	i := strings.IndexByte(host, '.')
	if i < 0 {
		return host
	}
	return host[i+1:]
}

func (r *DjangoReconciler) resourceRequest(purpose string) (cpu, memory string) {
	req, ok := r.django.Spec.ResourceRequests[purpose]
	if !ok {
		return "100m", "128Mi"
	}
	cpu, memory = req.CPU, req.Memory
	if cpu == "" {
		cpu = "100m"
	}
	if memory == "" {
		memory = "128Mi"
	}
	return cpu, memory
}

// renderTemplate renders "{kind}_{purpose}.yaml" (or the singleton HPA
// template) with the base params plus the object's own name.
func (r *DjangoReconciler) renderTemplate(kind resourceservice.Kind, purpose, name string) (map[string]any, error) {
	params := r.params
	params.Name = name
	cpu, memory := r.resourceRequest(purpose)
	params.CPURequest, params.MemoryRequest = cpu, memory
	if kind == resourceservice.KindHPA {
		return manifests.RenderNamed("horizontalpodautoscaler.yaml", params)
	}
	return manifests.Render(kind.String(), purpose, params)
}

// ensure is the "_ensure" wrapper: render-or-skip, delegate to
// ResourceService, and fold the result into a one-key inventory mapping
// {kind: {purpose: name}} (empty on delete).
func (r *DjangoReconciler) ensure(ctx context.Context, kind resourceservice.Kind, purpose, name string, enrichments map[string]any, labels map[string]string, delete bool) (map[string]map[string]string, error) {
	opts := resourceservice.EnsureOptions{
		Kind:        kind,
		Name:        name,
		Owner:       r.django,
		Enrichments: enrichments,
		Labels:      labels,
		Delete:      delete,
	}
	if !delete {
		body, err := r.renderTemplate(kind, purpose, name)
		if err != nil {
			return nil, err
		}
		opts.Body = body
	}
	if _, err := r.resources.Ensure(ctx, opts); err != nil {
		return nil, err
	}
	if delete {
		return map[string]map[string]string{}, nil
	}
	return map[string]map[string]string{kind.String(): {purpose: name}}, nil
}

// mergeInventory folds b's entries into a, returning a new map; used to
// accumulate the migration's "created" inventory across several ensure
// calls within one step.
func mergeInventory(a, b map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	for kind, byPurpose := range b {
		merged := map[string]string{}
		for p, n := range out[kind] {
			merged[p] = n
		}
		for p, n := range byPurpose {
			merged[p] = n
		}
		out[kind] = merged
	}
	return out
}

// EnsureRedis ensures the singleton redis Deployment + Service (no
// blue/green: redis carries no version suffix).
func (r *DjangoReconciler) EnsureRedis(ctx context.Context) (map[string]map[string]string, error) {
	name := fmt.Sprintf("%s-redis", r.django.Name)
	labels := map[string]string{"purpose": "redis"}

	depInv, err := r.ensure(ctx, resourceservice.KindDeployment, "redis", name, nil, labels, false)
	if err != nil {
		return nil, err
	}
	svcInv, err := r.ensure(ctx, resourceservice.KindService, "redis", name, nil, labels, false)
	if err != nil {
		return nil, err
	}
	return mergeInventory(depInv, svcInv), nil
}

// GreenName computes the target versioned name for purpose, e.g.
// "demo-app-1-0-0".
func (r *DjangoReconciler) GreenName(purpose string) string {
	return fmt.Sprintf("%s-%s-%s", r.django.Name, purpose, r.versionSlug)
}

func (r *DjangoReconciler) createdName(kind resourceservice.Kind, purpose string) string {
	if byKind, ok := r.django.Status.Created[kind.String()]; ok {
		return byKind[purpose]
	}
	return ""
}

// ResourceNames implements the blue/green naming algorithm: the recorded
// name for (kind, purpose), if any, either already carries the current
// version slug (existing, no former) or names the blue to retire
// (former, no existing).
func (r *DjangoReconciler) ResourceNames(kind resourceservice.Kind, purpose string) (existing, former string) {
	recorded := r.createdName(kind, purpose)
	if recorded == "" {
		return "", ""
	}
	if strings.HasSuffix(recorded, r.versionSlug) {
		return recorded, ""
	}
	return "", recorded
}

// envEntries converts spec.env to the generic document shape.
func (r *DjangoReconciler) envEntries() (any, error) {
	if len(r.django.Spec.Env) == 0 {
		return nil, nil
	}
	return toAnyValue(r.django.Spec.Env)
}

// envFromEntries builds the envFrom list from the configured ConfigMap
// and Secret refs.
func (r *DjangoReconciler) envFromEntries() []any {
	var envFrom []any
	for _, cm := range r.django.Spec.EnvFromConfigMapRefs {
		envFrom = append(envFrom, map[string]any{"configMapRef": map[string]any{"name": cm}})
	}
	for _, sec := range r.django.Spec.EnvFromSecretRefs {
		envFrom = append(envFrom, map[string]any{"secretRef": map[string]any{"name": sec}})
	}
	return envFrom
}

// volumeMountEntries converts spec.volumeMounts to the generic document shape.
func (r *DjangoReconciler) volumeMountEntries() (any, error) {
	if len(r.django.Spec.VolumeMounts) == 0 {
		return nil, nil
	}
	return toAnyValue(r.django.Spec.VolumeMounts)
}

// volumeEntries converts spec.volumes to the generic document shape.
func (r *DjangoReconciler) volumeEntries() (any, error) {
	if len(r.django.Spec.Volumes) == 0 {
		return nil, nil
	}
	return toAnyValue(r.django.Spec.Volumes)
}

// imagePullSecretEntries converts spec.imagePullSecrets to the generic
// document shape.
func (r *DjangoReconciler) imagePullSecretEntries() (any, error) {
	if len(r.django.Spec.ImagePullSecrets) == 0 {
		return nil, nil
	}
	return toAnyValue(r.django.Spec.ImagePullSecrets)
}

// ContainerEnrichments builds the merge-ready overrides for a purpose's
// single container: command/args, env, envFrom, volumes/mounts, image
// pull secrets, and (app only) the probe spec and deployment strategy.
func (r *DjangoReconciler) ContainerEnrichments(purpose string) (map[string]any, error) {
	containerOverrides := map[string]any{}

	if cmd, ok := r.django.Spec.Commands[purpose]; ok {
		if len(cmd.Command) > 0 {
			containerOverrides["command"] = toAnySlice(cmd.Command)
		}
		if len(cmd.Args) > 0 {
			containerOverrides["args"] = toAnySlice(cmd.Args)
		}
	}

	env, err := r.envEntries()
	if err != nil {
		return nil, fmt.Errorf("converting env: %w", err)
	}
	if env != nil {
		containerOverrides["env"] = env
	}
	if envFrom := r.envFromEntries(); len(envFrom) > 0 {
		containerOverrides["envFrom"] = envFrom
	}
	mounts, err := r.volumeMountEntries()
	if err != nil {
		return nil, fmt.Errorf("converting volumeMounts: %w", err)
	}
	if mounts != nil {
		containerOverrides["volumeMounts"] = mounts
	}

	if purpose == "app" && len(r.django.Spec.AppProbeSpec) > 0 {
		for probe, spec := range r.django.Spec.AppProbeSpec {
			containerOverrides[probe] = spec
		}
	}

	podSpecOverrides := map[string]any{
		"containers[0]": containerOverrides,
	}
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

	templateOverrides := map[string]any{"spec": podSpecOverrides}
	specOverrides := map[string]any{"template": templateOverrides}
	if purpose == "app" && len(r.django.Spec.Strategy) > 0 {
		specOverrides["strategy"] = r.django.Spec.Strategy
	}

	return map[string]any{"spec": specOverrides}, nil
}

// MigrateResource ensures a green deployment for purpose, optionally an
// HPA targeting it, and (unless skipDelete) deletes the blue once the
// green exists. Used for worker and beat (normal cutover) and for app
// with skipDelete = true so the blue keeps serving until the Service is
// cut over in MigrateService.
func (r *DjangoReconciler) MigrateResource(ctx context.Context, purpose string, skipDelete bool) (map[string]map[string]string, error) {
	existing, former := r.ResourceNames(resourceservice.KindDeployment, purpose)
	green := existing
	if green == "" {
		green = r.GreenName(purpose)
	}

	enrichments, err := r.ContainerEnrichments(purpose)
	if err != nil {
		return nil, err
	}
	inventory, err := r.ensure(ctx, resourceservice.KindDeployment, purpose, green, enrichments, map[string]string{"purpose": purpose}, false)
	if err != nil {
		return nil, err
	}

	if autoscaler, ok := r.django.Spec.Autoscalers[purpose]; ok && autoscaler.Enabled {
		currentReplicas := autoscaler.Replicas.Minimum
		if former != "" {
			obj, gerr := r.resources.Get(ctx, resourceservice.KindDeployment, r.django.Namespace, former)
			if gerr != nil {
				return nil, gerr
			}
			if dep, ok := obj.(*appsv1.Deployment); ok && dep.Spec.Replicas != nil {
				currentReplicas = *dep.Spec.Replicas
			}
		}
		hpaInv, herr := r.ensureAutoscaler(ctx, purpose, green, autoscaler, currentReplicas)
		if herr != nil {
			return nil, herr
		}
		inventory = mergeInventory(inventory, hpaInv)
	}

	if !skipDelete && former != "" {
		if _, derr := r.resources.Ensure(ctx, resourceservice.EnsureOptions{
			Kind:   resourceservice.KindDeployment,
			Name:   former,
			Owner:  r.django,
			Delete: true,
		}); derr != nil {
			return nil, derr
		}
	}

	return inventory, nil
}

// ensureAutoscaler ensures the (singleton, unversioned) HPA for purpose,
// pointed at targetName, seeding minReplicas from currentReplicas so
// cutover never visibly scales the pool down. The autoscaler remains in
// charge of subsequent scaling decisions.
func (r *DjangoReconciler) ensureAutoscaler(ctx context.Context, purpose, targetName string, autoscaler djangov1alpha.AutoscalerSpec, currentReplicas int32) (map[string]map[string]string, error) {
	name := fmt.Sprintf("%s-%s-hpa", r.django.Name, purpose)
	params := r.params
	params.Name = name
	params.TargetName = targetName
	params.MinReplicas = autoscaler.Replicas.Minimum
	params.MaxReplicas = autoscaler.Replicas.Maximum
	params.CPUThreshold = autoscaler.CPUUtilizationThreshold

	body, err := manifests.RenderNamed("horizontalpodautoscaler.yaml", params)
	if err != nil {
		return nil, err
	}
	minReplicas := autoscaler.Replicas.Minimum
	if currentReplicas > minReplicas {
		minReplicas = currentReplicas
	}
	enrichments := map[string]any{
		"spec": map[string]any{"minReplicas": float64(minReplicas)},
	}
	if _, err := r.resources.Ensure(ctx, resourceservice.EnsureOptions{
		Kind:        resourceservice.KindHPA,
		Name:        name,
		Owner:       r.django,
		Body:        body,
		Enrichments: enrichments,
		Labels:      map[string]string{"purpose": purpose},
	}); err != nil {
		return nil, err
	}
	return map[string]map[string]string{resourceservice.KindHPA.String(): {purpose: name}}, nil
}

// MigrateService ensures the app Service (selector repointed at green)
// and Ingress (host/TLS parameters are static per params, unaffected by
// cutover).
func (r *DjangoReconciler) MigrateService(ctx context.Context, green string) (map[string]map[string]string, error) {
	name := fmt.Sprintf("%s-app", r.django.Name)
	serviceEnrichments := map[string]any{
		"spec": map[string]any{"selector": map[string]any{"app": green}},
	}
	svcInv, err := r.ensure(ctx, resourceservice.KindService, "app", name, serviceEnrichments, map[string]string{"purpose": "app"}, false)
	if err != nil {
		return nil, err
	}
	ingInv, err := r.ensure(ctx, resourceservice.KindIngress, "app", name, nil, map[string]string{"purpose": "app"}, false)
	if err != nil {
		return nil, err
	}
	return mergeInventory(svcInv, ingInv), nil
}

// DeleteDeployment tears down a deployment by name, e.g. a rolled-back
// green or a purpose's blue. purpose is not used: the delete path needs
// only the name (see DESIGN.md).
func (r *DjangoReconciler) DeleteDeployment(ctx context.Context, purpose, name string) error {
	_, err := r.resources.Ensure(ctx, resourceservice.EnsureOptions{
		Kind:   resourceservice.KindDeployment,
		Name:   name,
		Owner:  r.django,
		Delete: true,
	})
	return err
}

// DeploymentReachedCondition reports whether the named Deployment's
// status conditions contain {Type: condition, Status: "True"}.
func (r *DjangoReconciler) DeploymentReachedCondition(ctx context.Context, name, condition string) (bool, error) {
	obj, err := r.resources.Get(ctx, resourceservice.KindDeployment, r.django.Namespace, name)
	if err != nil {
		return false, err
	}
	dep, ok := obj.(*appsv1.Deployment)
	if !ok {
		return false, nil
	}
	for _, c := range dep.Status.Conditions {
		if string(c.Type) == condition && c.Status == corev1.ConditionTrue {
			return true, nil
		}
	}
	return false, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
