// Package resourceservice implements the kind-agnostic "ensure" operation
// over Deployment, Service, Ingress, Pod, Job, and HorizontalPodAutoscaler:
// render/enrich the desired object, discover any existing object, then
// create, patch, or delete to converge — stamping every created child
// with an owner reference, the owner's labels (minus migration-step),
// and the protector finalizer.
package resourceservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	jsonpatch "github.com/evanphx/json-patch"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/pathmap"
)

// ResourceService wraps a typed Kubernetes clientset with the ensure
// semantics shared by every owned kind.
type ResourceService struct {
	client kubernetes.Interface
	logger *slog.Logger
}

// New creates a ResourceService.
func New(client kubernetes.Interface, logger *slog.Logger) *ResourceService {
	return &ResourceService{client: client, logger: logger}
}

// EnsureOptions parameterizes one Ensure call.
type EnsureOptions struct {
	Kind  Kind
	Name  string
	Owner *djangov1alpha.Django

	// Body is the rendered baseline manifest document, already
	// positionally substituted by internal/manifests. Required unless
	// Delete is true and the caller has no body to offer.
	Body map[string]any

	// Enrichments is merged onto Body via pathmap.Merge before the
	// owner/label/finalizer stamp is applied.
	Enrichments map[string]any

	// Labels are purpose-specific labels (e.g. {"purpose": "app"})
	// stamped on top of the owner's propagated labels.
	Labels map[string]string

	// Existing, if non-nil, is used instead of discovering the current
	// object by name. Leave nil to let Ensure call Get itself.
	Existing runtime.Object

	// Delete requests teardown instead of create/patch.
	Delete bool
}

// Ensure idempotently converges the cluster toward Body (create or
// patch), or tears the object down (Delete). It returns the server-side
// object after a create or patch, and nil whenever Delete is true.
func (s *ResourceService) Ensure(ctx context.Context, opts EnsureOptions) (runtime.Object, error) {
	adapter, err := adapterFor(opts.Kind, s.client)
	if err != nil {
		return nil, err
	}

	var desired map[string]any
	if !opts.Delete {
		desired, err = s.buildDesired(opts)
		if err != nil {
			return nil, err
		}
	}

	existing := opts.Existing
	if existing == nil {
		existing, err = adapter.Get(ctx, opts.Owner.Namespace, opts.Name)
		if err != nil {
			if !apierrors.IsNotFound(err) {
				return nil, &ApiFailure{Verb: "read", Kind: opts.Kind.String(), Name: opts.Name, Err: err}
			}
			existing = nil
		}
	}

	switch {
	case existing != nil && opts.Delete:
		return nil, s.delete(ctx, adapter, opts, existing)
	case existing != nil && !opts.Delete:
		return s.patch(ctx, adapter, opts, existing, desired)
	case existing == nil && !opts.Delete:
		return s.create(ctx, adapter, opts, desired)
	default: // existing == nil && opts.Delete
		return nil, nil
	}
}

// Get reads the current server-side object for kind/name without
// mutating anything; used by callers that need to inspect status (e.g.
// deployment readiness conditions) independent of an ensure call.
func (s *ResourceService) Get(ctx context.Context, kind Kind, namespace, name string) (runtime.Object, error) {
	adapter, err := adapterFor(kind, s.client)
	if err != nil {
		return nil, err
	}
	obj, err := adapter.Get(ctx, namespace, name)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, &ApiFailure{Verb: "read", Kind: kind.String(), Name: name, Err: err}
	}
	return obj, nil
}

// StripFinalizer removes the protector finalizer from kind/name without
// deleting it. Used once the owning Django object is gone and garbage
// collection is blocked waiting for this finalizer to clear.
func (s *ResourceService) StripFinalizer(ctx context.Context, kind Kind, namespace, name string) error {
	adapter, err := adapterFor(kind, s.client)
	if err != nil {
		return err
	}
	existing, err := adapter.Get(ctx, namespace, name)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return &ApiFailure{Verb: "read", Kind: kind.String(), Name: name, Err: err}
	}
	accessor, err := meta.Accessor(existing)
	if err != nil {
		return err
	}
	finalizers := accessor.GetFinalizers()
	if !containsStr(toAnySlice(finalizers), djangov1alpha.ProtectorFinalizer) {
		return nil
	}
	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"finalizers": stripProtectorFinalizer(finalizers)},
	})
	if err != nil {
		return fmt.Errorf("marshaling finalizer strip for %s/%s: %w", kind, name, err)
	}
	if _, err := adapter.Patch(ctx, namespace, name, patch); err != nil && !apierrors.IsNotFound(err) {
		return &ApiFailure{Verb: "patch", Kind: kind.String(), Name: name, Err: err}
	}
	s.logger.Info("stripped protector finalizer", "kind", kind.String(), "name", name, "namespace", namespace)
	return nil
}

func (s *ResourceService) buildDesired(opts EnsureOptions) (map[string]any, error) {
	desired := opts.Body
	if desired == nil {
		return nil, fmt.Errorf("ensure %s/%s: no body to render and no existing object", opts.Kind, opts.Name)
	}
	if len(opts.Enrichments) > 0 {
		merged, err := pathmap.Merge(desired, opts.Enrichments)
		if err != nil {
			return nil, fmt.Errorf("merging enrichments for %s/%s: %w", opts.Kind, opts.Name, err)
		}
		desired = merged
	}
	nameMeta, _ := desired["metadata"].(map[string]any)
	if nameMeta == nil {
		nameMeta = map[string]any{}
		desired["metadata"] = nameMeta
	}
	nameMeta["name"] = opts.Name

	adoptSansLabels(opts.Owner, desired, opts.Labels)
	return desired, nil
}

func (s *ResourceService) create(ctx context.Context, adapter adapter, opts EnsureOptions, desired map[string]any) (runtime.Object, error) {
	typed, err := unmarshalInto(desired, adapter.Empty())
	if err != nil {
		return nil, fmt.Errorf("decoding desired %s/%s: %w", opts.Kind, opts.Name, err)
	}
	created, err := adapter.Create(ctx, opts.Owner.Namespace, typed)
	if err != nil {
		return nil, &ApiFailure{Verb: "create", Kind: opts.Kind.String(), Name: opts.Name, Err: err}
	}
	s.logger.Info("created resource", "kind", opts.Kind.String(), "name", opts.Name, "namespace", opts.Owner.Namespace)
	return created, nil
}

func (s *ResourceService) patch(ctx context.Context, adapter adapter, opts EnsureOptions, existing runtime.Object, desired map[string]any) (runtime.Object, error) {
	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("marshaling existing %s/%s: %w", opts.Kind, opts.Name, err)
	}
	desiredJSON, err := json.Marshal(desired)
	if err != nil {
		return nil, fmt.Errorf("marshaling desired %s/%s: %w", opts.Kind, opts.Name, err)
	}
	mergePatch, err := jsonpatch.CreateMergePatch(existingJSON, desiredJSON)
	if err != nil {
		return nil, fmt.Errorf("computing merge patch for %s/%s: %w", opts.Kind, opts.Name, err)
	}
	if string(mergePatch) == "{}" {
		return existing, nil
	}
	patched, err := adapter.Patch(ctx, opts.Owner.Namespace, opts.Name, mergePatch)
	if err != nil {
		return nil, &ApiFailure{Verb: "patch", Kind: opts.Kind.String(), Name: opts.Name, Err: err}
	}
	s.logger.Info("patched resource", "kind", opts.Kind.String(), "name", opts.Name, "namespace", opts.Owner.Namespace)
	return patched, nil
}

// delete strips the protector finalizer (if present) before deleting, and
// swallows every delete error: a delete that fails is convergent on the
// next reconcile.
func (s *ResourceService) delete(ctx context.Context, adapter adapter, opts EnsureOptions, existing runtime.Object) error {
	accessor, err := meta.Accessor(existing)
	if err == nil {
		if finalizers := finalizersOf(accessor); containsStr(toAnySlice(finalizers), djangov1alpha.ProtectorFinalizer) {
			stripped := stripProtectorFinalizer(finalizers)
			patch, merr := json.Marshal(map[string]any{
				"metadata": map[string]any{"finalizers": stripped},
			})
			if merr == nil {
				if _, perr := adapter.Patch(ctx, opts.Owner.Namespace, opts.Name, patch); perr != nil {
					s.logger.Warn("failed to strip protector finalizer before delete",
						"kind", opts.Kind.String(), "name", opts.Name, "error", perr)
				}
			}
		}
	}

	if derr := adapter.Delete(ctx, opts.Owner.Namespace, opts.Name); derr != nil && !apierrors.IsNotFound(derr) {
		s.logger.Warn("delete failed, will converge on retry",
			"kind", opts.Kind.String(), "name", opts.Name, "error", derr)
	} else {
		s.logger.Info("deleted resource", "kind", opts.Kind.String(), "name", opts.Name, "namespace", opts.Owner.Namespace)
	}
	return nil
}

func unmarshalInto(doc map[string]any, target runtime.Object) (runtime.Object, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, target); err != nil {
		return nil, err
	}
	return target, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
