package k8sclient

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
)

// DjangoGVR identifies the djangos custom resource for the dynamic
// client; this repository has no generated clientset for its own CRD.
var DjangoGVR = schema.GroupVersionResource{
	Group:    djangov1alpha.Group,
	Version:  djangov1alpha.Version,
	Resource: djangov1alpha.Plural,
}

// DjangoClient reads and patches Django resources through the dynamic
// client, converting to and from the typed apis/django/v1alpha.Django
// struct at the boundary.
type DjangoClient struct {
	dyn dynamic.Interface
}

// NewDjangoClient wraps a dynamic.Interface for djangos access.
func NewDjangoClient(dyn dynamic.Interface) *DjangoClient {
	return &DjangoClient{dyn: dyn}
}

func (c *DjangoClient) resource(namespace string) dynamic.ResourceInterface {
	return c.dyn.Resource(DjangoGVR).Namespace(namespace)
}

// Get fetches a Django object and converts it to the typed struct.
func (c *DjangoClient) Get(ctx context.Context, namespace, name string) (*djangov1alpha.Django, error) {
	u, err := c.resource(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return FromUnstructured(u)
}

// List fetches every Django object matching labelSelector across
// namespace ("" for all namespaces the client is authorized for).
func (c *DjangoClient) List(ctx context.Context, namespace, labelSelector string) ([]*djangov1alpha.Django, error) {
	list, err := c.resource(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("listing djangos: %w", err)
	}
	out := make([]*djangov1alpha.Django, 0, len(list.Items))
	for i := range list.Items {
		d, err := FromUnstructured(&list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FromUnstructured converts an *unstructured.Unstructured into the typed
// Django struct.
func FromUnstructured(u *unstructured.Unstructured) (*djangov1alpha.Django, error) {
	var d djangov1alpha.Django
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &d); err != nil {
		return nil, fmt.Errorf("converting unstructured to Django: %w", err)
	}
	return &d, nil
}

// ToUnstructured converts a typed Django struct into unstructured form.
func ToUnstructured(d *djangov1alpha.Django) (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(d)
	if err != nil {
		return nil, fmt.Errorf("converting Django to unstructured: %w", err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

// PatchStatus applies a JSON merge patch to status only. fields is a map
// of status field name to new value; a nil value clears that field (JSON
// merge patch semantics), which a marshaled DjangoStatus struct could
// never express because "omitempty" drops zero values from the patch
// entirely instead of nulling them out.
func (c *DjangoClient) PatchStatus(ctx context.Context, namespace, name string, fields map[string]any) (*djangov1alpha.Django, error) {
	body, err := json.Marshal(map[string]any{"status": fields})
	if err != nil {
		return nil, fmt.Errorf("marshaling status patch: %w", err)
	}
	u, err := c.resource(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}, "status")
	if err != nil {
		return nil, fmt.Errorf("patching django %s/%s status: %w", namespace, name, err)
	}
	return FromUnstructured(u)
}

// PatchLabels applies a JSON merge patch to metadata.labels only. A nil
// value for a key removes that label (JSON merge patch semantics).
func (c *DjangoClient) PatchLabels(ctx context.Context, namespace, name string, labels map[string]any) (*djangov1alpha.Django, error) {
	body, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"labels": labels},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling label patch: %w", err)
	}
	u, err := c.resource(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return nil, fmt.Errorf("patching django %s/%s labels: %w", namespace, name, err)
	}
	return FromUnstructured(u)
}

// PatchStatusAndLabel commits a status change and the migration-step
// label advance for the same pipeline run. The CRD's status subresource
// means these are necessarily two REST calls (a status-subresource PATCH
// cannot touch metadata, and vice versa) — status is written first so
// that a watcher woken by the label change always observes the step's
// merged context already in place.
func (c *DjangoClient) PatchStatusAndLabel(ctx context.Context, namespace, name string, statusFields map[string]any, labelKey, labelValue string) (*djangov1alpha.Django, error) {
	if _, err := c.PatchStatus(ctx, namespace, name, statusFields); err != nil {
		return nil, err
	}
	return c.PatchLabels(ctx, namespace, name, map[string]any{labelKey: labelValue})
}
