package resourceservice

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
)

// excludedLabels are never copied from the owning Django object onto a
// child: migration-step is pipeline-run state, meaningless (and actively
// misleading) on a Deployment or Service.
var excludedLabels = map[string]bool{
	djangov1alpha.MigrationStepLabel: true,
}

// adoptSansLabels stamps the rendered desired-object document with an
// ownerReference back to owner, aligns its namespace, and copies owner's
// labels minus excludedLabels — mirroring the teacher's
// podmanager.AgentPodSpec.Labels()/manager.buildPod() label-stamping,
// generalized to an arbitrary owner instead of a hardcoded agent-pod
// label set.
func adoptSansLabels(owner *djangov1alpha.Django, desired map[string]any, ownLabels map[string]string) {
	meta, _ := desired["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		desired["metadata"] = meta
	}
	meta["namespace"] = owner.Namespace

	labels := map[string]any{}
	for k, v := range owner.Labels {
		if excludedLabels[k] {
			continue
		}
		labels[k] = v
	}
	for k, v := range ownLabels {
		labels[k] = v
	}
	meta["labels"] = labels

	meta["ownerReferences"] = []any{
		map[string]any{
			"apiVersion":         djangov1alpha.Group + "/" + djangov1alpha.Version,
			"kind":               djangov1alpha.Kind,
			"name":               owner.Name,
			"uid":                string(owner.UID),
			"controller":         true,
			"blockOwnerDeletion": true,
		},
	}

	finalizers, _ := meta["finalizers"].([]any)
	if !containsStr(finalizers, djangov1alpha.ProtectorFinalizer) {
		meta["finalizers"] = append(finalizers, djangov1alpha.ProtectorFinalizer)
	}
}

func containsStr(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}

// stripProtectorFinalizer returns finalizers without ProtectorFinalizer.
// Callers send the result as a merge patch, so a deliberate delete of an
// owned object is not blocked by the finalizer the operator itself
// attached.
func stripProtectorFinalizer(finalizers []string) []string {
	out := make([]string, 0, len(finalizers))
	for _, f := range finalizers {
		if f != djangov1alpha.ProtectorFinalizer {
			out = append(out, f)
		}
	}
	return out
}

// finalizersOf extracts the finalizer list from a live object's
// ObjectMeta, tolerating nil.
func finalizersOf(obj metav1.Object) []string {
	if obj == nil {
		return nil
	}
	return obj.GetFinalizers()
}
