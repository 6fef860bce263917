package djangoreconciler

import "encoding/json"

// toAnyValue round-trips a typed corev1 value (EnvVar, Volume,
// VolumeMount, LocalObjectReference, ...) through JSON so it can be
// merged into the generic map[string]any manifest documents
// internal/pathmap.Merge operates on.
func toAnyValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
