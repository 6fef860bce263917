package steps

import "github.com/thismatters/django-operator/internal/pathmap"

// toAnyInventory converts a djangoreconciler inventory
// (map[kind]map[purpose]name) into the generic map[string]any shape
// internal/pathmap.Merge operates on, so per-step "created" returns
// accumulate correctly across steps in the persisted pipeline context.
func toAnyInventory(inv map[string]map[string]string) map[string]any {
	out := make(map[string]any, len(inv))
	for kind, byPurpose := range inv {
		purposes := make(map[string]any, len(byPurpose))
		for purpose, name := range byPurpose {
			purposes[purpose] = name
		}
		out[kind] = purposes
	}
	return out
}

// mergeCreated folds two inventories together, e.g. redis's Deployment +
// Service entries with the management pod's single Pod entry.
func mergeCreated(invs ...map[string]map[string]string) map[string]any {
	acc := map[string]any{}
	for _, inv := range invs {
		merged, err := pathmap.Merge(acc, toAnyInventory(inv))
		if err != nil {
			// Every inventory has the same map[kind]map[purpose]name
			// shape, so no type mismatch can occur; a repeated (kind,
			// purpose) simply takes the later name.
			continue
		}
		acc = merged
	}
	return acc
}
