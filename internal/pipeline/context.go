package pipeline

import (
	"log/slog"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/djangoreconciler"
	"github.com/thismatters/django-operator/internal/pathmap"
)

// Context is what a step's Handle sees: the persisted accumulator
// (status.migration_pipeline, carrying every prior step's merged
// return value), the current retry count for this step, the spec
// snapshot the migration is running against, and the reconciler façade
// for ensuring/querying cluster objects.
type Context struct {
	Values           map[string]any
	Retry            int
	Spec             djangov1alpha.DjangoSpec
	MigrationVersion string
	Reconciler       *djangoreconciler.DjangoReconciler
	Logger           *slog.Logger
}

// Get reads a dotted path out of the persisted context, e.g.
// "created.deployment.app".
func (c *Context) Get(path string) (any, bool) {
	return pathmap.Get(c.Values, path)
}

// GetOr reads a dotted path, or returns def when absent.
func (c *Context) GetOr(path string, def any) any {
	return pathmap.GetOr(c.Values, path, def)
}

// GetString reads a dotted path as a string, or "" when absent or of
// another type.
func (c *Context) GetString(path string) string {
	v, ok := c.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool reads a dotted path as a bool, or false when absent or of
// another type.
func (c *Context) GetBool(path string) bool {
	v, ok := c.Get(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
