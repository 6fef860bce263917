// Package manifests renders the on-disk YAML templates that describe the
// baseline shape of each owned object (templates/{kind}_{purpose}.yaml).
// Rendering is deliberately thin: base parameter substitution via
// text/template, then an unmarshal into the generic map[string]any shape
// internal/pathmap.Merge enriches. Template authoring itself is treated
// as plumbing external to the migration state machine this repository
// specifies.
package manifests

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"text/template"

	"sigs.k8s.io/yaml"
)

//go:embed templates/*.yaml
var fs embed.FS

var cache = template.Must(template.ParseFS(fs, "templates/*.yaml"))

// LoadOverrides replaces the compiled-in template for any {kind}_{purpose}.yaml
// file found in dir, leaving every other embedded template untouched. A
// template.Template keys its associated templates by base file name, so
// parsing dir/deployment_app.yaml simply supersedes the embedded one of
// the same name. Called once at startup; dir == "" is a no-op.
func LoadOverrides(dir string) error {
	if dir == "" {
		return nil
	}
	pattern := filepath.Join(dir, "*.yaml")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("globbing manifest override dir %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil
	}
	if _, err := cache.ParseGlob(pattern); err != nil {
		return fmt.Errorf("loading manifest overrides from %s: %w", dir, err)
	}
	return nil
}

// Params are the base parameters substituted into every template, built
// once per event by the reconciler and shared by every ensure call.
type Params struct {
	Name          string
	Namespace     string
	Host          string
	Domain        string // host with the first label stripped off
	ClusterIssuer string
	AppPort       int32
	RedisPort     int32
	Image         string
	VersionSlug   string
	CPURequest    string
	MemoryRequest string

	// HPA-only fields, populated when rendering horizontalpodautoscaler.yaml.
	TargetName  string
	MinReplicas int32
	MaxReplicas int32
	CPUThreshold int32
}

// Render looks up "{kind}_{purpose}.yaml", substitutes params, and
// unmarshals the result into a generic document ready for
// internal/pathmap.Merge enrichment.
func Render(kind, purpose string, params Params) (map[string]any, error) {
	name := fmt.Sprintf("%s_%s.yaml", kind, purpose)
	return RenderNamed(name, params)
}

// RenderNamed renders a template by its literal file name, for the one
// singleton template (horizontalpodautoscaler.yaml) that isn't named
// {kind}_{purpose}.yaml.
func RenderNamed(name string, params Params) (map[string]any, error) {
	tmpl := cache.Lookup(name)
	if tmpl == nil {
		return nil, fmt.Errorf("no manifest template named %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("rendering template %q: %w", name, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling rendered template %q: %w", name, err)
	}
	return doc, nil
}
