package pathmap

import (
	"reflect"
	"testing"
)

func TestGetDottedPath(t *testing.T) {
	doc := map[string]any{
		"spec": map[string]any{
			"containers": []any{
				map[string]any{"name": "app", "image": "img:1"},
				map[string]any{"name": "sidecar"},
			},
		},
	}

	got, ok := Get(doc, "spec.containers.0.image")
	if !ok || got != "img:1" {
		t.Fatalf("Get = %v, %v; want img:1, true", got, ok)
	}

	if _, ok := Get(doc, "spec.containers.5.image"); ok {
		t.Fatalf("expected missing index to return ok=false")
	}
}

func TestGetOrDefault(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": 1}}
	if got := GetOr(doc, "a.missing", "fallback"); got != "fallback" {
		t.Fatalf("GetOr = %v, want fallback", got)
	}
	if got := GetOr(doc, "a.b", "fallback"); got != 1 {
		t.Fatalf("GetOr = %v, want 1", got)
	}
}

func TestGetStructFallback(t *testing.T) {
	type Inner struct{ Name string }
	type Outer struct{ Inner Inner }
	got, ok := Get(Outer{Inner: Inner{Name: "x"}}, "inner.name")
	if !ok || got != "x" {
		t.Fatalf("Get = %v, %v; want x, true", got, ok)
	}
}

func TestMergeInsertsMissingKeys(t *testing.T) {
	left := map[string]any{"a": 1}
	merged, err := Merge(left, map[string]any{"b": 2})
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	want := map[string]any{"a": 1, "b": 2}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("Merge = %v, want %v", merged, want)
	}
	if _, ok := left["b"]; ok {
		t.Fatalf("Merge mutated left")
	}
}

func TestMergeRecursesMaps(t *testing.T) {
	left := map[string]any{"spec": map[string]any{"replicas": 1, "keep": true}}
	right := map[string]any{"spec": map[string]any{"replicas": 3}}
	merged, err := Merge(left, right)
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	spec := merged["spec"].(map[string]any)
	if spec["replicas"] != 3 || spec["keep"] != true {
		t.Fatalf("Merge = %v", merged)
	}
}

func TestMergeAppendsSlices(t *testing.T) {
	left := map[string]any{"items": []any{1, 2}}
	right := map[string]any{"items": []any{3}}
	merged, err := Merge(left, right)
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	want := []any{1, 2, 3}
	if !reflect.DeepEqual(merged["items"], want) {
		t.Fatalf("Merge = %v, want %v", merged["items"], want)
	}
}

func TestMergeScalarOverwrite(t *testing.T) {
	left := map[string]any{"image": "old:1"}
	merged, err := Merge(left, map[string]any{"image": "new:2"})
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	if merged["image"] != "new:2" {
		t.Fatalf("Merge = %v, want new:2", merged["image"])
	}
}

func TestMergeTypeMismatchErrorsWithoutMutation(t *testing.T) {
	left := map[string]any{"spec": map[string]any{"a": 1}}
	_, err := Merge(left, map[string]any{"spec": []any{1, 2}})
	if err == nil {
		t.Fatalf("expected type-mismatch error")
	}
	want := map[string]any{"spec": map[string]any{"a": 1}}
	if !reflect.DeepEqual(left, want) {
		t.Fatalf("Merge mutated left on error: %v", left)
	}
}

func TestMergeEmptyIsIdentity(t *testing.T) {
	left := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
	merged, err := Merge(left, map[string]any{})
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	if !reflect.DeepEqual(merged, left) {
		t.Fatalf("Merge with empty right = %v, want %v", merged, left)
	}
}

func TestMergeIndexedPathOverride(t *testing.T) {
	left := map[string]any{
		"containers": []any{
			map[string]any{"name": "app", "image": "old:1"},
			map[string]any{"name": "sidecar", "image": "sidecar:1"},
		},
	}
	right := map[string]any{
		"containers[0]": map[string]any{"image": "new:2"},
	}
	merged, err := Merge(left, right)
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	containers := merged["containers"].([]any)
	app := containers[0].(map[string]any)
	if app["image"] != "new:2" || app["name"] != "app" {
		t.Fatalf("container[0] = %v", app)
	}
	sidecar := containers[1].(map[string]any)
	if sidecar["image"] != "sidecar:1" {
		t.Fatalf("container[1] mutated: %v", sidecar)
	}
}

func TestMergeIndexedPathOutOfRange(t *testing.T) {
	left := map[string]any{"containers": []any{map[string]any{"name": "app"}}}
	_, err := Merge(left, map[string]any{"containers[5]": map[string]any{"image": "x"}})
	if err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestMergeAssociative(t *testing.T) {
	base := map[string]any{"a": 1}
	step1 := map[string]any{"b": 2}
	step2 := map[string]any{"c": 3}

	left, err := Merge(base, step1)
	if err != nil {
		t.Fatal(err)
	}
	right, err := Merge(left, step2)
	if err != nil {
		t.Fatal(err)
	}

	combined, err := Merge(step1, step2)
	if err != nil {
		t.Fatal(err)
	}
	alt, err := Merge(base, combined)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(right, alt) {
		t.Fatalf("merge not associative: %v vs %v", right, alt)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"1.0.0":        "1-0-0",
		"v1.2.3-rc.1":  "v1-2-3-rc-1",
		"Hello_World!": "hello-world",
		"--leading":    "leading",
		"trailing--":   "trailing",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetRoundTripAfterSuccessiveMerges(t *testing.T) {
	doc := map[string]any{}
	doc, _ = Merge(doc, map[string]any{"a": map[string]any{"b": 1}})
	doc, _ = Merge(doc, map[string]any{"a": map[string]any{"b": 2}})
	got, ok := Get(doc, "a.b")
	if !ok || got != 2 {
		t.Fatalf("Get after merges = %v, %v; want 2, true", got, ok)
	}
	if _, ok := Get(doc, "a.missing"); ok {
		t.Fatalf("expected missing path to return ok=false")
	}
}
