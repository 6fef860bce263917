// Package pathmap provides dotted-path reads, structural deep-merge with
// indexed-path overrides, and slugification over the generic
// map[string]any/[]any documents produced by unmarshaling YAML manifests.
package pathmap

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Get descends obj along the dotted path, e.g. "spec.containers.0.image".
// Each segment is tried as a map key; if obj at that point is not a map,
// a slice index (if the segment parses as an int) or a struct field /
// zero-arg method lookup is tried before giving up. Get is lazy: it never
// materializes intermediate path segments, it only reads.
func Get(obj any, path string) (any, bool) {
	cur := obj
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// GetOr returns the value at path, or def if the path is missing.
func GetOr(obj any, path string, def any) any {
	v, ok := Get(obj, path)
	if !ok {
		return def
	}
	return v
}

// GetErr returns the value at path, or errOnMissing if the path is missing.
func GetErr(obj any, path string, errOnMissing error) (any, error) {
	v, ok := Get(obj, path)
	if !ok {
		return nil, errOnMissing
	}
	return v, nil
}

func step(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	case nil:
		return nil, false
	default:
		return structStep(cur, seg)
	}
}

// structStep falls back to struct field / zero-arg method lookup when cur
// is not a mapping. This is what lets Get read typed status structs
// (e.g. DjangoStatus) with the same dotted paths used over rendered
// manifest maps.
func structStep(cur any, seg string) (any, bool) {
	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	if f := rv.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, seg)
	}); f.IsValid() {
		return f.Interface(), true
	}
	m := reflect.ValueOf(cur).MethodByName(strings.Title(seg))
	if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		out := m.Call(nil)
		return out[0].Interface(), true
	}
	return nil, false
}

var indexedKeyRE = regexp.MustCompile(`^([^\[\]]+)((?:\[\d+\])+)$`)
var indexRE = regexp.MustCompile(`\[(\d+)\]`)

// Merge returns a new document with right deep-merged onto left; left is
// never mutated, and a type-mismatch error leaves the returned value nil
// without side effects on the caller's left.
//
// For each key in right:
//   - a key of the form "base[i1][i2]..." descends into left[base][i1][i2]...
//     and merges the associated value in place at that indexed slot;
//   - a key absent from left is inserted;
//   - if both sides are maps, they are merged recursively;
//   - if both sides are slices, right's elements are appended to left's;
//   - if both sides are scalars, right overwrites left;
//   - any other combination (type mismatch) is an error.
func Merge(left, right map[string]any) (map[string]any, error) {
	out := deepCopyMap(left)
	for k, rv := range right {
		if m := indexedKeyRE.FindStringSubmatch(k); m != nil {
			base := m[1]
			indices, err := parseIndices(m[2])
			if err != nil {
				return nil, err
			}
			merged, err := mergeIndexed(out[base], indices, rv)
			if err != nil {
				return nil, fmt.Errorf("merging indexed path %q: %w", k, err)
			}
			out[base] = merged
			continue
		}
		lv, exists := out[k]
		if !exists {
			out[k] = deepCopy(rv)
			continue
		}
		merged, err := mergeValue(lv, rv)
		if err != nil {
			return nil, fmt.Errorf("merging key %q: %w", k, err)
		}
		out[k] = merged
	}
	return out, nil
}

func parseIndices(bracketed string) ([]int, error) {
	matches := indexRE.FindAllStringSubmatch(bracketed, -1)
	indices := make([]int, 0, len(matches))
	for _, mm := range matches {
		n, err := strconv.Atoi(mm[1])
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", mm[1], err)
		}
		indices = append(indices, n)
	}
	return indices, nil
}

// mergeIndexed descends container through indices and merges value at
// that slot, returning the (possibly copied) updated container.
func mergeIndexed(container any, indices []int, value any) (any, error) {
	if len(indices) == 0 {
		return mergeValue(container, value)
	}
	slice, ok := container.([]any)
	if !ok {
		return nil, fmt.Errorf("indexed override target is not a list (got %T)", container)
	}
	idx := indices[0]
	if idx < 0 || idx >= len(slice) {
		return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(slice))
	}
	out := make([]any, len(slice))
	copy(out, slice)
	merged, err := mergeIndexed(out[idx], indices[1:], value)
	if err != nil {
		return nil, err
	}
	out[idx] = merged
	return out, nil
}

func mergeValue(left, right any) (any, error) {
	switch rv := right.(type) {
	case map[string]any:
		lv, ok := left.(map[string]any)
		if !ok {
			if left == nil {
				return deepCopy(rv), nil
			}
			return nil, fmt.Errorf("type mismatch: left is %T, right is map", left)
		}
		return Merge(lv, rv)
	case []any:
		lv, ok := left.([]any)
		if !ok {
			if left == nil {
				return deepCopy(rv), nil
			}
			return nil, fmt.Errorf("type mismatch: left is %T, right is list", left)
		}
		out := make([]any, 0, len(lv)+len(rv))
		out = append(out, lv...)
		out = append(out, rv...)
		return out, nil
	default:
		switch left.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("type mismatch: left is %T, right is scalar %T", left, right)
		}
		return rv, nil
	}
}

func deepCopy(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return deepCopyMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

var slugRE = regexp.MustCompile(`[^-a-z0-9]+`)

// Slug lowercases s and collapses every run of characters outside
// [-a-z0-9] into a single hyphen, trimming leading/trailing hyphens so
// the result is a valid DNS label component.
func Slug(s string) string {
	lowered := strings.ToLower(s)
	replaced := slugRE.ReplaceAllString(lowered, "-")
	return strings.Trim(replaced, "-")
}
