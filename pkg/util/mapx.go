package util

import (
	"maps"
	"strconv"
	"strings"
)

// Get walks a dotted path like "request.payload.items[0].id" through nested
// maps and slices. "roles[*].name" (or "roles[].name") collects the rest of
// the path from every element, flattening nested lists. It reports false
// when any segment is missing or a wildcard matches nothing.
func Get(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return m, true
	}
	return walk(m, strings.Split(path, "."))
}

func walk(cur any, segs []string) (any, bool) {
	for i, seg := range segs {
		key, index := seg, ""
		if open := strings.IndexByte(seg, '['); open >= 0 && strings.HasSuffix(seg, "]") {
			key, index = seg[:open], seg[open+1:len(seg)-1]
		} else if open >= 0 {
			return nil, false
		}

		if key != "" {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[key]; !ok {
				return nil, false
			}
		}
		if key == seg {
			continue
		}

		arr, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		if index == "*" || index == "" {
			return collect(arr, segs[i+1:])
		}
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 || n >= len(arr) {
			return nil, false
		}
		cur = arr[n]
	}
	return cur, true
}

func collect(arr []any, rest []string) (any, bool) {
	if len(rest) == 0 {
		return arr, true
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		v, ok := walk(item, rest)
		if !ok {
			continue
		}
		if list, isList := v.([]any); isList {
			out = append(out, list...)
		} else {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// GetMap returns the map stored at path, or nil.
func GetMap(m map[string]any, path string) map[string]any {
	v, _ := Get(m, path)
	out, _ := v.(map[string]any)
	return out
}

// GetString returns the string stored at path, or "".
func GetString(m map[string]any, path string) string {
	v, _ := Get(m, path)
	s, _ := v.(string)
	return s
}

// GetBool reports whether the value stored at path is truthy.
func GetBool(m map[string]any, path string) bool {
	v, ok := Get(m, path)
	return ok && Truthy(v)
}

// Clean returns a non-nil copy of m without nil values.
func Clean(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// DeepCopy returns a copy of v in which every nested map[string]any and
// []any is duplicated. Other values are shared.
func DeepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return DeepCopyMap(x)
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = DeepCopy(item)
		}
		return out
	}
	return v
}

// DeepCopyMap is DeepCopy for maps. A nil map stays nil.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}

// Overlay returns a copy of base with the keys of top written over it.
func Overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	maps.Copy(out, base)
	maps.Copy(out, top)
	return out
}
