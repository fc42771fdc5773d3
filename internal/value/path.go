package value

import (
	"strconv"
	"strings"
)

// At traverses a dot-notation path into a value and reports whether every
// segment resolved. Map segments are key lookups; list segments are numeric
// indices. An empty path returns the value itself.
//
// Example: At(m, "order.lines.0.sku")
func At(v Value, path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, seg := range strings.Split(path, ".") {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// AtPath traverses pre-split path segments. Used by callers that already
// carry specifiers as a slice.
func AtPath(v Value, segments []string) (Value, bool) {
	current := v
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(v Value, seg string) (Value, bool) {
	switch val := v.(type) {
	case Map:
		next, ok := val[seg]
		return next, ok
	case List:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(val) {
			return nil, false
		}
		return val[idx], true
	default:
		return nil, false
	}
}

// Set returns a copy of v with the field at the dot-notation path replaced.
// Values are immutable, so every map along the path is shallow-copied.
// Reports false if any intermediate segment is missing or not a map.
func Set(v Value, path string, newVal Value) (Value, bool) {
	if path == "" {
		return newVal, true
	}
	segments := strings.Split(path, ".")
	return setPath(v, segments, newVal)
}

func setPath(v Value, segments []string, newVal Value) (Value, bool) {
	m, ok := v.(Map)
	if !ok {
		return nil, false
	}
	seg := segments[0]

	updated := make(Map, len(m))
	for k, val := range m {
		updated[k] = val
	}

	if len(segments) == 1 {
		updated[seg] = newVal
		return updated, true
	}

	child, ok := m[seg]
	if !ok {
		return nil, false
	}
	newChild, ok := setPath(child, segments[1:], newVal)
	if !ok {
		return nil, false
	}
	updated[seg] = newChild
	return updated, true
}
