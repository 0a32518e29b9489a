// Package field implements dotted-path read/write with wildcard expansion,
// deep-merge with named strategies, and JMESPath extraction — the
// substrate almost every processor stage builds on.
package field

import (
	"strings"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
)

// Path is a parsed sequence of segments, e.g. "assets.\"ANG.txt\".dgeo:cid"
// parses to []string{"assets", "ANG.txt", "dgeo:cid"}.
type Path []string

// ParsePath splits a dotted path string into segments, honoring
// double-quoted segments for keys that themselves contain a dot.
func ParsePath(raw string) Path {
	var segments []string
	var current strings.Builder
	inQuotes := false

	flush := func() {
		if current.Len() > 0 || !inQuotes {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '.' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// String renders the path back to its dotted form, quoting any segment
// that itself contains a dot.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		if strings.Contains(seg, ".") {
			parts[i] = `"` + seg + `"`
		} else {
			parts[i] = seg
		}
	}
	return strings.Join(parts, ".")
}

// Get returns the value at path, or def if any segment is missing or
// traverses a non-mapping.
func Get(item map[string]any, path Path, def any) any {
	var cur any = map[string]any(item)
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		v, exists := m[seg]
		if !exists {
			return def
		}
		cur = v
	}
	return cur
}

// Set writes value at path, mutating item in place. If createPaths is
// false and an intermediate segment does not exist, it fails with a
// PathMissing DataProcessingError. If an intermediate segment exists but
// is not a mapping, it fails with a PathCollision DataProcessingError.
func Set(item map[string]any, path Path, value any, createPaths bool) error {
	if len(path) == 0 {
		return stacerrors.NewDataProcessingError("", "", "PathMissing", "path must have at least one segment", nil, nil)
	}

	cur := item
	for i, seg := range path[:len(path)-1] {
		next, exists := cur[seg]
		if !exists {
			if !createPaths {
				return stacerrors.NewDataProcessingError("", "", "PathMissing",
					"intermediate segment does not exist: "+Path(path[:i+1]).String(), nil, nil)
			}
			nm := make(map[string]any)
			cur[seg] = nm
			cur = nm
			continue
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return stacerrors.NewDataProcessingError("", "", "PathCollision",
				"intermediate segment is not a mapping: "+Path(path[:i+1]).String(), nil, nil)
		}
		cur = nm
	}

	cur[path[len(path)-1]] = value
	return nil
}

// Remove deletes the value at path. It is idempotent: a no-op if the path
// (or any intermediate segment) is absent.
func Remove(item map[string]any, path Path) {
	if len(path) == 0 {
		return
	}
	cur := item
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok {
			return
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return
		}
		cur = nm
	}
	delete(cur, path[len(path)-1])
}
