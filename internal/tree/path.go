package tree

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

const separator = "/"

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, separator)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, separator)
}

// Clean normalizes a path and rejects segments the store can't hold.
func Clean(path string) (string, error) {
	path = strings.Trim(path, separator)
	if path == "" {
		return "", nil
	}
	for _, seg := range strings.Split(path, separator) {
		if seg == "" {
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if strings.ContainsAny(seg, ".#$[]") {
			return "", fmt.Errorf("%w: illegal character in segment %q", ErrInvalidPath, seg)
		}
	}
	return path, nil
}

// overlaps reports whether a change at one path can affect a value read at
// the other: equal paths, or one is an ancestor of the other.
func overlaps(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+separator) || strings.HasPrefix(b, a+separator)
}

// ancestors returns every proper ancestor of path, root excluded.
func ancestors(path string) []string {
	var out []string
	for i := strings.LastIndex(path, separator); i > 0; i = strings.LastIndex(path[:i], separator) {
		out = append(out, path[:i])
	}
	return out
}

// relative strips base from full. full must equal base or live below it.
func relative(base, full string) string {
	if base == "" {
		return full
	}
	if full == base {
		return ""
	}
	return strings.TrimPrefix(full, base+separator)
}

// childKey returns the first segment of full below base.
func childKey(base, full string) string {
	rel := relative(base, full)
	if i := strings.Index(rel, separator); i >= 0 {
		return rel[:i]
	}
	return rel
}
