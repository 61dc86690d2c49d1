package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// normalize turns any Go value into the generic JSON shape the store works
// with: map[string]any, []any, json.Number, string, bool or nil.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return decodeGeneric(raw)
}

func decodeGeneric(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// flatten maps a value written at base to its leaves, keyed by absolute path.
// Empty objects and nulls produce no leaves.
func flatten(base string, value any) (map[string][]byte, error) {
	v, err := normalize(value)
	if err != nil {
		return nil, err
	}
	leaves := make(map[string][]byte)
	if err := flattenInto(leaves, base, v); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flattenInto(leaves map[string][]byte, path string, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			if _, err := Clean(k); err != nil || k == "" || strings.Contains(k, separator) {
				return fmt.Errorf("%w: key %q", ErrInvalidPath, k)
			}
			if err := flattenInto(leaves, Join(path, k), child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range t {
			if err := flattenInto(leaves, Join(path, strconv.Itoa(i)), child); err != nil {
				return err
			}
		}
		return nil
	default:
		if path == "" {
			return fmt.Errorf("%w: scalar at root", ErrInvalidPath)
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode leaf %s: %w", path, err)
		}
		leaves[path] = raw
		return nil
	}
}

// unflatten rebuilds the value stored at base from its leaves. It returns nil
// when there are no leaves.
func unflatten(base string, leaves map[string][]byte) (any, error) {
	if len(leaves) == 0 {
		return nil, nil
	}
	if raw, ok := leaves[base]; ok && len(leaves) == 1 {
		return decodeGeneric(raw)
	}
	root := make(map[string]any)
	for full, raw := range leaves {
		rel := relative(base, full)
		if rel == "" {
			// a scalar shadowed by descendants; descendants win
			continue
		}
		leaf, err := decodeGeneric(raw)
		if err != nil {
			return nil, fmt.Errorf("leaf %s: %w", full, err)
		}
		segs := strings.Split(rel, separator)
		node := root
		for _, seg := range segs[:len(segs)-1] {
			next, ok := node[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[seg] = next
			}
			node = next
		}
		node[segs[len(segs)-1]] = leaf
	}
	return root, nil
}
