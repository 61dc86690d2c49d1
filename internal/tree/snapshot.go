package tree

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is an immutable view of the value stored at a path when it was read.
type Snapshot struct {
	path  string
	value any
}

func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{path: path, value: value}
}

func (s Snapshot) Path() string { return s.path }

// Key is the last segment of the snapshot's path.
func (s Snapshot) Key() string {
	for i := len(s.path) - 1; i >= 0; i-- {
		if s.path[i] == '/' {
			return s.path[i+1:]
		}
	}
	return s.path
}

func (s Snapshot) Exists() bool { return s.value != nil }

func (s Snapshot) Value() any { return s.value }

func (s Snapshot) Child(key string) Snapshot {
	child := Snapshot{path: Join(s.path, key)}
	if m, ok := s.value.(map[string]any); ok {
		child.value = m[key]
	}
	return child
}

// Keys returns the child keys in ascending order.
func (s Snapshot) Keys() []string {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Snapshot) Children() []Snapshot {
	keys := s.Keys()
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.Child(k))
	}
	return out
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	raw, err := json.Marshal(s.value)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	return nil
}

// StringValue returns the value if it is a string leaf, "" otherwise.
func (s Snapshot) StringValue() string {
	str, _ := s.value.(string)
	return str
}
