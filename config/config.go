// Package config loads YAML configuration trees, applies environment
// overrides, and exposes dotted-path lookup. Trees can be mounted into a
// container so components receive configuration values by path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tree is an immutable configuration tree.
type Tree struct {
	root map[string]any
}

// Load parses a YAML document into a tree.
func Load(data []byte) (*Tree, error) {
	root := make(map[string]any)
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &Tree{root: normalize(root).(map[string]any)}, nil
}

// LoadFile reads and parses a YAML file.
func LoadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(data)
}

// Empty returns a tree with no values.
func Empty() *Tree {
	return &Tree{root: make(map[string]any)}
}

// normalize rewrites yaml.v3's map[any]any nodes into map[string]any so
// lookup paths are uniform.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// WithEnvOverrides returns a tree where environment variables override
// values: the variable PREFIX_A_B overrides path "a.b". Only existing
// paths are overridden.
func (t *Tree) WithEnvOverrides(prefix string) *Tree {
	out := t.clone()
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		name, value := kv[:eq], kv[eq+1:]
		if prefix != "" && !strings.HasPrefix(name, prefix+"_") {
			continue
		}
		trimmed := strings.TrimPrefix(name, prefix+"_")
		path := strings.ToLower(strings.ReplaceAll(trimmed, "_", "."))
		if _, ok := out.Lookup(path); ok {
			out.set(path, coerce(value))
		}
	}
	return out
}

func (t *Tree) clone() *Tree {
	return &Tree{root: normalize(deepCopy(t.root)).(map[string]any)}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}

// coerce parses an override string into bool, int or float when it looks
// like one; everything else stays a string.
func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func (t *Tree) set(path string, value any) {
	parts := strings.Split(path, ".")
	node := t.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

// Lookup resolves a dotted path. The second return is false when any
// segment is missing.
func (t *Tree) Lookup(path string) (any, bool) {
	if path == "" {
		return t.root, true
	}
	parts := strings.Split(path, ".")
	var cur any = t.root
	for _, p := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns a string value at path, or def when absent.
func (t *Tree) String(path, def string) string {
	v, ok := t.Lookup(path)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns an int value at path, or def when absent or untypeable.
func (t *Tree) Int(path string, def int) int {
	v, ok := t.Lookup(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Bool returns a bool value at path, or def when absent or untypeable.
func (t *Tree) Bool(path string, def bool) bool {
	v, ok := t.Lookup(path)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// Float returns a float value at path, or def when absent or untypeable.
func (t *Tree) Float(path string, def float64) float64 {
	v, ok := t.Lookup(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// Sub returns the subtree rooted at path, or an empty tree.
func (t *Tree) Sub(path string) *Tree {
	v, ok := t.Lookup(path)
	if !ok {
		return Empty()
	}
	if m, ok := v.(map[string]any); ok {
		return &Tree{root: m}
	}
	return Empty()
}

// Keys returns the immediate child keys under path.
func (t *Tree) Keys(path string) []string {
	v, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
