package config

import (
	"github.com/loomdi/loom/internal/di"
)

// Deferred exposes a configuration tree through a container: the tree
// itself binds under the given name, and every leaf value binds under
// "<name>.<dotted.path>". Values are resolved by name at injection time.
func Deferred(name string, tree *Tree) *di.DeferredProvider {
	return di.NewDeferredProvider("config:"+name, func(c *di.Container) ([]*di.Candidate, error) {
		var out []*di.Candidate

		out = append(out, valueCandidate(name, tree, nil))
		for path, v := range leaves(tree.root, "") {
			out = append(out, valueCandidate(name+"."+path, v, []string{"config"}))
		}
		return out, nil
	})
}

func valueCandidate(name string, v any, tags []string) *di.Candidate {
	val := v
	return &di.Candidate{
		Descriptor: &di.Descriptor{
			Key:  di.Named(name),
			Name: name,
			Tags: tags,
		},
		Provider: func(r *di.Resolver) (any, error) {
			return val, nil
		},
	}
}

// leaves flattens a tree into dotted-path leaf values.
func leaves(node map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			for p, leaf := range leaves(sub, path) {
				out[p] = leaf
			}
			continue
		}
		out[path] = v
	}
	return out
}
