package di

import (
	"github.com/loomdi/loom/internal/errors"
)

// GraphNode is one component in the dependency graph.
type GraphNode struct {
	Key        Key
	Scope      string
	Lazy       bool
	Qualifiers []string
	Tags       []string
}

// GraphEdge is one declared dependency, canonicalized the same way the
// resolution path canonicalizes keys so the graph predicts runtime
// behavior.
type GraphEdge struct {
	From      Key
	To        Key
	Parameter string
	Optional  bool
}

// Graph is a static view of the binding set.
type Graph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// BuildGraph derives the dependency graph from a locator's descriptor
// table. Collection dependencies expand to one edge per matching binding.
func BuildGraph(locator *Locator) *Graph {
	g := &Graph{}
	for _, k := range locator.Keys() {
		md, _ := locator.Descriptor(k)
		g.Nodes = append(g.Nodes, GraphNode{
			Key:        k,
			Scope:      md.Scope,
			Lazy:       md.Lazy,
			Qualifiers: md.Qualifiers,
			Tags:       md.Tags,
		})
		for _, dep := range md.Dependencies {
			switch dep.Kind {
			case DepList, DepMap:
				if !dep.Key.IsType() {
					continue
				}
				for _, to := range locator.CollectByType(dep.Key.Type(), dep.Qualifier) {
					g.Edges = append(g.Edges, GraphEdge{
						From:      k,
						To:        to,
						Parameter: dep.Parameter,
						Optional:  dep.Optional,
					})
				}
			default:
				to := dep.Key
				if to.IsZero() && dep.Parameter != "" {
					to = Named(dep.Parameter)
				}
				g.Edges = append(g.Edges, GraphEdge{
					From:      k,
					To:        locator.CanonicalKey(to),
					Parameter: dep.Parameter,
					Optional:  dep.Optional,
				})
			}
		}
	}
	return g
}

// CycleCheck walks the static graph and fails on the first dependency
// cycle, reporting the chain in resolution order.
func CycleCheck(locator *Locator) error {
	g := BuildGraph(locator)
	adjacency := make(map[Key][]GraphEdge)
	for _, e := range g.Edges {
		adjacency[e.From] = append(adjacency[e.From], e)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[Key]int)
	var stack []chainEntry

	var visit func(k Key) error
	visit = func(k Key) error {
		switch state[k] {
		case done:
			return nil
		case visiting:
			// Trim the stack to the cycle itself.
			start := 0
			for i, e := range stack {
				if e.key == k {
					start = i
					break
				}
			}
			names, edges := cycleChain(stack[start:], k)
			return errors.ErrCircularDependency(names, edges)
		}
		state[k] = visiting
		md, _ := locator.Descriptor(k)
		scope := ""
		if md != nil {
			scope = md.Scope
		}
		for _, e := range adjacency[k] {
			if e.Optional {
				continue
			}
			if _, bound := locator.Descriptor(e.To); !bound {
				continue
			}
			stack = append(stack, chainEntry{key: k, param: e.Parameter, scope: scope})
			err := visit(e.To)
			stack = stack[:len(stack)-1]
			if err != nil {
				return err
			}
		}
		state[k] = done
		return nil
	}

	for _, n := range g.Nodes {
		if err := visit(n.Key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBindings checks that every required single dependency resolves
// to a descriptor, a registry binding, or a parent binding. Violations
// are aggregated so one pass reports every hole.
func ValidateBindings(locator *Locator, c *Container) error {
	var violations []string
	for _, k := range locator.Keys() {
		md, _ := locator.Descriptor(k)
		for _, dep := range md.Dependencies {
			if dep.Kind != DepSingle || dep.Optional {
				continue
			}
			target := dep.Key
			if target.IsZero() && dep.Parameter != "" {
				target = Named(dep.Parameter)
			}
			canonical := locator.CanonicalKey(target)
			if _, ok := locator.Descriptor(canonical); ok {
				continue
			}
			if c != nil && (c.registry.Has(canonical) || c.registry.Has(target)) {
				continue
			}
			if c != nil && c.parent != nil && c.parent.Has(target) {
				continue
			}
			violations = append(violations,
				k.String()+" requires '"+target.String()+"' (parameter '"+dep.Parameter+"') which is not bound")
		}
	}
	if len(violations) > 0 {
		return errors.ErrInvalidBinding(violations)
	}
	return nil
}
