package di

import (
	"context"
	"reflect"

	"github.com/loomdi/loom/internal/errors"
)

// chainEntry is one frame of the in-flight resolution chain: the key
// being constructed plus the edge (parameter, scope) that led to it.
type chainEntry struct {
	key   Key
	param string
	scope string
}

// Resolver is handed to providers so they can pull their own
// dependencies. It carries the resolution context and the chain used for
// cycle detection; each nested resolution extends the chain, so a
// Resolver is only valid for the duration of one provider call.
type Resolver struct {
	c     *Container
	ctx   context.Context
	async bool
	chain []chainEntry
}

// Context returns the resolution context. For synchronous Get calls this
// is context.Background().
func (r *Resolver) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Container returns the owning container.
func (r *Resolver) Container() *Container {
	return r.c
}

func (r *Resolver) origin() Key {
	if len(r.chain) == 0 {
		return Key{}
	}
	return r.chain[len(r.chain)-1].key
}

// Resolve pulls one dependency by key, extending the resolution chain.
func (r *Resolver) Resolve(key Key) (any, error) {
	return r.c.resolve(r, key, "", "")
}

// ResolveType pulls one dependency by reflect type.
func (r *Resolver) ResolveType(t reflect.Type) (any, error) {
	return r.Resolve(TypeKey(t))
}

// ResolveNamed pulls one dependency by declared name.
func (r *Resolver) ResolveNamed(name string) (any, error) {
	return r.Resolve(Named(name))
}

// ResolveDep fulfills one dependency request: single, list or map
// cardinality, with optional-absence and name-fallback handling.
func (r *Resolver) ResolveDep(dep DepRequest) (any, error) {
	switch dep.Kind {
	case DepList:
		return r.resolveList(dep)
	case DepMap:
		return r.resolveMap(dep)
	default:
		return r.resolveSingle(dep)
	}
}

func (r *Resolver) resolveSingle(dep DepRequest) (any, error) {
	key := dep.Key
	// A name request with no explicit binding falls back to the
	// parameter name before failing.
	if key.IsZero() && dep.Parameter != "" {
		key = Named(dep.Parameter)
	}
	v, err := r.c.resolve(r, key, dep.Parameter, dep.Qualifier)
	if err != nil {
		if dep.Optional && errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (r *Resolver) resolveList(dep DepRequest) (any, error) {
	if !dep.Key.IsType() {
		return nil, errors.ErrCreationFailed(dep.Parameter, errors.New("list injection requires a type key"))
	}
	keys := r.c.Locator().CollectByType(dep.Key.Type(), dep.Qualifier)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		v, err := r.c.resolve(r, k, dep.Parameter, dep.Qualifier)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Resolver) resolveMap(dep DepRequest) (any, error) {
	if !dep.Key.IsType() {
		return nil, errors.ErrCreationFailed(dep.Parameter, errors.New("map injection requires a type key"))
	}
	keys := r.c.Locator().CollectByType(dep.Key.Type(), dep.Qualifier)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := r.c.resolve(r, k, dep.Parameter, dep.Qualifier)
		if err != nil {
			return nil, err
		}
		out[r.c.mapEntryName(k)] = v
	}
	return out, nil
}

// cycleChain formats the chain plus the key about to be entered, for the
// circular-dependency diagnostic.
func cycleChain(chain []chainEntry, next Key) ([]string, []errors.CycleEdge) {
	names := make([]string, 0, len(chain)+1)
	edges := make([]errors.CycleEdge, 0, len(chain)+1)
	for _, e := range chain {
		names = append(names, e.key.String())
		edges = append(edges, errors.CycleEdge{
			Key:       e.key.String(),
			Parameter: e.param,
			Scope:     e.scope,
		})
	}
	names = append(names, next.String())
	edges = append(edges, errors.CycleEdge{Key: next.String()})
	return names, edges
}

func chainContains(chain []chainEntry, key Key) bool {
	for _, e := range chain {
		if e.key == key {
			return true
		}
	}
	return false
}
