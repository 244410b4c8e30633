package di

import (
	"context"
	"sync"

	"github.com/loomdi/loom/internal/errors"
)

// Provider is a callable that produces one instance for a key. It
// receives a Resolver so it can pull its own dependencies; the resolver
// carries the in-flight resolution chain.
type Provider func(r *Resolver) (any, error)

// CtxProvider is the asynchronous-capable variant: it may block on the
// context. Keys bound to a CtxProvider can only be resolved through AGet.
type CtxProvider func(ctx context.Context, r *Resolver) (any, error)

// providerEntry is one registry slot. Exactly one of fn / ctxFn is set.
type providerEntry struct {
	fn    Provider
	ctxFn CtxProvider
}

func (e providerEntry) async() bool {
	return e.ctxFn != nil
}

// Registry is the key-to-provider map: pure storage, no policy.
type Registry struct {
	mu        sync.RWMutex
	providers map[Key]providerEntry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Key]providerEntry)}
}

// Bind binds a synchronous provider to a key, replacing any previous
// binding for that key.
func (r *Registry) Bind(key Key, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = providerEntry{fn: p}
}

// BindCtx binds an asynchronous-capable provider to a key, replacing any
// previous binding.
func (r *Registry) BindCtx(key Key, p CtxProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = providerEntry{ctxFn: p}
}

// Has reports whether a provider is bound to key.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[key]
	return ok
}

// Provider retrieves the entry for key. The origin names the component
// requesting the key; it appears in the not-found diagnostic.
func (r *Registry) Provider(key Key, origin Key) (providerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[key]
	if !ok {
		originName := ""
		if !origin.IsZero() {
			originName = origin.String()
		}
		return providerEntry{}, errors.ErrNotFound(key.String(), originName)
	}
	return e, nil
}

// Remove drops the binding for key, if any.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, key)
}

// Keys returns every bound key, in no particular order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of bound keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
