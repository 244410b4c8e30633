package di

import (
	"context"
	"sync"

	"github.com/loomdi/loom/internal/errors"
	"github.com/loomdi/loom/internal/logger"
)

// Disposer is the synchronous teardown hook. Components implementing it
// are disposed when their cache bucket is cleaned up.
type Disposer interface {
	Dispose() error
}

// ContextDisposer is the context-aware teardown hook, preferred over
// Disposer when both are implemented.
type ContextDisposer interface {
	DisposeContext(ctx context.Context) error
}

// bucket is one instance cache: keyed storage plus insertion order, so
// teardown can run in reverse creation order.
type bucket struct {
	mu        sync.RWMutex
	instances map[Key]any
	order     []Key

	// noop buckets accept writes and drop them; the prototype mode uses
	// one so cache plumbing stays uniform while nothing is retained.
	noop bool
}

func newBucket() *bucket {
	return &bucket{instances: make(map[Key]any)}
}

func newNoopBucket() *bucket {
	return &bucket{noop: true}
}

func (b *bucket) get(key Key) (any, bool) {
	if b.noop {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.instances[key]
	return v, ok
}

func (b *bucket) put(key Key, v any) {
	if b.noop {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.instances[key]; !exists {
		b.order = append(b.order, key)
	}
	b.instances[key] = v
}

// putIfAbsent stores v only when the key is vacant and returns the value
// that ended up cached, so concurrent creators converge on one instance.
func (b *bucket) putIfAbsent(key Key, v any) any {
	if b.noop {
		return v
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.instances[key]; ok {
		return existing
	}
	b.instances[key] = v
	b.order = append(b.order, key)
	return v
}

func (b *bucket) remove(key Key) {
	if b.noop {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.instances[key]; !ok {
		return
	}
	delete(b.instances, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *bucket) len() int {
	if b.noop {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.instances)
}

// drain empties the bucket and returns the instances in reverse
// insertion order, ready for teardown.
func (b *bucket) drain() []any {
	if b.noop {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		if v, ok := b.instances[b.order[i]]; ok {
			out = append(out, v)
		}
	}
	b.instances = make(map[Key]any)
	b.order = nil
	return out
}

// ScopedCaches owns every instance cache: the singleton bucket, one
// bucket per (scope, instance id), and the shared prototype no-op bucket.
type ScopedCaches struct {
	singleton *bucket
	prototype *bucket

	mu      sync.Mutex
	byScope map[string]map[string]*bucket

	scopes *ScopeManager
	log    logger.Logger
}

// NewScopedCaches wires a cache set to a scope manager.
func NewScopedCaches(scopes *ScopeManager, log logger.Logger) *ScopedCaches {
	return &ScopedCaches{
		singleton: newBucket(),
		prototype: newNoopBucket(),
		byScope:   make(map[string]map[string]*bucket),
		scopes:    scopes,
		log:       log,
	}
}

// BucketFor selects the cache bucket for a lifecycle/scope declaration.
// Custom scopes require an active instance, either from the context or
// the manager's activation stacks.
func (c *ScopedCaches) BucketFor(ctx context.Context, scope string) (*bucket, error) {
	switch scope {
	case "", ScopeSingleton:
		return c.singleton, nil
	case ScopePrototype:
		return c.prototype, nil
	}
	id, ok := ScopeIDFrom(ctx, scope)
	if !ok {
		id, ok = c.scopes.CurrentID(scope)
	}
	if !ok {
		return nil, errors.ErrScope(scope, "no active instance for scope")
	}
	return c.instanceBucket(scope, id), nil
}

func (c *ScopedCaches) instanceBucket(scope, id string) *bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	perID := c.byScope[scope]
	if perID == nil {
		perID = make(map[string]*bucket)
		c.byScope[scope] = perID
	}
	b := perID[id]
	if b == nil {
		b = newBucket()
		perID[id] = b
	}
	return b
}

// Remove evicts a key from every bucket. Used when a binding is replaced
// at runtime so stale instances cannot be served.
func (c *ScopedCaches) Remove(key Key) {
	c.singleton.remove(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, perID := range c.byScope {
		for _, b := range perID {
			b.remove(key)
		}
	}
}

// CleanupScope tears down one scope instance: its bucket is detached,
// and every cached component with a teardown hook is disposed in reverse
// creation order. Hook failures are logged and do not stop the sweep.
func (c *ScopedCaches) CleanupScope(ctx context.Context, scope, id string) {
	c.mu.Lock()
	perID := c.byScope[scope]
	var b *bucket
	if perID != nil {
		b = perID[id]
		delete(perID, id)
		if len(perID) == 0 {
			delete(c.byScope, scope)
		}
	}
	c.mu.Unlock()
	if b == nil {
		return
	}
	c.disposeAll(ctx, b.drain(), scope)
}

// DisposeAll tears down every cache: scope instances first, then
// singletons, each in reverse creation order.
func (c *ScopedCaches) DisposeAll(ctx context.Context) {
	c.mu.Lock()
	var pending []struct {
		scope string
		b     *bucket
	}
	for scope, perID := range c.byScope {
		for _, b := range perID {
			pending = append(pending, struct {
				scope string
				b     *bucket
			}{scope, b})
		}
	}
	c.byScope = make(map[string]map[string]*bucket)
	c.mu.Unlock()

	for _, p := range pending {
		c.disposeAll(ctx, p.b.drain(), p.scope)
	}
	c.disposeAll(ctx, c.singleton.drain(), ScopeSingleton)
}

func (c *ScopedCaches) disposeAll(ctx context.Context, instances []any, scope string) {
	for _, inst := range instances {
		c.disposeOne(ctx, inst, scope)
	}
}

func (c *ScopedCaches) disposeOne(ctx context.Context, inst any, scope string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("panic during component disposal",
				logger.String("scope", scope),
				logger.Any("panic", r),
			)
		}
	}()
	var err error
	switch d := inst.(type) {
	case ContextDisposer:
		err = d.DisposeContext(ctx)
	case Disposer:
		err = d.Dispose()
	default:
		return
	}
	if err != nil {
		c.log.Warn("component disposal failed",
			logger.String("scope", scope),
			logger.Error(err),
		)
	}
}
