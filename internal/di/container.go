package di

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomdi/loom/internal/errors"
	"github.com/loomdi/loom/internal/logger"
)

// Initializer is the synchronous post-construction hook. It runs after
// the provider returns and before the instance is cached; a failure
// fails the resolution.
type Initializer interface {
	Init() error
}

// AsyncInitializer is the context-aware post-construction hook. A
// component implementing it can only be resolved through AGet; a
// synchronous Get fails with an async-required error.
type AsyncInitializer interface {
	InitContext(ctx context.Context) error
}

type creationSlot struct {
	key    Key
	bucket *bucket
}

// creationLock is a refcounted per-slot mutex. The refcount lets the
// container drop the map entry once no resolver holds or waits on it,
// so churning scope instances do not accumulate dead locks.
type creationLock struct {
	mu   sync.Mutex
	refs int
}

// Container is the resolution orchestrator: it ties the registry,
// locator, scope manager and caches together and runs the per-key
// resolution algorithm. Containers are safe for concurrent use.
type Container struct {
	registry *Registry

	// locator is replaced wholesale on runtime rebinds; readers take a
	// snapshot through Locator() and never observe a half-updated table.
	locMu   sync.RWMutex
	locator *Locator

	scopes *ScopeManager
	caches *ScopedCaches
	log    logger.Logger

	parent *Container

	obsMu        sync.RWMutex
	observers    []Observer
	interceptors []ContainerInterceptor

	creationMu sync.Mutex
	creating   map[creationSlot]*creationLock

	closed atomic.Bool

	resolveCount  atomic.Int64
	cacheHitCount atomic.Int64
}

// Has reports whether the key resolves to a binding in this container or
// any parent, after canonicalization.
func (c *Container) Has(key Key) bool {
	canonical := c.Locator().CanonicalKey(key)
	if c.registry.Has(canonical) {
		return true
	}
	if c.parent != nil {
		return c.parent.Has(key)
	}
	return false
}

// Get resolves a key synchronously. Keys whose provider or
// post-construction hook needs a context fail with an async-required
// error instead of blocking.
func (c *Container) Get(key Key) (any, error) {
	r := &Resolver{c: c, ctx: context.Background()}
	return c.resolve(r, key, "", "")
}

// AGet resolves a key with a context, enabling context-accepting
// providers and async post-construction hooks. ctx also carries explicit
// scope instance IDs.
func (c *Container) AGet(ctx context.Context, key Key) (any, error) {
	r := &Resolver{c: c, ctx: ctx, async: true}
	return c.resolve(r, key, "", "")
}

// GetAll resolves every binding compatible with t, in registration order.
func (c *Container) GetAll(t reflect.Type) ([]any, error) {
	return c.GetAllQualified(t, "")
}

// GetAllQualified resolves every binding compatible with t that carries
// the qualifier, in registration order.
func (c *Container) GetAllQualified(t reflect.Type, qualifier string) ([]any, error) {
	r := &Resolver{c: c, ctx: context.Background()}
	keys := c.Locator().CollectByType(t, qualifier)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		v, err := c.resolve(r, k, "", qualifier)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// resolve is the per-key resolution algorithm. Every path into the
// container funnels through here so caching, cycle detection, creation
// locking and lifecycle hooks behave identically.
func (c *Container) resolve(r *Resolver, requested Key, param, qualifier string) (any, error) {
	if c.closed.Load() {
		return nil, errors.ErrContainerClosed
	}

	loc := c.Locator()
	key := loc.CanonicalKeyQualified(requested, qualifier)
	md, hasMD := loc.Descriptor(key)

	scope := ""
	if hasMD {
		scope = md.Scope
	}

	cache, err := c.caches.BucketFor(r.Context(), scope)
	if err != nil {
		return nil, err
	}

	if v, ok := cache.get(key); ok {
		c.cacheHitCount.Add(1)
		c.obsMu.RLock()
		notifyCacheHit(c.observers, c.log, key)
		c.obsMu.RUnlock()
		return v, nil
	}

	// The cycle guard runs before the creation lock is taken, so a
	// self-referential chain fails fast instead of deadlocking.
	if chainContains(r.chain, key) {
		names, edges := cycleChain(r.chain, key)
		return nil, errors.ErrCircularDependency(names, edges)
	}

	entry, err := c.registry.Provider(key, r.origin())
	if err != nil {
		if c.parent != nil && errors.IsNotFound(err) {
			if r.async {
				return c.parent.AGet(r.Context(), requested)
			}
			return c.parent.Get(requested)
		}
		return nil, err
	}

	if entry.async() && !r.async {
		return nil, errors.ErrAsyncRequired(key.String())
	}

	unlock := c.lockCreation(key, cache)
	defer unlock()

	// Double check after acquiring the lock; a concurrent resolver may
	// have committed while this one waited. Observers see this as a
	// cache hit like any other.
	if v, ok := cache.get(key); ok {
		c.cacheHitCount.Add(1)
		c.obsMu.RLock()
		notifyCacheHit(c.observers, c.log, key)
		c.obsMu.RUnlock()
		return v, nil
	}

	start := time.Now()
	child := &Resolver{
		c:     c,
		ctx:   r.ctx,
		async: r.async,
		chain: append(r.chain[:len(r.chain):len(r.chain)], chainEntry{key: key, param: param, scope: scope}),
	}

	c.fireBeforeCreate(key)

	var instance any
	if entry.async() {
		instance, err = entry.ctxFn(r.Context(), child)
	} else {
		instance, err = entry.fn(child)
	}
	if err != nil {
		err = c.wrapCreationError(key, err)
		c.fireError(key, err)
		return nil, err
	}

	instance = c.fireAfterCreate(key, instance)

	if err := c.runInitHooks(r, key, instance); err != nil {
		c.fireError(key, err)
		return nil, err
	}

	if hasMD && md.Intercepted() {
		// Lazy bindings already produce a proxy; avoid double wrapping.
		if _, already := instance.(*Proxy); !already {
			instance = c.wrapIntercepted(md, instance)
		}
	}

	instance = cache.putIfAbsent(key, instance)

	c.resolveCount.Add(1)
	c.obsMu.RLock()
	notifyResolve(c.observers, c.log, key, time.Since(start))
	c.obsMu.RUnlock()

	c.log.Debug("component resolved",
		logger.String("key", key.String()),
		logger.String("scope", scope),
		logger.Duration("elapsed", time.Since(start)),
	)
	return instance, nil
}

// wrapCreationError attaches the failing key to plain provider errors.
// The container's own structured errors pass through so their identity
// survives nesting.
func (c *Container) wrapCreationError(key Key, err error) error {
	var se *errors.Error
	if errors.As(err, &se) {
		return err
	}
	return errors.ErrCreationFailed(key.String(), err)
}

func (c *Container) runInitHooks(r *Resolver, key Key, instance any) error {
	if ai, ok := instance.(AsyncInitializer); ok {
		if !r.async {
			return errors.ErrAsyncRequired(key.String())
		}
		if err := ai.InitContext(r.Context()); err != nil {
			return errors.ErrCreationFailed(key.String(), err)
		}
		return nil
	}
	if in, ok := instance.(Initializer); ok {
		if err := in.Init(); err != nil {
			return errors.ErrCreationFailed(key.String(), err)
		}
	}
	return nil
}

func (c *Container) wrapIntercepted(md *Descriptor, instance any) any {
	return newProxyForTarget(c, md, instance)
}

func (c *Container) lockCreation(key Key, b *bucket) func() {
	slot := creationSlot{key: key, bucket: b}
	c.creationMu.Lock()
	if c.creating == nil {
		c.creating = make(map[creationSlot]*creationLock)
	}
	l := c.creating[slot]
	if l == nil {
		l = &creationLock{}
		c.creating[slot] = l
	}
	l.refs++
	c.creationMu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.creationMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.creating, slot)
		}
		c.creationMu.Unlock()
	}
}

func (c *Container) fireBeforeCreate(key Key) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, ci := range c.interceptors {
		func() {
			defer c.recoverInterceptor(key, "OnBeforeCreate")
			ci.OnBeforeCreate(key)
		}()
	}
}

func (c *Container) fireAfterCreate(key Key, instance any) any {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, ci := range c.interceptors {
		func() {
			defer c.recoverInterceptor(key, "OnAfterCreate")
			if replaced := ci.OnAfterCreate(key, instance); replaced != nil {
				instance = replaced
			}
		}()
	}
	return instance
}

func (c *Container) fireError(key Key, err error) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, ci := range c.interceptors {
		func() {
			defer c.recoverInterceptor(key, "OnError")
			ci.OnError(key, err)
		}()
	}
}

func (c *Container) recoverInterceptor(key Key, hook string) {
	if r := recover(); r != nil {
		c.log.Warn("container interceptor panicked",
			logger.String("hook", hook),
			logger.String("key", key.String()),
			logger.Any("panic", r),
		)
	}
}

// mapEntryName is the map-injection key for one binding: the declared
// name when present, else the key string.
func (c *Container) mapEntryName(key Key) string {
	if md, ok := c.Locator().Descriptor(key); ok && md.Name != "" {
		return md.Name
	}
	return key.String()
}

// Bind replaces a binding at runtime. The descriptor table is replaced
// wholesale, and cached instances for the key are evicted from every
// bucket so later resolutions observe the new provider; instances
// already handed out are unaffected.
func (c *Container) Bind(key Key, d *Descriptor, p Provider) error {
	if p == nil {
		return errors.ErrNilProvider
	}
	c.registry.Bind(key, p)

	c.locMu.Lock()
	old := c.locator
	metadata := make(map[Key]*Descriptor, len(old.metadata)+1)
	for k, v := range old.metadata {
		metadata[k] = v
	}
	metadata[key] = d
	order := make([]Key, len(old.order), len(old.order)+1)
	copy(order, old.order)
	if _, existed := old.metadata[key]; !existed {
		order = append(order, key)
	}
	c.locator = NewLocator(metadata, order)
	c.locMu.Unlock()

	c.caches.Remove(key)
	c.log.Debug("binding replaced", logger.String("key", key.String()))
	return nil
}

// ActivateScope opens a scope instance and returns its ID plus a token
// restoring the prior activation state.
func (c *Container) ActivateScope(scope, id string) (string, Token, error) {
	if id == "" {
		id = NewScopeID()
	}
	tok, err := c.scopes.Activate(scope, id)
	if err != nil {
		return "", Token{}, err
	}
	return id, tok, nil
}

// DeactivateScope restores the activation state captured by the token.
// The instance cache is retained until CleanupScope.
func (c *Container) DeactivateScope(tok Token) {
	c.scopes.Release(tok)
}

// CleanupScope disposes every instance cached for one scope instance.
func (c *Container) CleanupScope(ctx context.Context, scope, id string) {
	c.caches.CleanupScope(ctx, scope, id)
}

// Scopes exposes the scope manager.
func (c *Container) Scopes() *ScopeManager {
	return c.scopes
}

// Locator returns the current descriptor query facade. The returned
// snapshot stays consistent even if a concurrent Bind replaces the
// table.
func (c *Container) Locator() *Locator {
	c.locMu.RLock()
	defer c.locMu.RUnlock()
	return c.locator
}

// AddObserver attaches a resolution observer.
func (c *Container) AddObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// AddInterceptor attaches a container-wide creation interceptor.
func (c *Container) AddInterceptor(ci ContainerInterceptor) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.interceptors = append(c.interceptors, ci)
}

// Shutdown closes the container and disposes every cached instance.
// Further resolutions fail. Shutdown is idempotent.
func (c *Container) Shutdown() {
	c.AShutdown(context.Background())
}

// AShutdown is Shutdown with a context for context-aware disposers.
func (c *Container) AShutdown(ctx context.Context) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.caches.DisposeAll(ctx)
	c.log.Info("container shut down",
		logger.Int64("resolutions", c.resolveCount.Load()),
		logger.Int64("cache_hits", c.cacheHitCount.Load()),
	)
}

// Closed reports whether Shutdown has run.
func (c *Container) Closed() bool {
	return c.closed.Load()
}

// HealthChecker lets components report readiness through Health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health checks every cached singleton implementing HealthChecker and
// returns a per-key report; nil entries mean healthy. The "container"
// entry reports the container's own liveness.
func (c *Container) Health(ctx context.Context) map[string]error {
	out := make(map[string]error)
	if c.closed.Load() {
		out["container"] = errors.ErrContainerClosed
	} else {
		out["container"] = nil
	}

	c.caches.singleton.mu.RLock()
	checkers := make(map[Key]HealthChecker)
	for k, v := range c.caches.singleton.instances {
		if hc, ok := v.(HealthChecker); ok {
			checkers[k] = hc
		}
	}
	c.caches.singleton.mu.RUnlock()

	for k, hc := range checkers {
		out[k.String()] = hc.Health(ctx)
	}
	return out
}

// Stats is a point-in-time snapshot of container activity.
type Stats struct {
	Bindings         int
	CachedSingletons int
	Resolutions      int64
	CacheHits        int64
	Closed           bool
}

// StatsSnapshot returns current counters.
func (c *Container) StatsSnapshot() Stats {
	return Stats{
		Bindings:         c.registry.Len(),
		CachedSingletons: c.caches.singleton.len(),
		Resolutions:      c.resolveCount.Load(),
		CacheHits:        c.cacheHitCount.Load(),
		Closed:           c.closed.Load(),
	}
}
