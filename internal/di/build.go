package di

import (
	"context"

	"github.com/loomdi/loom/internal/errors"
	"github.com/loomdi/loom/internal/logger"
)

// Condition gates a candidate on the active profiles; nil means always.
type Condition func(profiles []string) bool

// Candidate is one registration offered to the builder. Selection into
// the final binding set happens at Build: conditions are evaluated,
// primaries win over regular candidates, and fallbacks fill gaps.
type Candidate struct {
	Descriptor  *Descriptor
	Provider    Provider
	CtxProvider CtxProvider

	// OnMissing marks a fallback: it binds only when no regular
	// candidate claims the same key.
	OnMissing bool
	Condition Condition

	order int
}

// Builder accumulates candidates and assembles a validated container.
// A builder is single-use; Add after Build fails.
type Builder struct {
	candidates []*Candidate
	deferred   []*DeferredProvider

	log          logger.Logger
	profiles     []string
	customScopes []string
	observers    []Observer
	interceptors []ContainerInterceptor
	parent       *Container

	eager      bool
	tagFilter  []string
	roots      []Key
	promotions map[Key]string

	finalized bool
}

// NewBuilder creates an empty builder with a no-op logger.
func NewBuilder() *Builder {
	return &Builder{
		log:        logger.NewNoopLogger(),
		promotions: make(map[Key]string),
	}
}

// SetLogger sets the logger inherited by the container.
func (b *Builder) SetLogger(log logger.Logger) { b.log = log }

// SetProfiles sets the active profiles evaluated by candidate conditions.
func (b *Builder) SetProfiles(profiles ...string) { b.profiles = profiles }

// DeclareScope registers a custom scope name on the built container.
func (b *Builder) DeclareScope(scope string) { b.customScopes = append(b.customScopes, scope) }

// AddObserver attaches an observer to the built container.
func (b *Builder) AddObserver(o Observer) { b.observers = append(b.observers, o) }

// AddInterceptor attaches a container-wide creation interceptor.
func (b *Builder) AddInterceptor(ci ContainerInterceptor) { b.interceptors = append(b.interceptors, ci) }

// SetParent sets a fallback container consulted on local misses.
func (b *Builder) SetParent(p *Container) { b.parent = p }

// SetEager enables eager instantiation of non-lazy singletons at Build.
func (b *Builder) SetEager(eager bool) { b.eager = eager }

// SetTagFilter restricts the binding set to descriptors carrying any of
// the given tags.
func (b *Builder) SetTagFilter(tags ...string) { b.tagFilter = tags }

// SetRoots restricts the binding set to the dependency subgraph
// reachable from the given keys.
func (b *Builder) SetRoots(roots ...Key) { b.roots = roots }

// PromoteScope overrides the declared scope of one key at Build.
func (b *Builder) PromoteScope(key Key, scope string) { b.promotions[key] = scope }

// AddDeferred attaches a provider source that binds after Build.
func (b *Builder) AddDeferred(d *DeferredProvider) { b.deferred = append(b.deferred, d) }

// Add offers a candidate. Descriptor and exactly one provider form are
// required.
func (b *Builder) Add(cand *Candidate) error {
	if b.finalized {
		return errors.ErrBuilderFinalized
	}
	if cand == nil || cand.Descriptor == nil {
		return errors.ErrInvalidProvider("<unknown>", errors.New("candidate requires a descriptor"))
	}
	key := cand.Descriptor.Key
	if key.IsZero() {
		return errors.ErrInvalidProvider("<unknown>", errors.New("candidate requires a non-zero key"))
	}
	if (cand.Provider == nil) == (cand.CtxProvider == nil) {
		return errors.ErrInvalidProvider(key.String(), errors.New("candidate requires exactly one provider form"))
	}
	if cand.Descriptor.Lazy && cand.CtxProvider != nil {
		return errors.ErrInvalidProvider(key.String(), errors.New("lazy bindings cannot use a context provider"))
	}
	cand.order = len(b.candidates)
	b.candidates = append(b.candidates, cand)
	return nil
}

// Build runs selection, applies restrictions, validates the dependency
// graph, and returns a ready container. The builder is finalized whether
// or not Build succeeds.
func (b *Builder) Build() (*Container, error) {
	if b.finalized {
		return nil, errors.ErrBuilderFinalized
	}
	b.finalized = true

	selected := b.selectCandidates()
	selected = b.applyTagFilter(selected)
	b.applyPromotions(selected)
	b.autoPromoteScopes(selected)

	metadata := make(map[Key]*Descriptor, len(selected))
	order := make([]Key, 0, len(selected))
	for _, cand := range selected {
		metadata[cand.Descriptor.Key] = cand.Descriptor
		order = append(order, cand.Descriptor.Key)
	}
	locator := NewLocator(metadata, order)

	if len(b.roots) > 0 {
		selected = b.restrictToRoots(selected, locator)
		metadata = make(map[Key]*Descriptor, len(selected))
		order = order[:0]
		for _, cand := range selected {
			metadata[cand.Descriptor.Key] = cand.Descriptor
			order = append(order, cand.Descriptor.Key)
		}
		locator = NewLocator(metadata, order)
	}

	scopes := NewScopeManager()
	for _, s := range b.customScopes {
		if err := scopes.Declare(s); err != nil {
			return nil, err
		}
	}

	c := &Container{
		registry:     NewRegistry(),
		locator:      locator,
		scopes:       scopes,
		caches:       NewScopedCaches(scopes, b.log),
		log:          b.log,
		parent:       b.parent,
		observers:    b.observers,
		interceptors: b.interceptors,
	}

	for _, cand := range selected {
		b.bindCandidate(c, cand)
	}

	for _, d := range b.deferred {
		if err := d.attach(c); err != nil {
			return nil, err
		}
	}

	// Deferred attachment rebinds through the container and replaces its
	// locator; validation must run against the final table.
	finalLoc := c.Locator()
	if err := ValidateBindings(finalLoc, c); err != nil {
		return nil, err
	}
	if err := CycleCheck(finalLoc); err != nil {
		return nil, err
	}

	if b.eager {
		if err := b.instantiateEager(c, selected); err != nil {
			return nil, err
		}
	}

	b.log.Info("container built",
		logger.Int("bindings", len(selected)),
		logger.Strings("profiles", b.profiles),
	)
	return c, nil
}

// selectCandidates resolves per-key competition: conditional candidates
// are filtered first, primaries beat regular candidates, the first
// registered wins ties, and fallbacks bind only to otherwise-vacant keys.
func (b *Builder) selectCandidates() []*Candidate {
	byKey := make(map[Key][]*Candidate)
	var keys []Key
	for _, cand := range b.candidates {
		if cand.Condition != nil && !cand.Condition(b.profiles) {
			continue
		}
		k := cand.Descriptor.Key
		if _, seen := byKey[k]; !seen {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], cand)
	}

	var out []*Candidate
	for _, k := range keys {
		group := byKey[k]
		var winner *Candidate
		for _, cand := range group {
			if cand.OnMissing {
				continue
			}
			if cand.Descriptor.Override {
				winner = cand
				continue
			}
			if winner == nil {
				winner = cand
				continue
			}
			if winner.Descriptor.Override {
				continue
			}
			if cand.Descriptor.Primary && !winner.Descriptor.Primary {
				winner = cand
			}
		}
		if winner == nil {
			for _, cand := range group {
				if cand.OnMissing {
					winner = cand
					break
				}
			}
		}
		if winner != nil {
			out = append(out, winner)
		}
	}
	return out
}

func (b *Builder) applyTagFilter(selected []*Candidate) []*Candidate {
	if len(b.tagFilter) == 0 {
		return selected
	}
	var out []*Candidate
	for _, cand := range selected {
		for _, t := range b.tagFilter {
			if cand.Descriptor.HasTag(t) {
				out = append(out, cand)
				break
			}
		}
	}
	return out
}

func (b *Builder) applyPromotions(selected []*Candidate) {
	for _, cand := range selected {
		if scope, ok := b.promotions[cand.Descriptor.Key]; ok {
			// Descriptors are immutable once bound; promotion happens on
			// a copy before the table is assembled.
			d := *cand.Descriptor
			d.Scope = scope
			cand.Descriptor = &d
		}
	}
}

// autoPromoteScopes narrows singletons that statically depend on a
// scoped component: caching such a singleton container-wide would pin a
// single scope instance forever, so it is promoted to the dependency's
// scope. Explicit promotions are applied first and win.
func (b *Builder) autoPromoteScopes(selected []*Candidate) {
	metadata := make(map[Key]*Descriptor, len(selected))
	order := make([]Key, 0, len(selected))
	for _, cand := range selected {
		metadata[cand.Descriptor.Key] = cand.Descriptor
		order = append(order, cand.Descriptor.Key)
	}
	locator := NewLocator(metadata, order)

	// memo holds the effective scope per key; empty string means
	// singleton and unresolved alike, so track done-ness separately.
	memo := make(map[Key]string)
	var effective func(k Key, visiting map[Key]bool) string
	effective = func(k Key, visiting map[Key]bool) string {
		if s, ok := memo[k]; ok {
			return s
		}
		if visiting[k] {
			return ""
		}
		visiting[k] = true
		defer delete(visiting, k)

		md, ok := metadata[k]
		if !ok {
			return ""
		}
		scope := md.Scope
		if scope == "" {
			scope = ScopeSingleton
		}
		if scope == ScopeSingleton {
			for _, dep := range locator.DependencyKeysFor(md) {
				ds := effective(dep, visiting)
				if ds != "" && ds != ScopeSingleton && ds != ScopePrototype {
					scope = ds
					break
				}
			}
		}
		memo[k] = scope
		return scope
	}

	for _, cand := range selected {
		k := cand.Descriptor.Key
		if _, explicit := b.promotions[k]; explicit {
			memo[k] = cand.Descriptor.Scope
			continue
		}
		declared := cand.Descriptor.Scope
		if declared != "" && declared != ScopeSingleton {
			continue
		}
		promoted := effective(k, map[Key]bool{})
		if promoted != "" && promoted != ScopeSingleton && promoted != ScopePrototype {
			d := *cand.Descriptor
			d.Scope = promoted
			cand.Descriptor = &d
			b.log.Debug("scope promoted",
				logger.String("key", k.String()),
				logger.String("scope", promoted),
			)
		}
	}
}

// restrictToRoots keeps only bindings reachable from the root keys by
// walking declared dependencies.
func (b *Builder) restrictToRoots(selected []*Candidate, locator *Locator) []*Candidate {
	reachable := make(map[Key]struct{})
	var visit func(k Key)
	visit = func(k Key) {
		canonical := locator.CanonicalKey(k)
		if _, seen := reachable[canonical]; seen {
			return
		}
		md, ok := locator.Descriptor(canonical)
		if !ok {
			return
		}
		reachable[canonical] = struct{}{}
		for _, dep := range locator.DependencyKeysFor(md) {
			visit(dep)
		}
	}
	for _, root := range b.roots {
		visit(root)
	}

	var out []*Candidate
	for _, cand := range selected {
		if _, ok := reachable[cand.Descriptor.Key]; ok {
			out = append(out, cand)
		}
	}
	return out
}

func (b *Builder) bindCandidate(c *Container, cand *Candidate) {
	key := cand.Descriptor.Key
	if cand.CtxProvider != nil {
		c.registry.BindCtx(key, cand.CtxProvider)
		return
	}
	if cand.Descriptor.Lazy {
		md := cand.Descriptor
		inner := cand.Provider
		c.registry.Bind(key, func(r *Resolver) (any, error) {
			child := *r
			return newLazyProxy(c, md, func() (any, error) {
				v, err := inner(&child)
				if err != nil {
					return nil, err
				}
				if init, ok := v.(Initializer); ok {
					if err := init.Init(); err != nil {
						return nil, errors.ErrCreationFailed(key.String(), err)
					}
				}
				return v, nil
			}), nil
		})
		return
	}
	c.registry.Bind(key, cand.Provider)
}

// instantiateEager resolves every non-lazy singleton up front so
// configuration errors surface at build time.
func (b *Builder) instantiateEager(c *Container, selected []*Candidate) error {
	ctx := context.Background()
	for _, cand := range selected {
		md := cand.Descriptor
		if md.Lazy {
			continue
		}
		if md.Scope != "" && md.Scope != ScopeSingleton {
			continue
		}
		if _, err := c.AGet(ctx, md.Key); err != nil {
			return err
		}
	}
	return nil
}
