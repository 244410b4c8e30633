// Package loom is a small dependency-injection container: providers are
// registered against typed or named keys, instances are cached per
// lifecycle scope, and resolution walks constructor dependencies with
// cycle detection. The package re-exports the engine types and adds
// generic helpers so call sites stay free of reflection.
package loom

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/loomdi/loom/internal/di"
	"github.com/loomdi/loom/internal/logger"
)

// Engine aliases. The internal/di package holds the implementation;
// these keep user code on a single import.
type (
	Key                  = di.Key
	Container            = di.Container
	Descriptor           = di.Descriptor
	Resolver             = di.Resolver
	Provider             = di.Provider
	CtxProvider          = di.CtxProvider
	Candidate            = di.Candidate
	Observer             = di.Observer
	MethodCtx            = di.MethodCtx
	Invocation           = di.Invocation
	MethodInterceptor    = di.MethodInterceptor
	MethodInterceptorFunc = di.MethodInterceptorFunc
	ContainerInterceptor = di.ContainerInterceptor
	Proxy                = di.Proxy
	Token                = di.Token
	Stats                = di.Stats
	Graph                = di.Graph
	ExportOptions        = di.ExportOptions
	DeferredProvider     = di.DeferredProvider
	Dep                  = di.DepRequest
	Initializer          = di.Initializer
	AsyncInitializer     = di.AsyncInitializer
	Disposer             = di.Disposer
	ContextDisposer      = di.ContextDisposer
	HealthChecker        = di.HealthChecker
	ScopeManager         = di.ScopeManager
)

// Scope names.
const (
	ScopeSingleton   = di.ScopeSingleton
	ScopePrototype   = di.ScopePrototype
	ScopeRequest     = di.ScopeRequest
	ScopeSession     = di.ScopeSession
	ScopeTransaction = di.ScopeTransaction
)

// Graph export formats.
const (
	FormatDOT  = di.FormatDOT
	FormatJSON = di.FormatJSON
)

// Key constructors.
var (
	NamedKey   = di.Named
	TypeKey    = di.TypeKey
	KeyFor     = di.KeyFor
	NewScopeID = di.NewScopeID

	// WithScopeID and ScopeIDFrom propagate scope instance IDs through
	// contexts for AGet.
	WithScopeID = di.WithScopeID
	ScopeIDFrom = di.ScopeIDFrom

	NewDeferredProvider = di.NewDeferredProvider
)

// KeyOf returns the type key for T.
func KeyOf[T any]() Key {
	return di.KeyOf[T]()
}

// profileEnv names the environment variable supplying default profiles
// when none are set explicitly.
const profileEnv = "LOOM_PROFILE"

// Option configures a container under construction: either a
// registration (see Provide) or a container setting.
type Option interface {
	apply(b *di.Builder) error
}

type optionFunc func(b *di.Builder) error

func (f optionFunc) apply(b *di.Builder) error { return f(b) }

// New assembles a container from the given options. Registrations are
// validated as a whole: unsatisfied required dependencies and dependency
// cycles fail construction. When no profiles are set, the LOOM_PROFILE
// environment variable supplies them (comma-separated).
func New(opts ...Option) (*Container, error) {
	b := di.NewBuilder()
	if env := os.Getenv(profileEnv); env != "" {
		var profiles []string
		for _, p := range strings.Split(env, ",") {
			if p = strings.TrimSpace(p); p != "" {
				profiles = append(profiles, p)
			}
		}
		b.SetProfiles(profiles...)
	}
	for _, opt := range opts {
		if err := opt.apply(b); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// WithLogger routes container logging through a zap logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetLogger(logger.Wrap(l))
		return nil
	})
}

// WithDevelopmentLogger routes container logging through a development
// zap logger.
func WithDevelopmentLogger() Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetLogger(logger.NewDevelopmentLogger())
		return nil
	})
}

// WithProfiles sets the active profiles, overriding LOOM_PROFILE.
func WithProfiles(profiles ...string) Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetProfiles(profiles...)
		return nil
	})
}

// WithScopes declares custom scope names.
func WithScopes(names ...string) Option {
	return optionFunc(func(b *di.Builder) error {
		for _, n := range names {
			b.DeclareScope(n)
		}
		return nil
	})
}

// WithObserver attaches a resolution observer.
func WithObserver(o Observer) Option {
	return optionFunc(func(b *di.Builder) error {
		b.AddObserver(o)
		return nil
	})
}

// WithInterceptor attaches a container-wide creation interceptor.
func WithInterceptor(ci ContainerInterceptor) Option {
	return optionFunc(func(b *di.Builder) error {
		b.AddInterceptor(ci)
		return nil
	})
}

// WithParent sets a fallback container consulted when a key has no local
// binding.
func WithParent(parent *Container) Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetParent(parent)
		return nil
	})
}

// EagerSingletons instantiates every non-lazy singleton during New.
func EagerSingletons() Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetEager(true)
		return nil
	})
}

// WithTagFilter restricts the container to registrations carrying any of
// the given tags.
func WithTagFilter(tags ...string) Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetTagFilter(tags...)
		return nil
	})
}

// WithRoots restricts the container to the dependency subgraph reachable
// from the given keys.
func WithRoots(roots ...Key) Option {
	return optionFunc(func(b *di.Builder) error {
		b.SetRoots(roots...)
		return nil
	})
}

// PromoteScope overrides the declared scope of one key.
func PromoteScope(key Key, scope string) Option {
	return optionFunc(func(b *di.Builder) error {
		b.PromoteScope(key, scope)
		return nil
	})
}

// WithDeferred attaches a deferred provider source, bound after the
// container is assembled.
func WithDeferred(d *DeferredProvider) Option {
	return optionFunc(func(b *di.Builder) error {
		b.AddDeferred(d)
		return nil
	})
}
