package loom

import (
	"os"

	"github.com/loomdi/loom/internal/di"
)

// RegisterOption tunes one registration created by Provide and friends.
type RegisterOption func(c *di.Candidate)

// Singleton caches one instance for the container lifetime. This is the
// default lifecycle.
func Singleton() RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Scope = di.ScopeSingleton }
}

// Prototype builds a fresh instance on every resolution.
func Prototype() RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Scope = di.ScopePrototype }
}

// InScope caches one instance per active instance of the named scope.
func InScope(scope string) RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Scope = scope }
}

// Lazy defers construction until the component is first used; the
// resolution returns a proxy.
func Lazy() RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Lazy = true }
}

// Primary marks this registration as the preferred binding when several
// registrations satisfy the same type.
func Primary() RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Primary = true }
}

// Override makes this registration replace earlier registrations for the
// same key.
func Override() RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Override = true }
}

// Named gives the registration a name, resolvable with ResolveNamed and
// used as the entry key for map injection.
func Named(name string) RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Name = name }
}

// WithQualifiers attaches qualifier labels used to narrow collection
// injection.
func WithQualifiers(qs ...string) RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Qualifiers = append(c.Descriptor.Qualifiers, qs...) }
}

// WithTags attaches tags used by tag-filtered container builds.
func WithTags(tags ...string) RegisterOption {
	return func(c *di.Candidate) { c.Descriptor.Tags = append(c.Descriptor.Tags, tags...) }
}

// OnMissing makes this registration a fallback: it binds only when no
// regular registration claims the same key.
func OnMissing() RegisterOption {
	return func(c *di.Candidate) { c.OnMissing = true }
}

// WhenProfile activates the registration only when any of the given
// profiles is active.
func WhenProfile(profiles ...string) RegisterOption {
	return func(c *di.Candidate) {
		c.Condition = func(active []string) bool {
			for _, want := range profiles {
				for _, have := range active {
					if want == have {
						return true
					}
				}
			}
			return false
		}
	}
}

// WhenEnv activates the registration only when the environment variable
// has the given value.
func WhenEnv(name, value string) RegisterOption {
	return func(c *di.Candidate) {
		c.Condition = func([]string) bool {
			return os.Getenv(name) == value
		}
	}
}

// Intercept routes calls to one method through an interceptor instance.
// Lower orders run closer to the caller.
func Intercept(method string, it MethodInterceptor, order int) RegisterOption {
	return func(c *di.Candidate) {
		c.Descriptor.Interceptors = append(c.Descriptor.Interceptors, di.InterceptorBinding{
			Method: method,
			Ref:    di.InterceptorRef{Value: it},
			Order:  order,
		})
	}
}

// InterceptKey routes calls to one method through an interceptor
// resolved from the container at call time.
func InterceptKey(method string, key Key, order int) RegisterOption {
	return func(c *di.Candidate) {
		c.Descriptor.Interceptors = append(c.Descriptor.Interceptors, di.InterceptorBinding{
			Method: method,
			Ref:    di.InterceptorRef{Key: key},
			Order:  order,
		})
	}
}

// WithDeps declares the registration's dependencies for graph export and
// build-time validation. Use the Use helpers to build the entries.
func WithDeps(deps ...Dep) RegisterOption {
	return func(c *di.Candidate) {
		c.Descriptor.Dependencies = append(c.Descriptor.Dependencies, deps...)
	}
}

// Use declares a required dependency on T for the named parameter.
func Use[T any](param string) Dep {
	return Dep{Parameter: param, Key: di.KeyOf[T](), Kind: di.DepSingle}
}

// UseNamed declares a required dependency on a named binding.
func UseNamed(param, name string) Dep {
	return Dep{Parameter: param, Key: di.Named(name), Kind: di.DepSingle}
}

// UseOptional declares a dependency on T that tolerates absence.
func UseOptional[T any](param string) Dep {
	return Dep{Parameter: param, Key: di.KeyOf[T](), Kind: di.DepSingle, Optional: true}
}

// UseList declares a dependency on every binding compatible with T,
// optionally narrowed by qualifier.
func UseList[T any](param, qualifier string) Dep {
	return Dep{Parameter: param, Key: di.KeyOf[T](), Kind: di.DepList, Qualifier: qualifier}
}

// UseMap declares a dependency on every binding compatible with T as a
// map keyed by declared name.
func UseMap[T any](param, qualifier string) Dep {
	return Dep{Parameter: param, Key: di.KeyOf[T](), Kind: di.DepMap, Qualifier: qualifier}
}
