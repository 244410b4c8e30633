package loom

import (
	"context"
	"fmt"
	"reflect"

	"github.com/loomdi/loom/internal/di"
	"github.com/loomdi/loom/internal/errors"
)

// Provide registers a constructor for T. The registration binds under
// T's type key; use Named to also bind a name.
func Provide[T any](ctor func(r *Resolver) (T, error), opts ...RegisterOption) Option {
	return optionFunc(func(b *di.Builder) error {
		cand := &di.Candidate{
			Descriptor: &di.Descriptor{
				Key:      di.KeyOf[T](),
				Provided: reflect.TypeOf((*T)(nil)).Elem(),
			},
			Provider: func(r *di.Resolver) (any, error) {
				return ctor(r)
			},
		}
		applyRegisterOpts(cand, opts)
		return b.Add(cand)
	})
}

// ProvideCtx registers a context-accepting constructor for T. Keys bound
// this way resolve only through AGet.
func ProvideCtx[T any](ctor func(ctx context.Context, r *Resolver) (T, error), opts ...RegisterOption) Option {
	return optionFunc(func(b *di.Builder) error {
		cand := &di.Candidate{
			Descriptor: &di.Descriptor{
				Key:      di.KeyOf[T](),
				Provided: reflect.TypeOf((*T)(nil)).Elem(),
			},
			CtxProvider: func(ctx context.Context, r *di.Resolver) (any, error) {
				return ctor(ctx, r)
			},
		}
		applyRegisterOpts(cand, opts)
		return b.Add(cand)
	})
}

// ProvideValue registers an existing value for T.
func ProvideValue[T any](v T, opts ...RegisterOption) Option {
	return Provide(func(*Resolver) (T, error) { return v, nil }, opts...)
}

// ProvideNamed registers a constructor under a name only, with no type
// binding of its own.
func ProvideNamed[T any](name string, ctor func(r *Resolver) (T, error), opts ...RegisterOption) Option {
	return optionFunc(func(b *di.Builder) error {
		cand := &di.Candidate{
			Descriptor: &di.Descriptor{
				Key:      di.Named(name),
				Name:     name,
				Provided: reflect.TypeOf((*T)(nil)).Elem(),
			},
			Provider: func(r *di.Resolver) (any, error) {
				return ctor(r)
			},
		}
		applyRegisterOpts(cand, opts)
		return b.Add(cand)
	})
}

func applyRegisterOpts(cand *di.Candidate, opts []RegisterOption) {
	for _, opt := range opts {
		opt(cand)
	}
}

// Resolve resolves T from the container.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	v, err := c.Get(di.KeyOf[T]())
	if err != nil {
		return zero, err
	}
	return castResolved[T](v)
}

// ResolveNamed resolves a named binding and asserts it to T.
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T
	v, err := c.Get(di.Named(name))
	if err != nil {
		return zero, err
	}
	return castResolved[T](v)
}

// AResolve resolves T with a context, enabling context-accepting
// providers, async initialization hooks, and context-carried scope IDs.
func AResolve[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	v, err := c.AGet(ctx, di.KeyOf[T]())
	if err != nil {
		return zero, err
	}
	return castResolved[T](v)
}

// AResolveNamed is AResolve for a named binding.
func AResolveNamed[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	v, err := c.AGet(ctx, di.Named(name))
	if err != nil {
		return zero, err
	}
	return castResolved[T](v)
}

// ResolveAll resolves every binding compatible with T, in registration
// order.
func ResolveAll[T any](c *Container) ([]T, error) {
	vs, err := c.GetAll(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, err := castResolved[T](v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ResolveAllQualified is ResolveAll narrowed to bindings carrying the
// qualifier.
func ResolveAllQualified[T any](c *Container, qualifier string) ([]T, error) {
	vs, err := c.GetAllQualified(reflect.TypeOf((*T)(nil)).Elem(), qualifier)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, err := castResolved[T](v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Must resolves T or panics. Intended for composition roots where a
// missing binding is a programming error.
func Must[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// MustNamed resolves a named binding or panics.
func MustNamed[T any](c *Container, name string) T {
	v, err := ResolveNamed[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}

func castResolved[T any](v any) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil
	}
	// Lazy and intercepted bindings resolve to a proxy; materialize it
	// when the caller asks for the concrete type.
	if p, ok := v.(*di.Proxy); ok {
		inner, err := p.Value()
		if err != nil {
			return zero, err
		}
		if t, ok := inner.(T); ok {
			return t, nil
		}
	}
	return zero, errors.ErrCreationFailed(
		reflect.TypeOf((*T)(nil)).Elem().String(),
		fmt.Errorf("resolved value has type %T", v),
	)
}
