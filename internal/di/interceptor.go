package di

import "reflect"

// MethodCtx is the invocation context passed to method interceptors. It
// carries everything about the call being intercepted, including a
// mutable Local map for passing state between chained interceptors.
type MethodCtx struct {
	Target  any
	Type    reflect.Type
	Method  string
	Args    []any
	Local   map[string]any
	ScopeID string
}

// Invocation continues the interceptor chain; the final continuation
// invokes the real method.
type Invocation func(*MethodCtx) ([]any, error)

// MethodInterceptor is one unit in the call chain around a method. It may
// observe or rewrite arguments, short-circuit, or wrap the result.
type MethodInterceptor interface {
	Invoke(ctx *MethodCtx, next Invocation) ([]any, error)
}

// MethodInterceptorFunc adapts a function to MethodInterceptor.
type MethodInterceptorFunc func(ctx *MethodCtx, next Invocation) ([]any, error)

// Invoke calls f.
func (f MethodInterceptorFunc) Invoke(ctx *MethodCtx, next Invocation) ([]any, error) {
	return f(ctx, next)
}

// dispatch runs an interceptor chain in order around terminal. The last
// call to next invokes terminal with the (possibly rewritten) context.
func dispatch(chain []MethodInterceptor, mctx *MethodCtx, terminal Invocation) ([]any, error) {
	idx := 0
	var next Invocation
	next = func(c *MethodCtx) ([]any, error) {
		if idx >= len(chain) {
			return terminal(c)
		}
		it := chain[idx]
		idx++
		return it.Invoke(c, next)
	}
	return next(mctx)
}

// ContainerInterceptor observes component construction container-wide.
// Implementations must tolerate concurrent calls; failures are isolated
// and never abort a resolution.
type ContainerInterceptor interface {
	// OnBeforeCreate runs before the provider is invoked.
	OnBeforeCreate(key Key)
	// OnAfterCreate runs after construction; a non-nil return replaces
	// the instance before caching.
	OnAfterCreate(key Key, instance any) any
	// OnError runs when the provider fails.
	OnError(key Key, err error)
}
