package di

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/loomdi/loom/internal/errors"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Proxy stands in for a component: it defers construction until first
// use and routes method calls through the descriptor's interceptor
// chains. Construction runs at most once, even under concurrent access.
type Proxy struct {
	c  *Container
	md *Descriptor

	mu      sync.Mutex
	target  any
	builder func() (any, error)

	// chains caches resolved interceptor chains per method; the cache is
	// invalidated whenever the scope activation signature changes, since
	// scoped interceptors may resolve to different instances.
	chainMu  sync.Mutex
	chainSig string
	chains   map[string][]MethodInterceptor
}

// newProxyForTarget wraps an already-built instance for interception.
func newProxyForTarget(c *Container, md *Descriptor, target any) *Proxy {
	return &Proxy{c: c, md: md, target: target}
}

// newLazyProxy defers construction to builder; the instance is built on
// first access.
func newLazyProxy(c *Container, md *Descriptor, builder func() (any, error)) *Proxy {
	return &Proxy{c: c, md: md, builder: builder}
}

// Value materializes and returns the underlying component.
func (p *Proxy) Value() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target != nil {
		return p.target, nil
	}
	if p.builder == nil {
		return nil, errors.ErrCreationFailed(p.md.Key.String(), errors.New("proxy has neither target nor builder"))
	}
	v, err := p.builder()
	if err != nil {
		return nil, err
	}
	p.target = v
	p.builder = nil
	return v, nil
}

// Built reports whether the underlying component has been constructed.
func (p *Proxy) Built() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target != nil
}

// Invoke calls a method on the component through its interceptor chain.
// Methods taking a context as their first parameter must be called
// through InvokeContext.
func (p *Proxy) Invoke(method string, args ...any) ([]any, error) {
	target, err := p.Value()
	if err != nil {
		return nil, err
	}
	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return nil, errors.ErrCreationFailed(p.md.Key.String(), errors.New("no such method: "+method))
	}
	if methodWantsContext(m.Type()) {
		return nil, errors.ErrAsyncMethod(method)
	}
	return p.dispatch(nil, target, m, method, args)
}

// InvokeContext calls a method with a context. When the method's first
// parameter is a context it is passed through; otherwise the call
// behaves like Invoke.
func (p *Proxy) InvokeContext(ctx context.Context, method string, args ...any) ([]any, error) {
	target, err := p.Value()
	if err != nil {
		return nil, err
	}
	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return nil, errors.ErrCreationFailed(p.md.Key.String(), errors.New("no such method: "+method))
	}
	if methodWantsContext(m.Type()) {
		args = append([]any{ctx}, args...)
	}
	return p.dispatch(ctx, target, m, method, args)
}

func methodWantsContext(t reflect.Type) bool {
	return t.NumIn() > 0 && t.In(0) == contextType
}

func (p *Proxy) dispatch(ctx context.Context, target any, m reflect.Value, method string, args []any) ([]any, error) {
	chain, err := p.chainFor(ctx, method)
	if err != nil {
		return nil, err
	}
	mctx := &MethodCtx{
		Target:  target,
		Type:    reflect.TypeOf(target),
		Method:  method,
		Args:    args,
		Local:   make(map[string]any),
		ScopeID: p.scopeID(ctx),
	}
	terminal := func(c *MethodCtx) ([]any, error) {
		return callMethod(m, c.Args)
	}
	return dispatch(chain, mctx, terminal)
}

// scopeID picks the scope instance ID delivered to interceptors. For a
// component bound to a custom scope it is that scope's ID, context-carried
// first, then the manager's innermost activation. Components without a
// custom scope report the single active instance ID when exactly one
// scope is active; ambiguity reports empty.
func (p *Proxy) scopeID(ctx context.Context) string {
	scope := p.md.Scope
	if scope != "" && scope != ScopeSingleton && scope != ScopePrototype {
		if ctx != nil {
			if id, ok := ScopeIDFrom(ctx, scope); ok {
				return id
			}
		}
		if id, ok := p.c.scopes.CurrentID(scope); ok {
			return id
		}
		return ""
	}
	ids := p.c.scopes.ActiveIDs()
	if ctx != nil {
		for s, id := range ScopeIDsFrom(ctx) {
			ids[s] = id
		}
	}
	if len(ids) == 1 {
		for _, id := range ids {
			return id
		}
	}
	return ""
}

// chainSigFor fingerprints the scope state relevant to interceptor
// resolution: the manager's activation signature plus any context-carried
// instance IDs, so a chain cached under one scope instance is never
// reused for another.
func (p *Proxy) chainSigFor(ctx context.Context) string {
	sig := p.c.scopes.Signature()
	if ctx == nil {
		return sig
	}
	ids := ScopeIDsFrom(ctx)
	if len(ids) == 0 {
		return sig
	}
	scopes := make([]string, 0, len(ids))
	for s := range ids {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	var b strings.Builder
	b.WriteString(sig)
	for _, s := range scopes {
		b.WriteString("|ctx:")
		b.WriteString(s)
		b.WriteByte('=')
		b.WriteString(ids[s])
	}
	return b.String()
}

// chainFor resolves the interceptor chain for one method, caching per
// scope signature.
func (p *Proxy) chainFor(ctx context.Context, method string) ([]MethodInterceptor, error) {
	sig := p.chainSigFor(ctx)
	p.chainMu.Lock()
	defer p.chainMu.Unlock()
	if p.chains == nil || p.chainSig != sig {
		p.chains = make(map[string][]MethodInterceptor)
		p.chainSig = sig
	}
	if chain, ok := p.chains[method]; ok {
		return chain, nil
	}
	bindings := p.md.MethodInterceptors(method)
	chain := make([]MethodInterceptor, 0, len(bindings))
	for _, b := range bindings {
		if b.Ref.Value != nil {
			chain = append(chain, b.Ref.Value)
			continue
		}
		var v any
		var err error
		if ctx != nil {
			v, err = p.c.AGet(ctx, b.Ref.Key)
		} else {
			v, err = p.c.Get(b.Ref.Key)
		}
		if err != nil {
			return nil, errors.ErrCreationFailed(p.md.Key.String(), err)
		}
		it, ok := v.(MethodInterceptor)
		if !ok {
			return nil, errors.ErrCreationFailed(p.md.Key.String(),
				errors.New("bound interceptor does not implement MethodInterceptor: "+b.Ref.Key.String()))
		}
		chain = append(chain, it)
	}
	p.chains[method] = chain
	return chain, nil
}

// callMethod converts loosely-typed args, invokes the method, and splits
// a trailing error return out of the results.
func callMethod(m reflect.Value, args []any) ([]any, error) {
	mt := m.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			pt = mt.In(mt.NumIn() - 1).Elem()
		} else if i < mt.NumIn() {
			pt = mt.In(i)
		}
		if a == nil {
			if pt == nil {
				return nil, errors.New("too many arguments for method")
			}
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(a)
		if pt != nil && av.Type() != pt && av.Type().ConvertibleTo(pt) && pt.Kind() != reflect.Interface {
			av = av.Convert(pt)
		}
		in[i] = av
	}
	results := m.Call(in)
	out := make([]any, 0, len(results))
	var callErr error
	for i, rv := range results {
		if i == len(results)-1 && rv.Type() == errorType {
			if !rv.IsNil() {
				callErr = rv.Interface().(error)
			}
			continue
		}
		out = append(out, rv.Interface())
	}
	return out, callErr
}
