package di

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdi/loom/internal/errors"
)

type greeter struct {
	calls atomic.Int32
}

func (g *greeter) Greet(name string) string {
	g.calls.Add(1)
	return "hello " + name
}

func (g *greeter) Fetch(ctx context.Context, id string) (string, error) {
	return "record:" + id, nil
}

func (g *greeter) Fail() error {
	return errors.New("boom")
}

type taggingInterceptor struct {
	tag   string
	trail *[]string
}

func (t *taggingInterceptor) Invoke(ctx *MethodCtx, next Invocation) ([]any, error) {
	*t.trail = append(*t.trail, t.tag+"-before")
	out, err := next(ctx)
	*t.trail = append(*t.trail, t.tag+"-after")
	return out, err
}

func interceptedContainer(t *testing.T, trail *[]string) *Container {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key: KeyOf[*greeter](),
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Value: &taggingInterceptor{tag: "outer", trail: trail}}, Order: 0},
				{Method: "Greet", Ref: InterceptorRef{Value: &taggingInterceptor{tag: "inner", trail: trail}}, Order: 5},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestProxy_InterceptorOrder(t *testing.T) {
	var trail []string
	c := interceptedContainer(t, &trail)

	v, err := c.Get(KeyOf[*greeter]())
	require.NoError(t, err)
	p, ok := v.(*Proxy)
	require.True(t, ok)

	out, err := p.Invoke("Greet", "world")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello world", out[0])
	assert.Equal(t, []string{"outer-before", "inner-before", "inner-after", "outer-after"}, trail)
}

func TestProxy_UninterceptedMethodPassesThrough(t *testing.T) {
	var trail []string
	c := interceptedContainer(t, &trail)

	v, err := c.Get(KeyOf[*greeter]())
	require.NoError(t, err)
	p := v.(*Proxy)

	_, err = p.Invoke("Fail")
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Empty(t, trail)
}

func TestProxy_ContextMethodRequiresInvokeContext(t *testing.T) {
	var trail []string
	c := interceptedContainer(t, &trail)

	v, err := c.Get(KeyOf[*greeter]())
	require.NoError(t, err)
	p := v.(*Proxy)

	_, err = p.Invoke("Fetch", "42")
	require.Error(t, err)
	assert.True(t, errors.IsAsyncRequired(err))

	out, err := p.InvokeContext(context.Background(), "Fetch", "42")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "record:42", out[0])
}

func TestProxy_InterceptorCanShortCircuit(t *testing.T) {
	b := NewBuilder()
	short := MethodInterceptorFunc(func(ctx *MethodCtx, next Invocation) ([]any, error) {
		return []any{"cached"}, nil
	})
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key: KeyOf[*greeter](),
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Value: short}},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)

	v, err := c.Get(KeyOf[*greeter]())
	require.NoError(t, err)
	p := v.(*Proxy)

	out, err := p.Invoke("Greet", "world")
	require.NoError(t, err)
	assert.Equal(t, []any{"cached"}, out)

	inner, err := p.Value()
	require.NoError(t, err)
	assert.Zero(t, inner.(*greeter).calls.Load())
}

func TestProxy_InterceptorRewritesArgs(t *testing.T) {
	b := NewBuilder()
	upper := MethodInterceptorFunc(func(ctx *MethodCtx, next Invocation) ([]any, error) {
		ctx.Args[0] = strings.ToUpper(ctx.Args[0].(string))
		return next(ctx)
	})
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key: KeyOf[*greeter](),
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Value: upper}},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)

	p := mustProxy(t, c)
	out, err := p.Invoke("Greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello WORLD", out[0])
}

func TestProxy_InterceptorResolvedFromContainer(t *testing.T) {
	var trail []string
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{Key: Named("audit")},
		Provider: func(r *Resolver) (any, error) {
			return &taggingInterceptor{tag: "audit", trail: &trail}, nil
		},
	}))
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key: KeyOf[*greeter](),
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Key: Named("audit")}},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)

	p := mustProxy(t, c)
	_, err = p.Invoke("Greet", "world")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit-before", "audit-after"}, trail)
}

func TestProxy_LazyBuildsOnce(t *testing.T) {
	var built atomic.Int32
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{Key: KeyOf[*greeter](), Lazy: true},
		Provider: func(r *Resolver) (any, error) {
			built.Add(1)
			return &greeter{}, nil
		},
	}))
	c, err := b.Build()
	require.NoError(t, err)

	p := mustProxy(t, c)
	assert.False(t, p.Built())
	assert.Equal(t, int32(0), built.Load())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Invoke("Greet", "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, p.Built())
	assert.Equal(t, int32(1), built.Load())
}

func TestProxy_LazyBuildFailurePropagates(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{Key: Named("broken"), Lazy: true},
		Provider: func(r *Resolver) (any, error) {
			return nil, errors.New("cannot build")
		},
	}))
	c, err := b.Build()
	require.NoError(t, err)

	v, err := c.Get(Named("broken"))
	require.NoError(t, err)
	p := v.(*Proxy)

	_, err = p.Value()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot build")
}

func TestProxy_UnknownMethod(t *testing.T) {
	var trail []string
	c := interceptedContainer(t, &trail)

	p := mustProxy(t, c)
	_, err := p.Invoke("Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such method")
}

func scopeRecordingContainer(t *testing.T, scope string, seen *[]string) *Container {
	t.Helper()
	record := MethodInterceptorFunc(func(ctx *MethodCtx, next Invocation) ([]any, error) {
		*seen = append(*seen, ctx.ScopeID)
		return next(ctx)
	})
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key:   KeyOf[*greeter](),
			Scope: scope,
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Value: record}},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestProxy_ScopeIDFromActivatedScope(t *testing.T) {
	var seen []string
	c := scopeRecordingContainer(t, ScopeRequest, &seen)

	_, tok, err := c.ActivateScope(ScopeRequest, "req-7")
	require.NoError(t, err)
	defer c.DeactivateScope(tok)

	p := mustProxy(t, c)
	_, err = p.Invoke("Greet", "x")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "req-7", seen[0])
}

func TestProxy_ScopeIDFromContext(t *testing.T) {
	var seen []string
	c := scopeRecordingContainer(t, ScopeRequest, &seen)

	ctx := WithScopeID(context.Background(), ScopeRequest, "ctx-9")
	v, err := c.AGet(ctx, KeyOf[*greeter]())
	require.NoError(t, err)
	p := v.(*Proxy)

	_, err = p.InvokeContext(ctx, "Greet", "x")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "ctx-9", seen[0])
}

func TestProxy_ScopeIDForUnscopedComponent(t *testing.T) {
	var seen []string
	c := scopeRecordingContainer(t, ScopeSingleton, &seen)

	p := mustProxy(t, c)
	_, err := p.Invoke("Greet", "x")
	require.NoError(t, err)

	_, tok, err := c.ActivateScope(ScopeSession, "sess-1")
	require.NoError(t, err)
	_, err = p.Invoke("Greet", "x")
	require.NoError(t, err)
	c.DeactivateScope(tok)

	require.Len(t, seen, 2)
	assert.Equal(t, "", seen[0])
	assert.Equal(t, "sess-1", seen[1])
}

func TestProxy_ScopedInterceptorPerScopeInstance(t *testing.T) {
	var created atomic.Int32
	var trail []string
	b := NewBuilder()
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{Key: Named("audit"), Scope: ScopeRequest},
		Provider: func(r *Resolver) (any, error) {
			created.Add(1)
			return &taggingInterceptor{tag: "audit", trail: &trail}, nil
		},
	}))
	require.NoError(t, b.Add(&Candidate{
		Descriptor: &Descriptor{
			Key: KeyOf[*greeter](),
			Interceptors: []InterceptorBinding{
				{Method: "Greet", Ref: InterceptorRef{Key: Named("audit")}},
			},
		},
		Provider: func(r *Resolver) (any, error) { return &greeter{}, nil },
	}))
	c, err := b.Build()
	require.NoError(t, err)

	p := mustProxy(t, c)
	first := WithScopeID(context.Background(), ScopeRequest, "r1")
	second := WithScopeID(context.Background(), ScopeRequest, "r2")

	_, err = p.InvokeContext(first, "Greet", "x")
	require.NoError(t, err)
	_, err = p.InvokeContext(first, "Greet", "x")
	require.NoError(t, err)
	assert.Equal(t, int32(1), created.Load())

	// A different scope instance must not reuse the cached chain.
	_, err = p.InvokeContext(second, "Greet", "x")
	require.NoError(t, err)
	assert.Equal(t, int32(2), created.Load())
}

func mustProxy(t *testing.T, c *Container) *Proxy {
	t.Helper()
	v, err := c.Get(KeyOf[*greeter]())
	require.NoError(t, err)
	p, ok := v.(*Proxy)
	require.True(t, ok)
	return p
}
