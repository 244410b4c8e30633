package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomdi/loom/internal/errors"
)

func TestScopeManager_ActivateRelease(t *testing.T) {
	m := NewScopeManager()

	_, ok := m.CurrentID(ScopeRequest)
	assert.False(t, ok)

	tok, err := m.Activate(ScopeRequest, "r1")
	require.NoError(t, err)

	id, ok := m.CurrentID(ScopeRequest)
	require.True(t, ok)
	assert.Equal(t, "r1", id)
	assert.True(t, m.Active(ScopeRequest))

	m.Release(tok)
	assert.False(t, m.Active(ScopeRequest))
}

func TestScopeManager_NestedActivation(t *testing.T) {
	m := NewScopeManager()

	tok1, err := m.Activate(ScopeRequest, "outer")
	require.NoError(t, err)
	tok2, err := m.Activate(ScopeRequest, "inner")
	require.NoError(t, err)

	id, _ := m.CurrentID(ScopeRequest)
	assert.Equal(t, "inner", id)

	m.Release(tok2)
	id, _ = m.CurrentID(ScopeRequest)
	assert.Equal(t, "outer", id)

	m.Release(tok1)
	assert.False(t, m.Active(ScopeRequest))
}

func TestScopeManager_ReleaseRestoresExactState(t *testing.T) {
	m := NewScopeManager()

	tok1, err := m.Activate(ScopeRequest, "a")
	require.NoError(t, err)
	_, err = m.Activate(ScopeRequest, "b")
	require.NoError(t, err)
	_, err = m.Activate(ScopeRequest, "c")
	require.NoError(t, err)

	// Releasing the outermost token truncates past the unreleased inner
	// activations.
	m.Release(tok1)
	assert.False(t, m.Active(ScopeRequest))
}

func TestScopeManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewScopeManager()

	tok, err := m.Activate(ScopeRequest, "r1")
	require.NoError(t, err)
	m.Release(tok)
	m.Release(tok)
	m.Release(Token{})
	assert.False(t, m.Active(ScopeRequest))
}

func TestScopeManager_UnknownScope(t *testing.T) {
	m := NewScopeManager()

	_, err := m.Activate("tenant", "t1")
	require.Error(t, err)
	assert.True(t, errors.IsScopeError(err))

	require.NoError(t, m.Declare("tenant"))
	_, err = m.Activate("tenant", "t1")
	assert.NoError(t, err)
}

func TestScopeManager_ReservedNames(t *testing.T) {
	m := NewScopeManager()

	err := m.Declare(ScopeSingleton)
	require.Error(t, err)
	assert.True(t, errors.IsScopeError(err))

	err = m.Declare(ScopePrototype)
	require.Error(t, err)

	err = m.Declare("")
	require.Error(t, err)
}

func TestScopeManager_Signature(t *testing.T) {
	m := NewScopeManager()
	require.NoError(t, m.Declare("tenant"))

	assert.Equal(t, "", m.Signature())

	tok1, err := m.Activate(ScopeRequest, "r1")
	require.NoError(t, err)
	sig1 := m.Signature()
	assert.Equal(t, "request=r1", sig1)

	tok2, err := m.Activate("tenant", "t1")
	require.NoError(t, err)
	sig2 := m.Signature()
	assert.Equal(t, "request=r1;tenant=t1", sig2)
	assert.NotEqual(t, sig1, sig2)

	m.Release(tok2)
	assert.Equal(t, sig1, m.Signature())
	m.Release(tok1)
	assert.Equal(t, "", m.Signature())
}

func TestScopeID_ContextPropagation(t *testing.T) {
	ctx := context.Background()

	_, ok := ScopeIDFrom(ctx, ScopeRequest)
	assert.False(t, ok)

	ctx1 := WithScopeID(ctx, ScopeRequest, "r1")
	id, ok := ScopeIDFrom(ctx1, ScopeRequest)
	require.True(t, ok)
	assert.Equal(t, "r1", id)

	// Derived contexts override without mutating the parent.
	ctx2 := WithScopeID(ctx1, ScopeRequest, "r2")
	id, _ = ScopeIDFrom(ctx2, ScopeRequest)
	assert.Equal(t, "r2", id)
	id, _ = ScopeIDFrom(ctx1, ScopeRequest)
	assert.Equal(t, "r1", id)
}

func TestNewScopeID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewScopeID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
