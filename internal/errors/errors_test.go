package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrNotFound_Message(t *testing.T) {
	err := ErrNotFound("Database", "UserService")
	assert.Equal(t, "no provider found for key 'Database' (required by: 'UserService')", err.Error())
	assert.True(t, IsNotFound(err))

	top := ErrNotFound("Database", "")
	assert.Contains(t, top.Error(), "required by: 'init'")
}

func TestErrCreationFailed_WrapsCause(t *testing.T) {
	cause := New("connection refused")
	err := ErrCreationFailed("Database", cause)

	assert.True(t, IsCreationFailed(err))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "Database")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrCircularDependency_StructuredChain(t *testing.T) {
	chain := []string{"A", "B", "A"}
	edges := []CycleEdge{
		{Key: "A", Parameter: "b", Scope: "singleton"},
		{Key: "B", Parameter: "a", Scope: "singleton"},
		{Key: "A"},
	}
	err := ErrCircularDependency(chain, edges)

	assert.True(t, IsCircularDependency(err))
	assert.Equal(t, "circular dependency detected: A -> B -> A", err.Error())
	assert.Equal(t, chain, CycleChain(err))
	assert.Equal(t, edges, CycleEdges(err))
}

func TestCycleExtractors_WrongErrorKind(t *testing.T) {
	assert.Nil(t, CycleChain(New("plain")))
	assert.Nil(t, CycleEdges(ErrNotFound("X", "")))
	assert.Nil(t, BindingViolations(New("plain")))
}

func TestErrInvalidBinding_Aggregates(t *testing.T) {
	violations := []string{"A requires 'B' which is not bound", "C requires 'D' which is not bound"}
	err := ErrInvalidBinding(violations)

	assert.True(t, IsInvalidBinding(err))
	assert.Contains(t, err.Error(), violations[0])
	assert.Contains(t, err.Error(), violations[1])
	assert.Equal(t, violations, BindingViolations(err))
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrScope("request", "no active instance"))
	assert.True(t, IsScopeError(err))
	assert.False(t, IsNotFound(err))

	assert.True(t, Is(ErrAsyncRequired("X"), ErrAsyncSentinel))
	assert.True(t, IsAsyncRequired(ErrAsyncMethod("Fetch")))
}

func TestError_WithContext(t *testing.T) {
	err := ErrScope("tenant", "unknown scope").WithContext("attempt", 2)
	assert.Equal(t, 2, err.Context["attempt"])
	assert.Equal(t, "tenant", err.Context["scope"])
}

func TestError_AsUnwrapsThroughWrapping(t *testing.T) {
	inner := ErrCreationFailed("X", New("boom"))
	wrapped := fmt.Errorf("resolving: %w", inner)

	var e *Error
	require.True(t, As(wrapped, &e))
	assert.Equal(t, CodeCreationFailed, e.Code)
}
