package loom

import (
	"github.com/loomdi/loom/internal/errors"
)

// Error is the structured error type produced by the container.
type Error = errors.Error

// CycleEdge describes one hop of a reported dependency cycle.
type CycleEdge = errors.CycleEdge

// Error classification helpers.
var (
	IsNotFound           = errors.IsNotFound
	IsCreationFailed     = errors.IsCreationFailed
	IsCircularDependency = errors.IsCircularDependency
	IsScopeError         = errors.IsScopeError
	IsAsyncRequired      = errors.IsAsyncRequired
	IsInvalidBinding     = errors.IsInvalidBinding

	// CycleChain and CycleEdges extract the structured cycle report from
	// a circular-dependency error.
	CycleChain = errors.CycleChain
	CycleEdges = errors.CycleEdges

	// BindingViolations extracts the aggregated messages from an
	// invalid-binding error.
	BindingViolations = errors.BindingViolations
)

// Sentinel errors usable with errors.Is.
var (
	ErrNotFound           = errors.ErrNotFoundSentinel
	ErrCreationFailed     = errors.ErrCreationFailedSentinel
	ErrCircularDependency = errors.ErrCircularSentinel
	ErrScope              = errors.ErrScopeSentinel
	ErrAsyncRequired      = errors.ErrAsyncSentinel
	ErrInvalidBinding     = errors.ErrInvalidBindingSentinel
	ErrContainerClosed    = errors.ErrContainerClosed
	ErrNilProvider        = errors.ErrNilProvider
	ErrBuilderFinalized   = errors.ErrBuilderFinalized
)
