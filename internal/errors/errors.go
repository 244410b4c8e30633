package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error code constants for structured errors.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeCreationFailed  = "CREATION_FAILED"
	CodeCircular        = "CIRCULAR_DEPENDENCY"
	CodeScopeError      = "SCOPE_ERROR"
	CodeAsyncRequired   = "ASYNC_RESOLUTION_REQUIRED"
	CodeInvalidBinding  = "INVALID_BINDING"
	CodeSerialization   = "SERIALIZATION_ERROR"
	CodeLifecycleError  = "LIFECYCLE_ERROR"
	CodeInvalidProvider = "INVALID_PROVIDER"
)

// Standard engine errors.
var (
	ErrNilProvider      = errors.New("provider must not be nil")
	ErrContainerClosed  = errors.New("container already shut down")
	ErrBuilderFinalized = errors.New("builder already finalized")
)

// Error is a structured error with a stable code and optional context.
type Error struct {
	Code      string
	Message   string
	Cause     error
	Timestamp time.Time
	Context   map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by error code, allowing comparison against sentinel errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithContext adds a context value to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrNotFound reports an unbound resolution key. The origin names the
// component whose dependency request triggered the lookup; "init" marks a
// direct top-level request.
func ErrNotFound(key, origin string) *Error {
	if origin == "" {
		origin = "init"
	}
	return &Error{
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("no provider found for key '%s' (required by: '%s')", key, origin),
		Timestamp: time.Now(),
		Context:   map[string]any{"key": key, "origin": origin},
	}
}

// ErrCreationFailed wraps a provider failure with the requested key.
func ErrCreationFailed(key string, cause error) *Error {
	return &Error{
		Code:      CodeCreationFailed,
		Message:   fmt.Sprintf("failed to create component for key '%s'", key),
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]any{"key": key},
	}
}

// CycleEdge is one hop of a dependency cycle: the key under construction,
// the parameter that requested it, and the scope it resolves in.
type CycleEdge struct {
	Key       string
	Parameter string
	Scope     string
}

// ErrCircularDependency reports a dependency cycle. The chain lists every
// key on the in-flight resolution path ending at the repeated key; edges
// carry per-hop diagnostics and are preserved as structured data.
func ErrCircularDependency(chain []string, edges []CycleEdge) *Error {
	return &Error{
		Code:      CodeCircular,
		Message:   "circular dependency detected: " + strings.Join(chain, " -> "),
		Timestamp: time.Now(),
		Context:   map[string]any{"chain": chain, "edges": edges},
	}
}

// CycleChain extracts the structured chain from a circular-dependency
// error, or nil when err is not one.
func CycleChain(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeCircular {
		if chain, ok := e.Context["chain"].([]string); ok {
			return chain
		}
	}
	return nil
}

// CycleEdges extracts the per-hop diagnostics from a circular-dependency
// error, or nil when err is not one.
func CycleEdges(err error) []CycleEdge {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeCircular {
		if edges, ok := e.Context["edges"].([]CycleEdge); ok {
			return edges
		}
	}
	return nil
}

// ErrScope reports an unknown scope name or a scope accessed with no
// active instance id.
func ErrScope(scope, message string) *Error {
	return &Error{
		Code:      CodeScopeError,
		Message:   message,
		Timestamp: time.Now(),
		Context:   map[string]any{"scope": scope},
	}
}

// ErrAsyncRequired reports that a synchronous resolution path hit an
// asynchronous construction or initialization step.
func ErrAsyncRequired(key string) *Error {
	return &Error{
		Code:      CodeAsyncRequired,
		Message:   fmt.Sprintf("synchronous Get hit an asynchronous step for key '%s'; use AGet instead", key),
		Timestamp: time.Now(),
		Context:   map[string]any{"key": key},
	}
}

// ErrAsyncMethod reports a synchronous proxy invocation of a method that
// requires a context (the asynchronous marker).
func ErrAsyncMethod(method string) *Error {
	return &Error{
		Code:      CodeAsyncRequired,
		Message:   fmt.Sprintf("method '%s' requires a context; use InvokeContext", method),
		Timestamp: time.Now(),
		Context:   map[string]any{"method": method},
	}
}

// ErrInvalidBinding aggregates startup validation failures into one report.
func ErrInvalidBinding(violations []string) *Error {
	msg := "invalid bindings:"
	for _, v := range violations {
		msg += "\n- " + v
	}
	return &Error{
		Code:      CodeInvalidBinding,
		Message:   msg,
		Timestamp: time.Now(),
		Context:   map[string]any{"violations": violations},
	}
}

// BindingViolations extracts the individual violations from an
// invalid-binding error, or nil when err is not one.
func BindingViolations(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeInvalidBinding {
		if vs, ok := e.Context["violations"].([]string); ok {
			return vs
		}
	}
	return nil
}

// ErrSerialization reports a proxy target that cannot be transported.
func ErrSerialization(message string, cause error) *Error {
	return &Error{
		Code:      CodeSerialization,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// ErrLifecycle reports container lifecycle misuse (double shutdown,
// registration after build, and so on).
func ErrLifecycle(operation string, cause error) *Error {
	return &Error{
		Code:      CodeLifecycleError,
		Message:   "container error during " + operation,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]any{"operation": operation},
	}
}

// ErrInvalidProvider reports a structurally unusable registration.
func ErrInvalidProvider(key string, cause error) *Error {
	return &Error{
		Code:      CodeInvalidProvider,
		Message:   fmt.Sprintf("invalid provider for key '%s'", key),
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]any{"key": key},
	}
}

// Sentinel errors for use with errors.Is comparisons.
var (
	ErrNotFoundSentinel       = &Error{Code: CodeNotFound}
	ErrCreationFailedSentinel = &Error{Code: CodeCreationFailed}
	ErrCircularSentinel       = &Error{Code: CodeCircular}
	ErrScopeSentinel          = &Error{Code: CodeScopeError}
	ErrAsyncSentinel          = &Error{Code: CodeAsyncRequired}
	ErrInvalidBindingSentinel = &Error{Code: CodeInvalidBinding}
	ErrSerializationSentinel  = &Error{Code: CodeSerialization}
	ErrLifecycleSentinel      = &Error{Code: CodeLifecycleError}
)

// IsNotFound checks if the error is a missing-binding error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFoundSentinel)
}

// IsCreationFailed checks if the error wraps a provider failure.
func IsCreationFailed(err error) bool {
	return errors.Is(err, ErrCreationFailedSentinel)
}

// IsCircularDependency checks if the error is a dependency cycle.
func IsCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularSentinel)
}

// IsScopeError checks if the error is a scope activation error.
func IsScopeError(err error) bool {
	return errors.Is(err, ErrScopeSentinel)
}

// IsAsyncRequired checks if the error marks a sync path that needed AGet.
func IsAsyncRequired(err error) bool {
	return errors.Is(err, ErrAsyncSentinel)
}

// IsInvalidBinding checks if the error is an aggregated validation report.
func IsInvalidBinding(err error) bool {
	return errors.Is(err, ErrInvalidBindingSentinel)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Join wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
