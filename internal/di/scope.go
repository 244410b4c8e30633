package di

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/loomdi/loom/internal/errors"
)

// Reserved scope names. Singleton and prototype are lifecycle modes, not
// activatable scopes; request, session and transaction ship registered
// but inactive.
const (
	ScopeSingleton   = "singleton"
	ScopePrototype   = "prototype"
	ScopeRequest     = "request"
	ScopeSession     = "session"
	ScopeTransaction = "transaction"
)

type ctxKey string

const scopeIDCtxKey ctxKey = "loom.scope.ids"

// Token is returned by Activate and restores the exact prior activation
// state when released, even if nested activations were mismatched.
type Token struct {
	scope string
	depth int
}

// ScopeManager tracks which scope instances are active per scope name.
// Each scope keeps a stack of instance IDs; the innermost activation is
// the current ID. All methods are safe for concurrent use, but stacks
// are shared state: callers that need per-goroutine isolation propagate
// IDs through context instead.
type ScopeManager struct {
	mu     sync.RWMutex
	known  map[string]struct{}
	stacks map[string][]string
}

// NewScopeManager creates a manager with the built-in scopes declared.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{
		known: map[string]struct{}{
			ScopeRequest:     {},
			ScopeSession:     {},
			ScopeTransaction: {},
		},
		stacks: make(map[string][]string),
	}
}

// Declare registers a custom scope name. Declaring a reserved lifecycle
// name fails.
func (m *ScopeManager) Declare(scope string) error {
	if scope == ScopeSingleton || scope == ScopePrototype {
		return errors.ErrScope(scope, "reserved lifecycle name cannot be declared as a scope")
	}
	if scope == "" {
		return errors.ErrScope(scope, "scope name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[scope] = struct{}{}
	return nil
}

// Known reports whether scope is declared.
func (m *ScopeManager) Known(scope string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.known[scope]
	return ok
}

// Activate pushes an instance ID onto the scope's stack and returns a
// token that restores the prior state.
func (m *ScopeManager) Activate(scope, id string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.known[scope]; !ok {
		return Token{}, errors.ErrScope(scope, "scope is not declared")
	}
	if id == "" {
		return Token{}, errors.ErrScope(scope, "scope instance id cannot be empty")
	}
	depth := len(m.stacks[scope])
	m.stacks[scope] = append(m.stacks[scope], id)
	return Token{scope: scope, depth: depth}, nil
}

// Release restores the activation state captured by the token: the stack
// is truncated back to the token's depth regardless of what was pushed
// since. Releasing an already-released token is a no-op.
func (m *ScopeManager) Release(t Token) {
	if t.scope == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[t.scope]
	if t.depth < len(stack) {
		m.stacks[t.scope] = stack[:t.depth]
	}
}

// CurrentID returns the innermost active instance ID for a scope.
func (m *ScopeManager) CurrentID(scope string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stack := m.stacks[scope]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// ActiveIDs returns the innermost active instance ID for every scope
// that currently has one.
func (m *ScopeManager) ActiveIDs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for s, stack := range m.stacks {
		if len(stack) > 0 {
			out[s] = stack[len(stack)-1]
		}
	}
	return out
}

// Active reports whether the scope has any active instance.
func (m *ScopeManager) Active(scope string) bool {
	_, ok := m.CurrentID(scope)
	return ok
}

// Signature is a deterministic fingerprint of the current activation
// state across all scopes. Proxies key their interceptor-chain caches on
// it so chains rebuild when the scope context changes.
func (m *ScopeManager) Signature() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := make([]string, 0, len(m.stacks))
	for s, stack := range m.stacks {
		if len(stack) > 0 {
			scopes = append(scopes, s)
		}
	}
	sort.Strings(scopes)
	var b strings.Builder
	for i, s := range scopes {
		if i > 0 {
			b.WriteByte(';')
		}
		stack := m.stacks[s]
		b.WriteString(s)
		b.WriteByte('=')
		b.WriteString(stack[len(stack)-1])
	}
	return b.String()
}

// NewScopeID generates a fresh unique scope instance ID.
func NewScopeID() string {
	return uuid.NewString()
}

// WithScopeID returns a context carrying an explicit instance ID for a
// scope. Context-carried IDs take precedence over the manager's stacks.
func WithScopeID(ctx context.Context, scope, id string) context.Context {
	ids, _ := ctx.Value(scopeIDCtxKey).(map[string]string)
	next := make(map[string]string, len(ids)+1)
	for k, v := range ids {
		next[k] = v
	}
	next[scope] = id
	return context.WithValue(ctx, scopeIDCtxKey, next)
}

// ScopeIDFrom extracts a context-carried instance ID for a scope.
func ScopeIDFrom(ctx context.Context, scope string) (string, bool) {
	ids, _ := ctx.Value(scopeIDCtxKey).(map[string]string)
	id, ok := ids[scope]
	return id, ok
}

// ScopeIDsFrom returns a copy of every context-carried scope instance ID.
func ScopeIDsFrom(ctx context.Context) map[string]string {
	ids, _ := ctx.Value(scopeIDCtxKey).(map[string]string)
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]string, len(ids))
	for s, id := range ids {
		out[s] = id
	}
	return out
}
