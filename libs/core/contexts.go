package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ScopeContext hands out the contextual store of the scope instance that is
// active for a context.Context
type ScopeContext interface {
	Scope() Scope
	Normal() bool
	Store(ctx context.Context) (*ContextualStore, error)
}

// scopeKey carries the active scope instance of one scope in a context.Context
type scopeKey struct {
	scope Scope
}

type activeScope struct {
	id    string
	store *ContextualStore
}

func notActive(scope Scope) error {
	return fmt.Errorf("%w: no active scope instance for %s", ErrContextNotActive, scope)
}

// ScopeID returns the id of the scope instance active in ctx
func ScopeID(ctx context.Context, scope Scope) (string, bool) {
	if ctx == nil {
		return "", false
	}
	as, ok := ctx.Value(scopeKey{scope}).(*activeScope)
	if !ok {
		return "", false
	}
	return as.id, true
}

// sharedContext has a single store that is always active
type sharedContext struct {
	scope  Scope
	normal bool
	store  *ContextualStore
}

func newSharedContext(scope Scope, normal bool, destroy DestroyFunc) *sharedContext {
	return &sharedContext{
		scope:  scope,
		normal: normal,
		store:  NewContextualStore(scope, NewMapBeanStore(), destroy),
	}
}

func (s *sharedContext) Scope() Scope { return s.scope }
func (s *sharedContext) Normal() bool { return s.normal }

func (s *sharedContext) Store(context.Context) (*ContextualStore, error) {
	return s.store, nil
}

// boundContext keeps one store per scope instance id. The instance a caller
// sees is the one bound into its context.Context by BeginScope.
type boundContext struct {
	scope   Scope
	normal  bool
	destroy DestroyFunc

	mu        sync.Mutex
	instances map[string]*ContextualStore
}

func newBoundContext(scope Scope, normal bool, destroy DestroyFunc) *boundContext {
	return &boundContext{
		scope:     scope,
		normal:    normal,
		destroy:   destroy,
		instances: make(map[string]*ContextualStore),
	}
}

func (b *boundContext) Scope() Scope { return b.scope }
func (b *boundContext) Normal() bool { return b.normal }

func (b *boundContext) Store(ctx context.Context) (*ContextualStore, error) {
	if ctx != nil {
		if as, ok := ctx.Value(scopeKey{b.scope}).(*activeScope); ok {
			return as.store, nil
		}
	}
	return nil, notActive(b.scope)
}

// begin returns the store of scope instance id, creating it over beans if new
func (b *boundContext) begin(id string, beans BeanStore) (*ContextualStore, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if store, ok := b.instances[id]; ok {
		return store, false
	}
	store := NewContextualStore(b.scope, beans, b.destroy)
	b.instances[id] = store
	return store, true
}

// end destroys every instance of scope instance id
func (b *boundContext) end(id string) (bool, error) {
	b.mu.Lock()
	store, ok := b.instances[id]
	delete(b.instances, id)
	b.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, store.ClearAll()
}

func (b *boundContext) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ScopeOption customizes a scope instance started with BeginScope
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	beans BeanStore
}

// WithBeanStore backs a new scope instance with beans instead of memory,
// for example an AttributeBeanStore over an HTTP session
func WithBeanStore(beans BeanStore) ScopeOption {
	return func(o *scopeOptions) {
		o.beans = beans
	}
}
