package core

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// CreationalContext tracks one instance while it is being created and the
// dependent objects that share its lifecycle. It is passed explicitly down
// the creation call chain.
type CreationalContext struct {
	container      *Container
	ctx            context.Context
	bean           *BeanDefinition
	parent         *CreationalContext
	injectionPoint *InjectionPoint

	// store is set while a contextual store creates the instance
	store *ContextualStore

	mu            sync.Mutex
	incomplete    any
	hasIncomplete bool
	finished      bool
	dependents    []*ContextualInstance
	consumers     []*CreationalContext
	chain         *invocationChain
	delegate      any
}

type creationKey struct{}

// NewCreationalContext creates a root creational context for bean
func NewCreationalContext(bean *BeanDefinition) *CreationalContext {
	return newCreational(context.Background(), nil, bean)
}

// newCreationalContext creates a context for bean. When ctx was handed out
// by a creation still in progress, that creation becomes the parent.
func (c *Container) newCreationalContext(ctx context.Context, bean *BeanDefinition) *CreationalContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return newCreational(ctx, c, bean)
}

func newCreational(ctx context.Context, c *Container, bean *BeanDefinition) *CreationalContext {
	parent, _ := ctx.Value(creationKey{}).(*CreationalContext)
	cc := &CreationalContext{container: c, bean: bean, parent: parent}
	cc.ctx = context.WithValue(ctx, creationKey{}, cc)
	return cc
}

// Context returns the context.Context the creation was requested under
func (cc *CreationalContext) Context() context.Context { return cc.ctx }

// Bean returns the bean being created
func (cc *CreationalContext) Bean() *BeanDefinition { return cc.bean }

// Parent returns the creational context of the object this one is injected into
func (cc *CreationalContext) Parent() *CreationalContext { return cc.parent }

// InjectionPoint returns where a dependent instance is being injected
func (cc *CreationalContext) InjectionPoint() *InjectionPoint { return cc.injectionPoint }

// Push publishes the constructed but not yet initialized instance so that
// lookups made under this creation's context can reach it.
func (cc *CreationalContext) Push(incomplete any) {
	cc.mu.Lock()
	cc.incomplete = incomplete
	cc.hasIncomplete = true
	cc.mu.Unlock()
}

// Incomplete returns the instance published by Push
func (cc *CreationalContext) Incomplete() (any, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.incomplete, cc.hasIncomplete
}

// finish marks the creation as over, successful or not
func (cc *CreationalContext) finish() {
	cc.mu.Lock()
	cc.finished = true
	cc.mu.Unlock()
}

func (cc *CreationalContext) active() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return !cc.finished
}

// child creates the context of a dependent object injected at ip
func (cc *CreationalContext) child(bean *BeanDefinition, ip *InjectionPoint) *CreationalContext {
	child := &CreationalContext{
		container:      cc.container,
		bean:           bean,
		parent:         cc,
		injectionPoint: ip,
	}
	child.ctx = context.WithValue(cc.ctx, creationKey{}, child)
	return child
}

// AddDependent ties a dependent instance to this context; it is destroyed
// when the context is released.
func (cc *CreationalContext) AddDependent(ci *ContextualInstance) {
	cc.mu.Lock()
	cc.dependents = append(cc.dependents, ci)
	cc.mu.Unlock()
}

// Release destroys dependent instances in reverse creation order
func (cc *CreationalContext) Release() error {
	cc.mu.Lock()
	deps := cc.dependents
	cc.dependents = nil
	cc.mu.Unlock()

	var err error
	for i := len(deps) - 1; i >= 0; i-- {
		if cc.container == nil {
			continue
		}
		err = multierr.Append(err, cc.container.destroyInstance(deps[i]))
	}
	return err
}

// inProgress reports whether a dependent bean is already being created
// higher up the chain. The search stops at the nearest contextual creation:
// above it a new dependent instance is not a cycle.
func (cc *CreationalContext) inProgress(bean *BeanDefinition) bool {
	for cur := cc; cur != nil; cur = cur.parent {
		if cur.bean != nil && cur.bean.ID() == bean.ID() && cur.active() {
			return true
		}
		if cur.store != nil {
			return false
		}
	}
	return false
}

// creating returns the unfinished creation of id by store among the
// ancestors of cc
func (cc *CreationalContext) creating(store *ContextualStore, id string) *CreationalContext {
	for cur := cc.parent; cur != nil; cur = cur.parent {
		if cur.store == store && cur.bean != nil && cur.bean.ID() == id && cur.active() {
			return cur
		}
	}
	return nil
}

// handOut records that the incomplete instance of cc reached from. Every
// contextual creation between them now depends on cc completing.
func (cc *CreationalContext) handOut(from *CreationalContext) {
	var tainted []*CreationalContext
	for cur := from; cur != nil && cur != cc; cur = cur.parent {
		if cur.store != nil {
			tainted = append(tainted, cur)
		}
	}
	cc.mu.Lock()
	cc.consumers = append(cc.consumers, tainted...)
	cc.mu.Unlock()
}

// discardConsumers destroys the stored instances that were built on the
// incomplete instance of a creation that then failed
func (cc *CreationalContext) discardConsumers() error {
	cc.mu.Lock()
	consumers := cc.consumers
	cc.consumers = nil
	cc.mu.Unlock()

	var err error
	for _, consumer := range consumers {
		err = multierr.Append(err, consumer.store.discard(consumer))
	}
	return err
}

// path lists bean ids from the root creation down to cc
func (cc *CreationalContext) path() []string {
	var ids []string
	for cur := cc; cur != nil; cur = cur.parent {
		if cur.bean != nil {
			ids = append([]string{cur.bean.ID()}, ids...)
		}
	}
	return ids
}

// removeDependent detaches ci so that releasing cc no longer destroys it
func (cc *CreationalContext) removeDependent(ci *ContextualInstance) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for i, dep := range cc.dependents {
		if dep == ci {
			cc.dependents = append(cc.dependents[:i], cc.dependents[i+1:]...)
			return true
		}
	}
	return false
}

// withContext returns a link to cc whose creations run under ctx but stay
// descendants of cc
func (cc *CreationalContext) withContext(ctx context.Context) *CreationalContext {
	link := &CreationalContext{
		container: cc.container,
		parent:    cc,
		finished:  true,
	}
	link.ctx = context.WithValue(ctx, creationKey{}, link)
	return link
}
