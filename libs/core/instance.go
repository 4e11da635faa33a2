package core

import (
	"context"
	"iter"
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

// Instance looks up beans of a required type and qualifiers at runtime.
// Dependent instances it creates belong to the object the handle was
// injected into, or to the handle itself when obtained from the container.
type Instance struct {
	c          *Container
	cc         *CreationalContext
	typ        *Type
	qualifiers []Qualifier
	ip         *InjectionPoint

	mu      sync.Mutex
	created []trackedDependent
}

type trackedDependent struct {
	ref any
	ci  *ContextualInstance
}

func newInstance(c *Container, cc *CreationalContext, t *Type, qualifiers []Qualifier, ip *InjectionPoint) *Instance {
	if t == nil {
		t = ObjectType
	}
	return &Instance{c: c, cc: cc, typ: t, qualifiers: qualifiers, ip: ip}
}

// Instance returns a lookup handle for type t and qualifiers
func (c *Container) Instance(t *Type, qualifiers ...Qualifier) *Instance {
	return newInstance(c, c.newCreationalContext(context.Background(), nil), t, qualifiers, nil)
}

// Type returns the required type
func (i *Instance) Type() *Type { return i.typ }

// Select returns a handle with additional required qualifiers
func (i *Instance) Select(qualifiers ...Qualifier) *Instance {
	qs := dedupQualifiers(append(append([]Qualifier(nil), i.qualifiers...), qualifiers...))
	return newInstance(i.c, i.cc, i.typ, qs, i.ip)
}

// SelectType returns a handle for a subtype of the required type
func (i *Instance) SelectType(t *Type, qualifiers ...Qualifier) (*Instance, error) {
	if t == nil || t.HasVariables() {
		return nil, illegalArgument("required type %v contains a type variable", t)
	}
	if !i.typ.IsObject() && !isAssignable(i.typ, t) {
		return nil, illegalArgument("%s is not a subtype of %s", t, i.typ)
	}
	next := i.Select(qualifiers...)
	next.typ = t
	return next, nil
}

func (i *Instance) beans() ([]*BeanDefinition, error) {
	return i.c.resolver.Resolve(i.typ, i.qualifiers...)
}

// IsUnsatisfied reports whether no bean matches
func (i *Instance) IsUnsatisfied() bool {
	beans, err := i.beans()
	return err != nil || len(beans) == 0
}

// IsAmbiguous reports whether more than one bean matches
func (i *Instance) IsAmbiguous() bool {
	beans, err := i.beans()
	return err == nil && len(beans) > 1
}

// IsResolvable reports whether exactly one bean matches
func (i *Instance) IsResolvable() bool {
	beans, err := i.beans()
	return err == nil && len(beans) == 1
}

// Get returns a reference to the unique matching bean
func (i *Instance) Get(ctx context.Context) (any, error) {
	beans, err := i.beans()
	if err != nil {
		return nil, err
	}
	bean, err := unique(beans, i.typ, requiredQualifiers(i.qualifiers), i.ip)
	if err != nil {
		return nil, err
	}
	return i.reference(ctx, bean)
}

// All yields a reference to every matching bean, in registration order.
// Iteration stops at the first failure.
func (i *Instance) All(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		beans, err := i.beans()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, bean := range beans {
			ref, err := i.reference(ctx, bean)
			if !yield(ref, err) || err != nil {
				return
			}
		}
	}
}

func (i *Instance) reference(ctx context.Context, bean *BeanDefinition) (any, error) {
	cc := i.cc
	if ctx != nil {
		cc = cc.withContext(ctx)
	}
	if bean.scope != Dependent {
		return i.c.referenceFor(cc, bean, i.ip)
	}
	if cc.inProgress(bean) {
		return nil, &CircularDependencyError{Path: append(cc.path(), bean.id)}
	}
	child := cc.child(bean, i.ip)
	inst, err := i.c.create(bean, child)
	if err != nil {
		return nil, err
	}
	ci := &ContextualInstance{Bean: bean, Instance: inst, CC: child}
	i.cc.AddDependent(ci)
	ref, err := i.c.wrapIntercepted(ci)
	if err != nil {
		return nil, err
	}
	i.mu.Lock()
	i.created = append(i.created, trackedDependent{ref: ref, ci: ci})
	i.mu.Unlock()
	return ref, nil
}

// Destroy destroys a dependent instance obtained from this handle, or the
// contextual instance behind a normal-scoped reference in the scope active
// for ctx
func (i *Instance) Destroy(ctx context.Context, ref any) error {
	i.mu.Lock()
	for k, td := range i.created {
		if sameReference(td.ref, ref) {
			i.created = append(i.created[:k], i.created[k+1:]...)
			i.mu.Unlock()
			i.cc.removeDependent(td.ci)
			return i.c.destroyInstance(td.ci)
		}
	}
	i.mu.Unlock()

	beans, err := i.beans()
	if err != nil {
		return err
	}
	bean, err := unique(beans, i.typ, requiredQualifiers(i.qualifiers), i.ip)
	if err != nil {
		return err
	}
	if bean.scope.IsPseudo() {
		return illegalArgument("instance %T of %s was not obtained from this handle", ref, bean)
	}
	sc, err := i.c.scopeContext(bean.scope)
	if err != nil {
		return err
	}
	store, err := sc.Store(ctx)
	if err != nil {
		return err
	}
	return store.Destroy(bean)
}

// Release destroys every dependent instance obtained from the handle
func (i *Instance) Release() error {
	i.mu.Lock()
	created := i.created
	i.created = nil
	i.mu.Unlock()

	var err error
	for k := len(created) - 1; k >= 0; k-- {
		i.cc.removeDependent(created[k].ci)
		err = multierr.Append(err, i.c.destroyInstance(created[k].ci))
	}
	return err
}

func sameReference(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
