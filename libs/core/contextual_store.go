package core

import (
	"go.uber.org/multierr"
)

// Creator builds a new instance for a contextual store
type Creator func(cc *CreationalContext) (any, error)

// DestroyFunc disposes a contextual instance removed from a store
type DestroyFunc func(ci *ContextualInstance) error

// ContextualStore holds the live instances of one scope instance. The
// creator of a bean runs at most once per store even under concurrent first
// access; unrelated beans never wait for each other.
type ContextualStore struct {
	scope   Scope
	beans   BeanStore
	destroy DestroyFunc
}

// NewContextualStore creates a store over beans; destroy is called for every
// instance removed by Destroy or ClearAll
func NewContextualStore(scope Scope, beans BeanStore, destroy DestroyFunc) *ContextualStore {
	if beans == nil {
		beans = NewMapBeanStore()
	}
	return &ContextualStore{
		scope:   scope,
		beans:   beans,
		destroy: destroy,
	}
}

// Scope returns the scope the store belongs to
func (s *ContextualStore) Scope() Scope { return s.scope }

// BeanStore returns the storage medium
func (s *ContextualStore) BeanStore() BeanStore { return s.beans }

// Get returns the existing instance of bean without creating one
func (s *ContextualStore) Get(bean *BeanDefinition) (any, bool) {
	ci, ok := s.beans.Get(bean.ID())
	if !ok {
		return nil, false
	}
	return ci.Instance, true
}

// GetOrCreate returns the instance of bean, running create under the bean's
// lock if none exists yet. cc may be nil.
func (s *ContextualStore) GetOrCreate(bean *BeanDefinition, cc *CreationalContext, create Creator) (any, error) {
	ci, err := s.getOrCreate(bean, cc, create)
	if err != nil {
		return nil, err
	}
	return ci.Instance, nil
}

func (s *ContextualStore) getOrCreate(bean *BeanDefinition, cc *CreationalContext, create Creator) (*ContextualInstance, error) {
	id := bean.ID()
	if ci, ok := s.beans.Get(id); ok {
		return ci, nil
	}
	if cc == nil {
		cc = NewCreationalContext(bean)
	}

	// A request made under the context of the creation of the same bean must
	// not wait for its own lock: it gets the published incomplete instance or
	// fails.
	if owner := cc.creating(s, id); owner != nil {
		inst, ok := owner.Incomplete()
		if !ok {
			return nil, &CircularDependencyError{Path: cc.path()}
		}
		owner.handOut(cc.parent)
		return &ContextualInstance{Bean: bean, Instance: inst, CC: owner}, nil
	}

	unlock := s.beans.Lock(id)
	defer unlock()

	if ci, ok := s.beans.Get(id); ok {
		return ci, nil
	}

	cc.store = s
	instance, err := create(cc)
	cc.finish()
	if err != nil {
		if derr := cc.discardConsumers(); derr != nil {
			err = multierr.Append(err, derr)
		}
		return nil, err
	}

	ci := &ContextualInstance{Bean: bean, Instance: instance, CC: cc}
	s.beans.Put(id, ci)
	return ci, nil
}

// discard destroys the instance created under cc if it is still stored
func (s *ContextualStore) discard(cc *CreationalContext) error {
	id := cc.bean.ID()
	unlock := s.beans.Lock(id)
	defer unlock()

	ci, ok := s.beans.Get(id)
	if !ok || ci.CC != cc {
		return nil
	}
	s.beans.Remove(id)
	if s.destroy == nil {
		return nil
	}
	return s.destroy(ci)
}

// Destroy disposes the instance of bean, if any, then removes it
func (s *ContextualStore) Destroy(bean *BeanDefinition) error {
	return s.destroyID(bean.ID())
}

func (s *ContextualStore) destroyID(id string) error {
	unlock := s.beans.Lock(id)
	defer unlock()

	ci, ok := s.beans.Get(id)
	if !ok {
		return nil
	}

	var err error
	if s.destroy != nil {
		err = s.destroy(ci)
	}
	s.beans.Remove(id)
	return err
}

// ClearAll destroys every instance of the store, collecting failures
func (s *ContextualStore) ClearAll() error {
	var err error
	for _, id := range s.beans.IDs() {
		err = multierr.Append(err, s.destroyID(id))
	}
	return err
}
