package core

import (
	"sort"
	"strings"
	"sync"
)

// ContextualInstance is one live instance held by a scope
type ContextualInstance struct {
	Bean     *BeanDefinition
	Instance any
	CC       *CreationalContext
}

// BeanStore is the storage medium behind a contextual store. Lock serializes
// first creation per bean id within one scope instance.
type BeanStore interface {
	Get(id string) (*ContextualInstance, bool)
	Put(id string, ci *ContextualInstance)
	Remove(id string)
	IDs() []string
	Lock(id string) (unlock func())
}

// LockStore hands out one mutex per key and drops it when nobody holds it
type LockStore struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// NewLockStore creates an empty lock store
func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]*refLock)}
}

// Lock blocks until the key's lock is held and returns its release function
func (s *LockStore) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &refLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// MapBeanStore keeps instances in memory
type MapBeanStore struct {
	mu        sync.RWMutex
	instances map[string]*ContextualInstance
	locks     *LockStore
}

// NewMapBeanStore creates an empty in-memory bean store
func NewMapBeanStore() *MapBeanStore {
	return &MapBeanStore{
		instances: make(map[string]*ContextualInstance),
		locks:     NewLockStore(),
	}
}

func (s *MapBeanStore) Get(id string) (*ContextualInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.instances[id]
	return ci, ok
}

func (s *MapBeanStore) Put(id string, ci *ContextualInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[id] = ci
}

func (s *MapBeanStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
}

func (s *MapBeanStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *MapBeanStore) Lock(id string) func() {
	return s.locks.Lock(id)
}

// AttributeStore is a string-keyed attribute medium such as an HTTP session
type AttributeStore interface {
	GetAttribute(name string) (any, bool)
	SetAttribute(name string, value any)
	RemoveAttribute(name string)
	AttributeNames() []string
}

// AttributeBeanStore keeps instances as prefixed attributes of an AttributeStore
type AttributeBeanStore struct {
	prefix string
	attrs  AttributeStore
	locks  *LockStore
}

// NewAttributeBeanStore creates a bean store over attrs; prefix namespaces the keys
func NewAttributeBeanStore(prefix string, attrs AttributeStore, locks *LockStore) *AttributeBeanStore {
	if locks == nil {
		locks = NewLockStore()
	}
	return &AttributeBeanStore{prefix: prefix, attrs: attrs, locks: locks}
}

func (s *AttributeBeanStore) key(id string) string { return s.prefix + id }

func (s *AttributeBeanStore) Get(id string) (*ContextualInstance, bool) {
	v, ok := s.attrs.GetAttribute(s.key(id))
	if !ok {
		return nil, false
	}
	ci, ok := v.(*ContextualInstance)
	return ci, ok
}

func (s *AttributeBeanStore) Put(id string, ci *ContextualInstance) {
	s.attrs.SetAttribute(s.key(id), ci)
}

func (s *AttributeBeanStore) Remove(id string) {
	s.attrs.RemoveAttribute(s.key(id))
}

func (s *AttributeBeanStore) IDs() []string {
	var ids []string
	for _, name := range s.attrs.AttributeNames() {
		if strings.HasPrefix(name, s.prefix) {
			ids = append(ids, strings.TrimPrefix(name, s.prefix))
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *AttributeBeanStore) Lock(id string) func() {
	return s.locks.Lock(s.key(id))
}
