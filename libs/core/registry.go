package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry indexes bean definitions and observer methods. It only grows
// until it is frozen.
type Registry struct {
	mu           sync.RWMutex
	frozen       bool
	seq          int
	beans        []*BeanDefinition
	byID         map[string]*BeanDefinition
	byRaw        map[string][]*BeanDefinition
	byName       map[string][]*BeanDefinition
	interceptors []*BeanDefinition
	decorators   []*BeanDefinition
	observers    []*ObserverMethod
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*BeanDefinition),
		byRaw:  make(map[string][]*BeanDefinition),
		byName: make(map[string][]*BeanDefinition),
	}
}

// Register adds a bean, indexing it by the raw type of every exposed type
// and by name
func (r *Registry) Register(def *BeanDefinition) error {
	if def.err != nil {
		return def.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register bean '%s'", ErrFrozen, def.id)
	}
	if _, exists := r.byID[def.id]; exists {
		return &DefinitionError{Bean: def.id, Reason: "a bean with the same id is already registered"}
	}

	r.seq++
	def.seq = r.seq
	r.beans = append(r.beans, def)
	r.byID[def.id] = def

	switch def.kind {
	case InterceptorBean:
		r.interceptors = append(r.interceptors, def)
	case DecoratorBean:
		r.decorators = append(r.decorators, def)
	default:
		for _, t := range def.types {
			key := t.Raw().key()
			r.byRaw[key] = append(r.byRaw[key], def)
		}
		if def.name != "" {
			r.byName[def.name] = append(r.byName[def.name], def)
		}
	}

	for _, om := range def.observers {
		r.addObserver(om)
	}
	return nil
}

// AddObserver registers an observer method that is not declared by a bean
func (r *Registry) AddObserver(om *ObserverMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register observer %s", ErrFrozen, om)
	}
	r.addObserver(om)
	return nil
}

func (r *Registry) addObserver(om *ObserverMethod) {
	r.seq++
	om.seq = r.seq
	r.observers = append(r.observers, om)
}

// Freeze forbids further registration
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether registration is closed
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Bean returns the bean registered under id
func (r *Registry) Bean(id string) (*BeanDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	return def, ok
}

// Beans returns every registered bean in registration order
func (r *Registry) Beans() []*BeanDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*BeanDefinition(nil), r.beans...)
}

// AllBeansAssignableTo returns, in registration order, the resolvable beans
// exposing a type t is assignable from
func (r *Registry) AllBeansAssignableTo(t *Type) []*BeanDefinition {
	r.mu.RLock()
	candidates := r.byRaw[t.Raw().key()]
	if t.IsObject() {
		candidates = r.byRaw[ObjectType.key()]
	}
	candidates = append([]*BeanDefinition(nil), candidates...)
	r.mu.RUnlock()

	var out []*BeanDefinition
	for _, def := range candidates {
		if beanHasType(def, t) {
			out = append(out, def)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// ByName returns the resolvable beans with the given name
func (r *Registry) ByName(name string) []*BeanDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*BeanDefinition(nil), r.byName[name]...)
}

// Names returns every bean name
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interceptors returns the interceptor beans in registration order
func (r *Registry) Interceptors() []*BeanDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*BeanDefinition(nil), r.interceptors...)
}

// Decorators returns the decorator beans in registration order
func (r *Registry) Decorators() []*BeanDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*BeanDefinition(nil), r.decorators...)
}

// Observers returns every observer method in registration order
func (r *Registry) Observers() []*ObserverMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ObserverMethod(nil), r.observers...)
}

// Len returns the number of registered beans
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.beans)
}

// clear drops every index; used at shutdown
func (r *Registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beans = nil
	r.byID = make(map[string]*BeanDefinition)
	r.byRaw = make(map[string][]*BeanDefinition)
	r.byName = make(map[string][]*BeanDefinition)
	r.interceptors = nil
	r.decorators = nil
	r.observers = nil
}

// specialize merges the qualifiers and name of target into def, which
// specializes it
func (r *Registry) specialize(def, target *BeanDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.qualifiers = beanQualifiers(append(append([]Qualifier(nil), def.qualifiers...), target.qualifiers...))
	if def.name == "" && target.name != "" {
		def.name = target.name
		r.byName[def.name] = append(r.byName[def.name], def)
	}
}
