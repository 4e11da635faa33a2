package core

import (
	"sort"
	"sync"
)

// Resolver performs typesafe resolution over a registry. Results are cached
// per (type, qualifiers) until the next registration.
type Resolver struct {
	registry *Registry
	enabled  func(*BeanDefinition) bool
	metrics  *Metrics
	limit    int

	mu    sync.RWMutex
	cache map[string][]*BeanDefinition
}

// NewResolver creates a resolver. enabled reports whether an alternative
// takes part in the deployment; cacheSize bounds the result cache.
func NewResolver(registry *Registry, enabled func(*BeanDefinition) bool, cacheSize int, metrics *Metrics) *Resolver {
	if enabled == nil {
		enabled = func(def *BeanDefinition) bool { return def.priority > 0 }
	}
	return &Resolver{
		registry: registry,
		enabled:  enabled,
		metrics:  metrics,
		limit:    cacheSize,
		cache:    make(map[string][]*BeanDefinition),
	}
}

// Clear drops every cached result
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.cache = make(map[string][]*BeanDefinition)
	r.mu.Unlock()
}

// Resolve returns the beans eligible for injection into a point of type t
// with the given qualifiers. Default is required when no qualifier is given.
func (r *Resolver) Resolve(t *Type, qualifiers ...Qualifier) ([]*BeanDefinition, error) {
	if t == nil {
		return nil, illegalArgument("required type must not be nil")
	}
	if t.HasVariables() {
		return nil, illegalArgument("required type %s contains a type variable", t)
	}
	required := requiredQualifiers(qualifiers)
	key := t.key() + "#" + qualifiersKey(required)

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	r.metrics.cacheLookup(ok)
	if ok {
		return append([]*BeanDefinition(nil), cached...), nil
	}

	var candidates []*BeanDefinition
	for _, def := range r.registry.AllBeansAssignableTo(t) {
		if def.resolvable() && hasAllQualifiers(def.qualifiers, required) {
			candidates = append(candidates, def)
		}
	}
	result := r.narrow(candidates)

	r.mu.Lock()
	if r.limit <= 0 || len(r.cache) < r.limit {
		r.cache[key] = result
	}
	r.mu.Unlock()
	return append([]*BeanDefinition(nil), result...), nil
}

// narrow drops disabled alternatives and specialized beans, then applies
// the alternative and specialization tie-breaks
func (r *Resolver) narrow(candidates []*BeanDefinition) []*BeanDefinition {
	specialized := r.specialized()
	var out []*BeanDefinition
	for _, def := range candidates {
		if def.alternative && !r.enabled(def) {
			continue
		}
		if specialized[def.id] {
			continue
		}
		out = append(out, def)
	}
	if len(out) <= 1 {
		return out
	}

	var alternatives []*BeanDefinition
	for _, def := range out {
		if def.alternative {
			alternatives = append(alternatives, def)
		}
	}
	if len(alternatives) > 0 {
		sort.SliceStable(alternatives, func(i, j int) bool {
			return alternatives[i].priority > alternatives[j].priority
		})
		top := alternatives[0].priority
		out = out[:0]
		for _, def := range alternatives {
			if def.priority == top {
				out = append(out, def)
			}
		}
		if len(out) <= 1 {
			return out
		}
	}

	for _, def := range out {
		if specializesAll(def, out) {
			return []*BeanDefinition{def}
		}
	}
	return out
}

// specialized collects the ids of beans replaced by an enabled specializing bean
func (r *Resolver) specialized() map[string]bool {
	ids := make(map[string]bool)
	for _, def := range r.registry.Beans() {
		if def.specializes == "" || (def.alternative && !r.enabled(def)) {
			continue
		}
		for id := def.specializes; id != "" && !ids[id]; {
			ids[id] = true
			next, ok := r.registry.Bean(id)
			if !ok {
				break
			}
			id = next.specializes
		}
	}
	return ids
}

// specializesAll reports whether def is a strict specialization of every other bean
func specializesAll(def *BeanDefinition, beans []*BeanDefinition) bool {
	for _, other := range beans {
		if other == def {
			continue
		}
		if !specializesBean(def, other) {
			return false
		}
	}
	return true
}

func specializesBean(def, other *BeanDefinition) bool {
	if def.specializes == other.id {
		return true
	}
	if def.beanClass == nil || other.beanClass == nil || def.beanClass.Equal(other.beanClass) {
		return false
	}
	if def.beanClass.goType != nil && other.beanClass.goType != nil {
		return false
	}
	return isAssignable(other.beanClass, def.beanClass)
}

// ResolveUnique resolves exactly one bean
func (r *Resolver) ResolveUnique(t *Type, qualifiers ...Qualifier) (*BeanDefinition, error) {
	beans, err := r.Resolve(t, qualifiers...)
	if err != nil {
		return nil, err
	}
	return unique(beans, t, requiredQualifiers(qualifiers), nil)
}

func unique(beans []*BeanDefinition, t *Type, qualifiers []Qualifier, ip *InjectionPoint) (*BeanDefinition, error) {
	switch len(beans) {
	case 0:
		return nil, &UnsatisfiedResolutionError{Type: t, Qualifiers: qualifiers, InjectionPoint: ip}
	case 1:
		return beans[0], nil
	}
	return nil, &AmbiguousResolutionError{Type: t, Qualifiers: qualifiers, Beans: beans, InjectionPoint: ip}
}

// ResolveByName returns the beans available under a bean name
func (r *Resolver) ResolveByName(name string) []*BeanDefinition {
	return r.narrow(r.registry.ByName(name))
}
