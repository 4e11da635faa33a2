package core

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// dependencyEdge is one resolved injection point used for cycle detection
type dependencyEdge struct {
	to    *BeanDefinition
	eager bool
}

// validate checks every bean of the registry and returns a DeploymentError
// listing all problems, ordered by bean registration
func (c *Container) validate(ctx context.Context) error {
	beans := c.registry.Beans()
	problems := make([][]error, len(beans))
	edges := make([][]dependencyEdge, len(beans))

	g, gctx := errgroup.WithContext(ctx)
	limit := 1
	if c.config.Bootstrap.ConcurrentValidation {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i, bean := range beans {
		i, bean := i, bean
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			problems[i], edges[i] = c.validateBean(bean)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var err error
	for _, errs := range problems {
		err = multierr.Append(err, multierr.Combine(errs...))
	}
	err = multierr.Append(err, c.validateNames())

	graph := make(map[string][]dependencyEdge, len(beans))
	for i, bean := range beans {
		graph[bean.id] = edges[i]
	}
	err = multierr.Append(err, findCycles(beans, graph))

	if err != nil {
		return &DeploymentError{Err: err}
	}
	return nil
}

func (c *Container) validateBean(bean *BeanDefinition) ([]error, []dependencyEdge) {
	var errs []error
	var edges []dependencyEdge

	if bean.scope != Dependent {
		if _, err := c.scopeContext(bean.scope); err != nil {
			errs = append(errs, &DefinitionError{Bean: bean.id, Reason: "unknown scope", Err: err})
		}
	}
	if bean.specializes != "" {
		if _, ok := c.registry.Bean(bean.specializes); !ok {
			errs = append(errs, &DefinitionError{Bean: bean.id, Reason: fmt.Sprintf("specialized bean '%s' is not registered", bean.specializes)})
		}
	}

	delegates := 0
	for _, ip := range bean.InjectionPoints() {
		if ip.Delegate {
			delegates++
			if bean.kind != DecoratorBean {
				errs = append(errs, &DefinitionError{Bean: bean.id, Reason: "only decorators may declare a delegate injection point: " + ip.String()})
			}
			continue
		}
		target, err := c.validateInjectionPoint(bean, ip)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if target != nil {
			edges = append(edges, dependencyEdge{
				to:    target,
				eager: ip.Kind == InjectConstructor || ip.Kind == InjectProducer,
			})
		}
	}
	if bean.kind == DecoratorBean && delegates != 1 {
		errs = append(errs, &DefinitionError{Bean: bean.id, Reason: fmt.Sprintf("decorators need exactly one delegate injection point, found %d", delegates)})
	}

	for _, om := range bean.observers {
		if om.reception == IfExists && bean.scope == Dependent {
			errs = append(errs, &DefinitionError{Bean: bean.id, Reason: om.String() + " is conditional but its bean is " + string(Dependent)})
		}
		for _, ip := range om.points {
			if _, err := c.validateInjectionPoint(bean, ip); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if bean.resolvable() && bean.proxy == nil && bean.kind != BuiltInBean {
		if len(c.decoratorsFor(bean)) > 0 {
			errs = append(errs, &UnproxyableResolutionError{Bean: bean.id, Reason: "decorated beans need a proxy factory"})
		} else if interceptsInvocations(c.interceptorsFor(bean)) {
			errs = append(errs, &UnproxyableResolutionError{Bean: bean.id, Reason: "beans with business method interceptors need a proxy factory"})
		}
	}
	return errs, edges
}

func interceptsInvocations(interceptors []*BeanDefinition) bool {
	for _, ib := range interceptors {
		if ib.interceptor.Intercepts(AroundInvoke) || ib.interceptor.Intercepts(AroundTimeout) {
			return true
		}
	}
	return false
}

// validateInjectionPoint resolves ip and returns the bean it is satisfied
// by; built-in points return nil
func (c *Container) validateInjectionPoint(bean *BeanDefinition, ip *InjectionPoint) (*BeanDefinition, error) {
	switch ip.builtin {
	case builtinContext:
		return nil, nil
	case builtinInjectionPoint:
		if bean.scope != Dependent {
			return nil, &DefinitionError{Bean: bean.id, Reason: "only dependent beans may inject InjectionPoint metadata: " + ip.String()}
		}
		return nil, nil
	case builtinEvent, builtinInstance:
		if ip.Type.HasVariables() {
			return nil, &DefinitionError{Bean: bean.id, Reason: "injection point type contains a type variable: " + ip.String()}
		}
		return nil, nil
	}
	if ip.Type.HasVariables() {
		return nil, &DefinitionError{Bean: bean.id, Reason: "injection point type contains a type variable: " + ip.String()}
	}
	beans, err := c.resolver.Resolve(ip.Type, ip.Qualifiers...)
	if err != nil {
		return nil, &DefinitionError{Bean: bean.id, Reason: ip.String(), Err: err}
	}
	target, err := unique(beans, ip.Type, ip.Qualifiers, ip)
	if err != nil {
		return nil, err
	}
	if !target.scope.IsPseudo() && target.proxy == nil {
		return nil, &UnproxyableResolutionError{Bean: target.id, Reason: "normal-scoped beans need a proxy factory to be injected at " + ip.String()}
	}
	return target, nil
}

// validateNames reports bean names that resolve to several beans
func (c *Container) validateNames() error {
	var err error
	for _, name := range c.registry.Names() {
		beans := c.resolver.ResolveByName(name)
		if len(beans) > 1 {
			ids := make([]string, len(beans))
			for i, b := range beans {
				ids[i] = b.id
			}
			err = multierr.Append(err, &DefinitionError{
				Bean:   beans[0].id,
				Reason: fmt.Sprintf("ambiguous bean name '%s' shared by [%s]", name, strings.Join(ids, ", ")),
			})
		}
	}
	return err
}

// findCycles reports dependency cycles no instance can be created for.
// Field edges into normal-scoped beans are lazy since only a client proxy is
// injected. Singletons and normal-scoped beans publish their incomplete
// instance before injecting fields, so their field edges are lazy too.
// Constructor and producer edges are always followed: a cycle through them
// is fatal even when a proxy would break it at runtime.
func findCycles(beans []*BeanDefinition, graph map[string][]dependencyEdge) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(beans))
	var stack []string
	reported := make(map[string]bool)
	var err error

	var visit func(b *BeanDefinition)
	visit = func(b *BeanDefinition) {
		color[b.id] = grey
		stack = append(stack, b.id)
		for _, e := range graph[b.id] {
			lazy := !e.to.scope.IsPseudo() || b.scope == Singleton || !b.scope.IsPseudo()
			if lazy && !e.eager {
				continue
			}
			switch color[e.to.id] {
			case white:
				visit(e.to)
			case grey:
				start := 0
				for i, id := range stack {
					if id == e.to.id {
						start = i
						break
					}
				}
				path := append(append([]string(nil), stack[start:]...), e.to.id)
				key := cycleKey(path[:len(path)-1])
				if !reported[key] {
					reported[key] = true
					err = multierr.Append(err, &CircularDependencyError{Path: path})
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[b.id] = black
	}
	for _, b := range beans {
		if color[b.id] == white {
			visit(b)
		}
	}
	return err
}

func cycleKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
