package core

import (
	"context"
	"sort"
)

// decoratorsFor returns the enabled decorators whose delegate injection point
// the bean satisfies, outermost first
func (c *Container) decoratorsFor(bean *BeanDefinition) []*BeanDefinition {
	if !bean.resolvable() || bean.kind == BuiltInBean {
		return nil
	}
	var out []*BeanDefinition
	for _, d := range c.registry.Decorators() {
		if d.ID() == bean.ID() || !c.isEnabled(d) {
			continue
		}
		if decorates(d, bean) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// decorates reports whether decorator d applies to bean
func decorates(d, bean *BeanDefinition) bool {
	ip := d.delegatePoint()
	if ip == nil {
		return false
	}
	if !hasAllQualifiers(bean.qualifiers, ip.Qualifiers) {
		return false
	}
	if !beanHasType(bean, ip.Type) {
		return false
	}
	if len(d.decorator.Decorated) == 0 {
		return true
	}
	for _, t := range d.decorator.Decorated {
		if beanHasType(bean, t) {
			return true
		}
	}
	return false
}

func beanHasType(bean *BeanDefinition, required *Type) bool {
	for _, t := range bean.types {
		if beanTypeMatches(required, t) {
			return true
		}
	}
	return false
}

// delegateInvoker forwards calls on a decorator's delegate to the next
// decorator of the chain, or to the target
type delegateInvoker struct {
	chain *invocationChain
	next  int
}

func (d *delegateInvoker) Invoke(method string, args ...any) ([]any, error) {
	if method == TouchMethod {
		return nil, nil
	}
	return d.chain.decorate(d.next, method, args)
}

// directInvoker routes calls on a pseudo-scoped instance through its chain
type directInvoker struct {
	chain *invocationChain
}

func (d *directInvoker) Invoke(method string, args ...any) ([]any, error) {
	if method == TouchMethod {
		return nil, nil
	}
	return d.chain.invoke(invocationCtx(args), method, args)
}

// invocationCtx takes the context.Context passed as first argument, if any
func invocationCtx(args []any) context.Context {
	if len(args) > 0 {
		if ctx, ok := args[0].(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// buildDecorators creates the decorator instances of a freshly produced
// target. Each decorator receives a delegate forwarding to the next one.
func (c *Container) buildDecorators(cc *CreationalContext, chain *invocationChain, decorators []*BeanDefinition) error {
	if len(decorators) == 0 {
		return nil
	}
	if chain.bean.proxy == nil {
		return &UnproxyableResolutionError{Bean: chain.bean.id, Reason: "decorated beans need a proxy factory"}
	}
	chain.decorators = make([]*ContextualInstance, len(decorators))
	for i := len(decorators) - 1; i >= 0; i-- {
		d := decorators[i]
		dcc := cc.child(d, d.delegatePoint())
		dcc.delegate = chain.bean.proxy(&delegateInvoker{chain: chain, next: i + 1})
		inst, err := c.produce(d, dcc)
		if err != nil {
			return err
		}
		ci := &ContextualInstance{Bean: d, Instance: inst, CC: dcc}
		cc.AddDependent(ci)
		chain.decorators[i] = ci
	}
	return nil
}
