package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// InterceptionType is the kind of boundary an interceptor wraps
type InterceptionType int

const (
	AroundInvoke InterceptionType = iota
	AroundConstruct
	PostConstruct
	PreDestroy
	AroundTimeout
)

func (t InterceptionType) String() string {
	switch t {
	case AroundInvoke:
		return "AROUND_INVOKE"
	case AroundConstruct:
		return "AROUND_CONSTRUCT"
	case PostConstruct:
		return "POST_CONSTRUCT"
	case PreDestroy:
		return "PRE_DESTROY"
	case AroundTimeout:
		return "AROUND_TIMEOUT"
	}
	return fmt.Sprintf("InterceptionType(%d)", int(t))
}

// AroundInvoker intercepts business method invocations
type AroundInvoker interface {
	AroundInvoke(ic *InvocationContext) ([]any, error)
}

// AroundConstructor intercepts construction of the target
type AroundConstructor interface {
	AroundConstruct(ic *InvocationContext) ([]any, error)
}

// PostConstructInterceptor intercepts the post-construct callback
type PostConstructInterceptor interface {
	InterceptPostConstruct(ic *InvocationContext) ([]any, error)
}

// PreDestroyInterceptor intercepts the pre-destroy callback
type PreDestroyInterceptor interface {
	InterceptPreDestroy(ic *InvocationContext) ([]any, error)
}

// AroundTimeouter intercepts timeout callbacks
type AroundTimeouter interface {
	AroundTimeout(ic *InvocationContext) ([]any, error)
}

// InvocationContext is handed to each interceptor of a chain. Calling
// Proceed runs the rest of the chain; not calling it short-circuits.
type InvocationContext struct {
	ctx      context.Context
	kind     InterceptionType
	method   string
	params   []any
	target   any
	data     map[string]any
	chain    []*ContextualInstance
	index    int
	terminal func(params []any) ([]any, error)
}

// Context returns the context.Context of the intercepted call
func (ic *InvocationContext) Context() context.Context { return ic.ctx }

// Kind returns the interception type
func (ic *InvocationContext) Kind() InterceptionType { return ic.kind }

// Method returns the intercepted method name; empty for lifecycle callbacks
func (ic *InvocationContext) Method() string { return ic.method }

// Parameters returns the invocation arguments
func (ic *InvocationContext) Parameters() []any { return ic.params }

// SetParameters replaces the arguments passed on by Proceed
func (ic *InvocationContext) SetParameters(params []any) { ic.params = params }

// Target returns the target instance; nil inside AroundConstruct before Proceed
func (ic *InvocationContext) Target() any { return ic.target }

// ContextData is shared by all interceptors of one invocation
func (ic *InvocationContext) ContextData() map[string]any {
	if ic.data == nil {
		ic.data = make(map[string]any)
	}
	return ic.data
}

// Proceed invokes the next interceptor, or the target at the end of the chain
func (ic *InvocationContext) Proceed() ([]any, error) {
	if ic.index < len(ic.chain) {
		next := ic.chain[ic.index]
		ic.index++
		defer func() { ic.index-- }()
		return callInterceptor(next.Instance, ic)
	}
	out, err := ic.terminal(ic.params)
	if ic.kind == AroundConstruct && err == nil && len(out) > 0 {
		ic.target = out[0]
	}
	return out, err
}

func callInterceptor(instance any, ic *InvocationContext) ([]any, error) {
	switch ic.kind {
	case AroundInvoke:
		if i, ok := instance.(AroundInvoker); ok {
			return i.AroundInvoke(ic)
		}
	case AroundConstruct:
		if i, ok := instance.(AroundConstructor); ok {
			return i.AroundConstruct(ic)
		}
	case PostConstruct:
		if i, ok := instance.(PostConstructInterceptor); ok {
			return i.InterceptPostConstruct(ic)
		}
	case PreDestroy:
		if i, ok := instance.(PreDestroyInterceptor); ok {
			return i.InterceptPreDestroy(ic)
		}
	case AroundTimeout:
		if i, ok := instance.(AroundTimeouter); ok {
			return i.AroundTimeout(ic)
		}
	}
	return ic.Proceed()
}

var interceptorInterfaces = map[InterceptionType]reflect.Type{
	AroundInvoke:    reflect.TypeOf((*AroundInvoker)(nil)).Elem(),
	AroundConstruct: reflect.TypeOf((*AroundConstructor)(nil)).Elem(),
	PostConstruct:   reflect.TypeOf((*PostConstructInterceptor)(nil)).Elem(),
	PreDestroy:      reflect.TypeOf((*PreDestroyInterceptor)(nil)).Elem(),
	AroundTimeout:   reflect.TypeOf((*AroundTimeouter)(nil)).Elem(),
}

// interceptionKinds lists the interceptor interfaces implemented by rt
func interceptionKinds(rt reflect.Type) map[InterceptionType]bool {
	kinds := make(map[InterceptionType]bool)
	if rt == nil {
		return kinds
	}
	for kind, iface := range interceptorInterfaces {
		if rt.Implements(iface) {
			kinds[kind] = true
		}
	}
	return kinds
}

// invocationChain is the per-instance interceptor and decorator chain
type invocationChain struct {
	bean         *BeanDefinition
	interceptors []*ContextualInstance
	decorators   []*ContextualInstance
	target       any
}

func bindingsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (ch *invocationChain) interceptorsOf(kind InterceptionType, method string) []*ContextualInstance {
	if ch == nil || len(ch.interceptors) == 0 {
		return nil
	}
	bindings := ch.bean.bindings
	if kind == AroundInvoke || kind == AroundTimeout {
		bindings = ch.bean.Bindings(method)
	}
	var out []*ContextualInstance
	for _, ci := range ch.interceptors {
		meta := ci.Bean.interceptor
		if meta.Intercepts(kind) && bindingsIntersect(meta.Bindings, bindings) {
			out = append(out, ci)
		}
	}
	return out
}

func (ch *invocationChain) around(ctx context.Context, kind InterceptionType, method string, params []any, target any, terminal func([]any) ([]any, error)) ([]any, error) {
	chain := ch.interceptorsOf(kind, method)
	if len(chain) == 0 {
		return terminal(params)
	}
	ic := &InvocationContext{
		ctx:      ctx,
		kind:     kind,
		method:   method,
		params:   params,
		target:   target,
		chain:    chain,
		terminal: terminal,
	}
	return ic.Proceed()
}

// lifecycle runs a lifecycle callback wrapped by its interceptors
func (ch *invocationChain) lifecycle(ctx context.Context, kind InterceptionType, target any, callback func() error) error {
	if ch == nil {
		return callback()
	}
	_, err := ch.around(ctx, kind, "", nil, target, func([]any) ([]any, error) {
		return nil, callback()
	})
	return err
}

// invoke walks AROUND_INVOKE interceptors, then decorators, then the target
func (ch *invocationChain) invoke(ctx context.Context, method string, args []any) ([]any, error) {
	return ch.around(ctx, AroundInvoke, method, args, ch.target, func(params []any) ([]any, error) {
		return ch.decorate(0, method, params)
	})
}

// invokeTimeout walks AROUND_TIMEOUT interceptors, then the target
func (ch *invocationChain) invokeTimeout(ctx context.Context, method string, args []any) ([]any, error) {
	return ch.around(ctx, AroundTimeout, method, args, ch.target, func(params []any) ([]any, error) {
		return callMethod(ch.target, method, params)
	})
}

// decorate calls the first decorator from index i on that declares method
func (ch *invocationChain) decorate(i int, method string, args []any) ([]any, error) {
	for ; i < len(ch.decorators); i++ {
		if hasMethod(ch.decorators[i].Instance, method) {
			return callMethod(ch.decorators[i].Instance, method, args)
		}
	}
	return callMethod(ch.target, method, args)
}

// intercepted reports whether business calls need to go through the chain
func (ch *invocationChain) intercepted() bool {
	if ch == nil {
		return false
	}
	if len(ch.decorators) > 0 {
		return true
	}
	for _, ci := range ch.interceptors {
		if ci.Bean.interceptor.Intercepts(AroundInvoke) || ci.Bean.interceptor.Intercepts(AroundTimeout) {
			return true
		}
	}
	return false
}

// interceptorsFor returns the enabled interceptors bound to bean, ordered
// by priority then registration
func (c *Container) interceptorsFor(bean *BeanDefinition) []*BeanDefinition {
	if bean.kind == InterceptorBean || bean.kind == DecoratorBean {
		return nil
	}
	bindings := append([]string(nil), bean.bindings...)
	for _, mb := range bean.methodBindings {
		bindings = append(bindings, mb...)
	}
	if len(bindings) == 0 {
		return nil
	}

	var out []*BeanDefinition
	for _, ib := range c.registry.Interceptors() {
		if c.isEnabled(ib) && bindingsIntersect(ib.interceptor.Bindings, bindings) {
			out = append(out, ib)
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
