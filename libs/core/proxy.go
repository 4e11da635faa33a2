package core

import (
	"context"
	"fmt"
	"reflect"
)

// Invoker dispatches a business method call by name
type Invoker interface {
	Invoke(method string, args ...any) ([]any, error)
}

// ProxyFactory builds a value of the bean's business type whose methods
// forward to an Invoker. Beans of a normal scope, and beans with
// interceptors or decorators, need one.
//
//	type greeterProxy struct{ inv core.Invoker }
//
//	func (p greeterProxy) Greet(ctx context.Context, name string) (string, error) {
//		return core.Return1[string](p.inv.Invoke("Greet", ctx, name))
//	}
type ProxyFactory func(inv Invoker) any

// TouchMethod is a pseudo method that only forces the underlying instance
// to exist
const TouchMethod = "$$touch"

// clientProxy resolves the current contextual instance on every call
type clientProxy struct {
	c    *Container
	bean *BeanDefinition
}

func (p *clientProxy) Invoke(method string, args ...any) ([]any, error) {
	ctx := invocationCtx(args)
	ci, err := p.c.contextualInstance(ctx, p.bean)
	if err != nil {
		return nil, err
	}
	if method == TouchMethod {
		return nil, nil
	}
	if ci.CC != nil && ci.CC.chain.intercepted() {
		return ci.CC.chain.invoke(ctx, method, args)
	}
	return callMethod(ci.Instance, method, args)
}

// contextualInstance returns the instance of a normal-scoped bean for ctx,
// creating it if needed
func (c *Container) contextualInstance(ctx context.Context, bean *BeanDefinition) (*ContextualInstance, error) {
	sc, err := c.scopeContext(bean.scope)
	if err != nil {
		return nil, err
	}
	store, err := sc.Store(ctx)
	if err != nil {
		return nil, err
	}
	return store.getOrCreate(bean, c.newCreationalContext(ctx, bean), func(cc *CreationalContext) (any, error) {
		return c.create(bean, cc)
	})
}

func (c *Container) clientProxyFor(bean *BeanDefinition) (any, error) {
	if bean.proxy == nil {
		return nil, &UnproxyableResolutionError{Bean: bean.id, Reason: "normal-scoped beans need a proxy factory"}
	}
	if p, ok := c.proxies.Load(bean.ID()); ok {
		return p, nil
	}
	p, _ := c.proxies.LoadOrStore(bean.ID(), bean.proxy(&clientProxy{c: c, bean: bean}))
	return p, nil
}

func hasMethod(target any, method string) bool {
	if target == nil {
		return false
	}
	return reflect.ValueOf(target).MethodByName(method).IsValid()
}

// callMethod invokes method on target by reflection. A nil argument becomes
// the zero value of its parameter; a trailing error result is split off.
func callMethod(target any, method string, args []any) ([]any, error) {
	if target == nil {
		return nil, illegalState("cannot invoke %s on a nil target", method)
	}
	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T has no method %s", ErrUnsupportedOperation, target, method)
	}
	in, err := callArgs(m.Type(), args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", reflect.TypeOf(target), method, err)
	}
	return splitResults(m.Call(in))
}

func callArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < n-1 {
			return nil, illegalArgument("expected at least %d arguments, got %d", n-1, len(args))
		}
	} else if len(args) != n {
		return nil, illegalArgument("expected %d arguments, got %d", n, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= n-1 {
			pt = ft.In(n - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := argValue(pt, a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func argValue(pt reflect.Type, a any) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(pt), nil
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	if v.Type().ConvertibleTo(pt) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, illegalArgument("%s is not assignable to %s", v.Type(), pt)
}

func splitResults(out []reflect.Value) ([]any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorGoType {
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, err
}

// Return0 adapts an Invoke result for a method with only an error result
func Return0(_ []any, err error) error {
	return err
}

// Return1 adapts an Invoke result for a method returning (T, error)
func Return1[T any](out []any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(out) == 0 || out[0] == nil {
		return zero, nil
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, illegalState("unexpected result type %T", out[0])
	}
	return v, nil
}

// Return2 adapts an Invoke result for a method returning (A, B, error)
func Return2[A, B any](out []any, err error) (A, B, error) {
	var a A
	var b B
	if err != nil {
		return a, b, err
	}
	if len(out) > 0 && out[0] != nil {
		a, _ = out[0].(A)
	}
	if len(out) > 1 && out[1] != nil {
		b, _ = out[1].(B)
	}
	return a, b, nil
}
