package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// InjectionTarget creates, injects and disposes the instances of one bean
type InjectionTarget interface {
	Produce(cc *CreationalContext) (any, error)
	Inject(instance any, cc *CreationalContext) error
	PostConstruct(instance any) error
	PreDestroy(instance any) error
	Dispose(instance any) error
	InjectionPoints() []*InjectionPoint
}

const injectTag = "doffy"

// resolvePoints obtains an injectable reference for every point, converted
// to the Go type the point was declared with
func resolvePoints(cc *CreationalContext, points []*InjectionPoint) ([]reflect.Value, error) {
	in := make([]reflect.Value, len(points))
	for i, ip := range points {
		v, err := cc.container.injectableReference(cc, ip)
		if err != nil {
			return nil, err
		}
		rv, err := argValue(ip.goType, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ip, err)
		}
		in[i] = rv
	}
	return in, nil
}

// funcPoints derives injection points from the parameters of fn starting at from
func funcPoints(bean *BeanDefinition, kind InjectionKind, member string, ft reflect.Type, from int, specs []Point) []*InjectionPoint {
	var points []*InjectionPoint
	for i := from; i < ft.NumIn(); i++ {
		var spec Point
		if j := i - from; j < len(specs) {
			spec = specs[j]
		}
		points = append(points, newInjectionPoint(bean, kind, member, i, ft.In(i), spec))
	}
	return points
}

// checkFactoryFunc validates a constructor or producer: it must return T or (T, error)
func checkFactoryFunc(fn reflect.Value, what string) error {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return illegalArgument("%s must be a non-nil function", what)
	}
	ft := fn.Type()
	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorGoType:
	case ft.NumOut() == 2 && ft.Out(1) == errorGoType:
	default:
		return illegalArgument("%s must return T or (T, error), got %s", what, ft)
	}
	if ft.IsVariadic() {
		return illegalArgument("%s must not be variadic", what)
	}
	return nil
}

func callFactory(fn reflect.Value, in []reflect.Value) (any, error) {
	out, err := splitResults(fn.Call(in))
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// taggedFields finds the exported struct fields tagged for injection,
// embedded structs first
func taggedFields(bean *BeanDefinition, st reflect.Type, overrides map[string]Point) ([]*InjectionPoint, error) {
	type found struct {
		ip    *InjectionPoint
		depth int
	}
	var fields []found
	var walk func(t reflect.Type, index []int, depth int) error
	walk = func(t reflect.Type, index []int, depth int) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			idx := append(append([]int(nil), index...), i)
			spec, overridden := overrides[f.Name]
			tag, tagged := f.Tag.Lookup(injectTag)
			if f.Anonymous && !tagged && !overridden && f.Type.Kind() == reflect.Struct {
				if err := walk(f.Type, idx, depth+1); err != nil {
					return err
				}
				continue
			}
			if !tagged && !overridden {
				continue
			}
			inject, delegate, qualifiers := parseQualifierTag(tag)
			if !inject && !overridden {
				continue
			}
			if f.PkgPath != "" {
				return fmt.Errorf("field %s must be exported to be injected", f.Name)
			}
			if !overridden {
				spec = Point{qualifiers: qualifiers, delegate: delegate}
			}
			ip := newInjectionPoint(bean, InjectField, f.Name, len(idx)-1, f.Type, spec)
			ip.fieldIndex = idx
			fields = append(fields, found{ip: ip, depth: depth})
		}
		return nil
	}
	if err := walk(st, nil, 0); err != nil {
		return nil, err
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].depth > fields[j].depth })
	points := make([]*InjectionPoint, len(fields))
	for i, f := range fields {
		points[i] = f.ip
	}
	return points, nil
}

type initializer struct {
	method string
	points []*InjectionPoint
}

// managedTarget builds instances of a Go type, through a constructor when
// one is declared, then injects fields and calls initializer methods
type managedTarget struct {
	goType        reflect.Type
	ctor          reflect.Value
	ctorPoints    []*InjectionPoint
	fields        []*InjectionPoint
	initializers  []initializer
	postConstruct func(any) error
	preDestroy    func(any) error
}

func (t *managedTarget) Produce(cc *CreationalContext) (any, error) {
	if t.ctor.IsValid() {
		in, err := resolvePoints(cc, t.ctorPoints)
		if err != nil {
			return nil, err
		}
		return callFactory(t.ctor, in)
	}
	return reflect.New(t.goType.Elem()).Interface(), nil
}

func (t *managedTarget) Inject(instance any, cc *CreationalContext) error {
	if len(t.fields) > 0 {
		v := reflect.ValueOf(instance)
		if v.Kind() != reflect.Ptr || v.IsNil() {
			return illegalState("cannot inject fields into %T", instance)
		}
		sv := v.Elem()
		for _, ip := range t.fields {
			ref, err := cc.container.injectableReference(cc, ip)
			if err != nil {
				return err
			}
			rv, err := argValue(ip.goType, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", ip, err)
			}
			sv.FieldByIndex(ip.fieldIndex).Set(rv)
		}
	}
	for _, init := range t.initializers {
		m := reflect.ValueOf(instance).MethodByName(init.method)
		if !m.IsValid() {
			return illegalState("%T has no initializer %s", instance, init.method)
		}
		in, err := resolvePoints(cc, init.points)
		if err != nil {
			return err
		}
		if _, err := splitResults(m.Call(in)); err != nil {
			return err
		}
	}
	return nil
}

func (t *managedTarget) PostConstruct(instance any) error {
	if t.postConstruct == nil {
		return nil
	}
	return t.postConstruct(instance)
}

func (t *managedTarget) PreDestroy(instance any) error {
	if t.preDestroy == nil {
		return nil
	}
	return t.preDestroy(instance)
}

// Dispose clears injected fields so the destroyed instance holds no references
func (t *managedTarget) Dispose(instance any) error {
	v := reflect.ValueOf(instance)
	if len(t.fields) == 0 || v.Kind() != reflect.Ptr || v.IsNil() {
		return nil
	}
	sv := v.Elem()
	for _, ip := range t.fields {
		f := sv.FieldByIndex(ip.fieldIndex)
		f.Set(reflect.Zero(f.Type()))
	}
	return nil
}

func (t *managedTarget) InjectionPoints() []*InjectionPoint {
	points := append([]*InjectionPoint(nil), t.ctorPoints...)
	points = append(points, t.fields...)
	for _, init := range t.initializers {
		points = append(points, init.points...)
	}
	return points
}

// producerTarget obtains instances from a producer function
type producerTarget struct {
	fn             reflect.Value
	points         []*InjectionPoint
	normal         bool
	disposer       reflect.Value
	disposerPoints []*InjectionPoint
	container      *Container
}

func (t *producerTarget) Produce(cc *CreationalContext) (any, error) {
	in, err := resolvePoints(cc, t.points)
	if err != nil {
		return nil, err
	}
	v, err := callFactory(t.fn, in)
	if err != nil {
		return nil, err
	}
	if isNil(v) && t.normal {
		return nil, illegalState("producer of normal-scoped bean '%s' returned nil", cc.bean.ID())
	}
	return v, nil
}

func (t *producerTarget) Inject(any, *CreationalContext) error { return nil }
func (t *producerTarget) PostConstruct(any) error              { return nil }
func (t *producerTarget) PreDestroy(any) error                 { return nil }

// Dispose calls the disposer method. Its injected parameters are dependent
// objects destroyed right after the call.
func (t *producerTarget) Dispose(instance any) error {
	if !t.disposer.IsValid() || t.container == nil {
		return nil
	}
	cc := t.container.newCreationalContext(context.Background(), nil)
	defer cc.Release()
	in := []reflect.Value{reflect.ValueOf(instance)}
	if instance == nil {
		in[0] = reflect.Zero(t.disposer.Type().In(0))
	}
	rest, err := resolvePoints(cc, t.disposerPoints)
	if err != nil {
		return err
	}
	_, err = splitResults(t.disposer.Call(append(in, rest...)))
	return err
}

func (t *producerTarget) InjectionPoints() []*InjectionPoint {
	return append(append([]*InjectionPoint(nil), t.points...), t.disposerPoints...)
}

// valueTarget hands out an instance that already exists
type valueTarget struct {
	value any
}

func (t *valueTarget) Produce(*CreationalContext) (any, error) { return t.value, nil }
func (t *valueTarget) Inject(any, *CreationalContext) error    { return nil }
func (t *valueTarget) PostConstruct(any) error                 { return nil }
func (t *valueTarget) PreDestroy(any) error                    { return nil }
func (t *valueTarget) Dispose(any) error                       { return nil }
func (t *valueTarget) InjectionPoints() []*InjectionPoint      { return nil }

// syntheticTarget calls a creation callback registered in code, bounded by
// a timeout when one is set
type syntheticTarget struct {
	create  func(ctx context.Context, cc *CreationalContext) (any, error)
	destroy func(any) error
	timeout time.Duration
	normal  bool
}

func (t *syntheticTarget) Produce(cc *CreationalContext) (any, error) {
	ctx := cc.Context()
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	v, err := t.create(ctx, cc)
	if err != nil {
		return nil, err
	}
	if isNil(v) && t.normal {
		return nil, illegalState("synthetic bean '%s' produced nil", cc.bean.ID())
	}
	return v, nil
}

func (t *syntheticTarget) Inject(any, *CreationalContext) error { return nil }
func (t *syntheticTarget) PostConstruct(any) error              { return nil }
func (t *syntheticTarget) PreDestroy(any) error                 { return nil }

func (t *syntheticTarget) Dispose(instance any) error {
	if t.destroy == nil {
		return nil
	}
	return t.destroy(instance)
}

func (t *syntheticTarget) InjectionPoints() []*InjectionPoint { return nil }

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
