package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"go.uber.org/multierr"
)

// Provider supplies a bean definition to the container
type Provider interface {
	Build() *BeanDefinition
}

// Build lets a finished definition be registered again, e.g. in another container
func (b *BeanDefinition) Build() *BeanDefinition { return b }

type observerSpec struct {
	method    string
	eventType *Type
	opts      []ObserverOption
}

type initializerSpec struct {
	method string
	points []Point
}

// BeanBuilder declares a bean whose instances are of Go type T
type BeanBuilder[T any] struct {
	def    *BeanDefinition
	goType reflect.Type

	class       *Type
	extraTypes  []*Type
	typed       []*Type
	qualifiers  []Qualifier
	named       *string
	scopeSet    bool
	stereotypes []Stereotype

	ctor           reflect.Value
	ctorPoints     []Point
	fieldPoints    map[string]Point
	initializers   []initializerSpec
	postConstruct  func(T) error
	preDestroy     func(T) error
	producer       reflect.Value
	producerPoints []Point
	disposer       reflect.Value
	disposerPoints []Point
	value          T
	synthetic      func(ctx context.Context, cc *CreationalContext) (T, error)
	destroy        func(T) error
	timeout        time.Duration

	bindings  []string
	observers []observerSpec
	errs      []error
}

func newBuilder[T any](kind BeanKind) *BeanBuilder[T] {
	return &BeanBuilder[T]{
		def: &BeanDefinition{
			kind:           kind,
			scope:          Dependent,
			methodBindings: make(map[string][]string),
		},
		goType:      reflect.TypeOf((*T)(nil)).Elem(),
		fieldPoints: make(map[string]Point),
	}
}

// Managed declares a bean built by the container from type T. T must be a
// pointer to a struct unless a constructor is declared.
func Managed[T any]() *BeanBuilder[T] {
	return newBuilder[T](ManagedBean)
}

// Producer declares a bean obtained from fn. The parameters of fn are
// injection points, customized by position with points; fn returns T or (T, error).
func Producer[T any](fn any, points ...Point) *BeanBuilder[T] {
	b := newBuilder[T](ProducerBean)
	b.producer = reflect.ValueOf(fn)
	b.producerPoints = points
	return b
}

// Value declares a bean over an instance that already exists. It is a
// singleton unless another scope is set.
func Value[T any](v T) *BeanBuilder[T] {
	b := newBuilder[T](ValueBean)
	b.value = v
	b.def.scope = Singleton
	return b
}

// Synthetic declares a bean whose instances are returned by fn
func Synthetic[T any](fn func(ctx context.Context, cc *CreationalContext) (T, error)) *BeanBuilder[T] {
	b := newBuilder[T](SyntheticBean)
	b.synthetic = fn
	return b
}

func (b *BeanBuilder[T]) fail(format string, args ...any) *BeanBuilder[T] {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
	return b
}

// ID sets the bean identity; it defaults to the Go type and qualifiers
func (b *BeanBuilder[T]) ID(id string) *BeanBuilder[T] {
	b.def.id = id
	return b
}

// Class overrides the implementation type descriptor
func (b *BeanBuilder[T]) Class(t *Type) *BeanBuilder[T] {
	b.class = t
	return b
}

// Types adds exposed bean types, typically interfaces T implements
func (b *BeanBuilder[T]) Types(types ...*Type) *BeanBuilder[T] {
	b.extraTypes = append(b.extraTypes, types...)
	return b
}

// Typed restricts the exposed bean types to the given ones and Object
func (b *BeanBuilder[T]) Typed(types ...*Type) *BeanBuilder[T] {
	b.typed = append(b.typed, types...)
	return b
}

// Scoped sets the bean scope
func (b *BeanBuilder[T]) Scoped(scope Scope) *BeanBuilder[T] {
	b.def.scope = scope
	b.scopeSet = true
	return b
}

// Qualified adds qualifiers
func (b *BeanBuilder[T]) Qualified(qualifiers ...Qualifier) *BeanBuilder[T] {
	b.qualifiers = append(b.qualifiers, qualifiers...)
	return b
}

// Named gives the bean a name for name-based lookup. An empty name derives
// one from the type.
func (b *BeanBuilder[T]) Named(name string) *BeanBuilder[T] {
	b.named = &name
	return b
}

// Alternative marks the bean as an alternative. A positive priority enables
// it for the whole application.
func (b *BeanBuilder[T]) Alternative(priority int) *BeanBuilder[T] {
	b.def.alternative = true
	b.def.priority = priority
	return b
}

// Specializes replaces the bean with the given id
func (b *BeanBuilder[T]) Specializes(id string) *BeanBuilder[T] {
	b.def.specializes = id
	return b
}

// Stereotype adopts the defaults of a stereotype
func (b *BeanBuilder[T]) Stereotype(st Stereotype) *BeanBuilder[T] {
	b.stereotypes = append(b.stereotypes, st)
	return b
}

// Eager instantiates the bean when the container freezes
func (b *BeanBuilder[T]) Eager() *BeanBuilder[T] {
	b.def.eager = true
	return b
}

// Constructor declares the function creating managed instances. Its
// parameters are injection points, customized by position with points.
func (b *BeanBuilder[T]) Constructor(fn any, points ...Point) *BeanBuilder[T] {
	b.ctor = reflect.ValueOf(fn)
	b.ctorPoints = points
	return b
}

// Inject declares or customizes the injection point of an exported field
func (b *BeanBuilder[T]) Inject(field string, point Point) *BeanBuilder[T] {
	b.fieldPoints[field] = point
	return b
}

// Initializer declares a method called after field injection. Its
// parameters are injection points.
func (b *BeanBuilder[T]) Initializer(method string, points ...Point) *BeanBuilder[T] {
	b.initializers = append(b.initializers, initializerSpec{method: method, points: points})
	return b
}

// PostConstruct sets the callback run once injection completes
func (b *BeanBuilder[T]) PostConstruct(fn func(T) error) *BeanBuilder[T] {
	b.postConstruct = fn
	return b
}

// PreDestroy sets the callback run before the instance is discarded
func (b *BeanBuilder[T]) PreDestroy(fn func(T) error) *BeanBuilder[T] {
	b.preDestroy = fn
	return b
}

// Disposer sets the function disposing produced instances. Its first
// parameter receives the instance, the others are injection points.
func (b *BeanBuilder[T]) Disposer(fn any, points ...Point) *BeanBuilder[T] {
	b.disposer = reflect.ValueOf(fn)
	b.disposerPoints = points
	return b
}

// Destroy sets the callback disposing synthetic or value instances
func (b *BeanBuilder[T]) Destroy(fn func(T) error) *BeanBuilder[T] {
	b.destroy = fn
	return b
}

// Timeout bounds the creation callback of a synthetic bean
func (b *BeanBuilder[T]) Timeout(d time.Duration) *BeanBuilder[T] {
	b.timeout = d
	return b
}

// Proxy sets the factory of client proxies and intercepted references
func (b *BeanBuilder[T]) Proxy(factory ProxyFactory) *BeanBuilder[T] {
	b.def.proxy = factory
	return b
}

// InterceptedBy binds interceptors to every method and lifecycle callback
func (b *BeanBuilder[T]) InterceptedBy(bindings ...string) *BeanBuilder[T] {
	b.bindings = append(b.bindings, bindings...)
	return b
}

// InterceptMethod binds interceptors to one business method
func (b *BeanBuilder[T]) InterceptMethod(method string, bindings ...string) *BeanBuilder[T] {
	b.def.methodBindings[method] = append(b.def.methodBindings[method], bindings...)
	return b
}

// Interceptor turns the bean into an interceptor for the given bindings.
// A positive priority enables it for the whole application.
func (b *BeanBuilder[T]) Interceptor(priority int, bindings ...string) *BeanBuilder[T] {
	b.def.kind = InterceptorBean
	b.def.interceptor = &InterceptorMeta{Bindings: bindings, Priority: priority}
	b.def.priority = priority
	return b
}

// Decorates turns the bean into a decorator of the given types. Lower
// priorities wrap outermost.
func (b *BeanBuilder[T]) Decorates(priority int, types ...*Type) *BeanBuilder[T] {
	b.def.kind = DecoratorBean
	b.def.decorator = &DecoratorMeta{Decorated: types, Priority: priority}
	b.def.priority = priority
	return b
}

// Observes declares method as an observer of eventType; a nil eventType is
// taken from the event parameter
func (b *BeanBuilder[T]) Observes(method string, eventType *Type, opts ...ObserverOption) *BeanBuilder[T] {
	b.observers = append(b.observers, observerSpec{method: method, eventType: eventType, opts: opts})
	return b
}

// Build validates the declaration and returns the bean definition. Errors
// are kept on the definition and reported when it is registered.
func (b *BeanBuilder[T]) Build() *BeanDefinition {
	def := b.def
	if def.err != nil || def.types != nil {
		return def
	}

	b.applyStereotypes()

	def.beanClass = b.class
	if def.beanClass == nil {
		def.beanClass = typeOfGo(b.goType)
	}
	def.types = b.beanTypes()

	qualifiers := b.qualifiers
	if b.named != nil {
		def.name = *b.named
		if def.name == "" {
			def.name = defaultBeanName(b.goType)
		}
		qualifiers = append(qualifiers, Named(def.name))
	}
	def.qualifiers = beanQualifiers(qualifiers)
	def.bindings = dedupStrings(b.bindings)

	if def.id == "" {
		def.id = b.defaultID()
	}

	switch def.kind {
	case ManagedBean, InterceptorBean, DecoratorBean:
		b.buildManaged()
	case ProducerBean:
		b.buildProducer()
	case ValueBean:
		def.target = &valueTarget{value: b.value}
		if b.destroy != nil {
			def.target = &syntheticTarget{
				create:  func(context.Context, *CreationalContext) (any, error) { return b.value, nil },
				destroy: b.wrap(b.destroy),
			}
		}
	case SyntheticBean:
		if b.synthetic == nil {
			b.fail("synthetic bean needs a creation callback")
			break
		}
		fn := b.synthetic
		def.target = &syntheticTarget{
			create: func(ctx context.Context, cc *CreationalContext) (any, error) {
				return fn(ctx, cc)
			},
			destroy: b.wrap(b.destroy),
			timeout: b.timeout,
			normal:  !def.scope.IsPseudo(),
		}
	}

	if def.kind == InterceptorBean {
		def.interceptor.kinds = interceptionKinds(b.goType)
		if len(def.interceptor.kinds) == 0 {
			b.fail("%s implements no interceptor interface", b.goType)
		}
		if len(def.interceptor.Bindings) == 0 {
			b.fail("interceptor declares no binding")
		}
		if def.scope != Dependent {
			b.fail("interceptors must be %s, not %s", Dependent, def.scope)
		}
	}
	if def.kind == DecoratorBean && def.scope != Dependent {
		b.fail("decorators must be %s, not %s", Dependent, def.scope)
	}

	for _, spec := range b.observers {
		om, err := newBeanObserver(def, b.goType, spec)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		def.observers = append(def.observers, om)
	}

	if len(b.errs) > 0 {
		def.err = &DefinitionError{Bean: def.id, Reason: "invalid bean declaration", Err: multierr.Combine(b.errs...)}
	}
	return def
}

func (b *BeanBuilder[T]) applyStereotypes() {
	for _, st := range b.stereotypes {
		b.def.stereotypes = append(b.def.stereotypes, st.Name)
		if !b.scopeSet && st.Scope != "" {
			b.def.scope = st.Scope
			b.scopeSet = true
		}
		if st.Alternative {
			b.def.alternative = true
		}
		if st.DefaultName && b.named == nil {
			empty := ""
			b.named = &empty
		}
		b.bindings = append(b.bindings, st.Bindings...)
	}
}

func (b *BeanBuilder[T]) beanTypes() []*Type {
	var types []*Type
	if len(b.typed) > 0 {
		types = append(types, b.typed...)
	} else {
		types = append(types, b.def.beanClass.Closure()...)
		for _, t := range b.extraTypes {
			types = append(types, t.Closure()...)
		}
	}
	types = append(types, ObjectType)

	seen := make(map[string]bool, len(types))
	out := types[:0]
	for _, t := range types {
		if seen[t.key()] {
			continue
		}
		seen[t.key()] = true
		out = append(out, t)
	}
	return out
}

func (b *BeanBuilder[T]) defaultID() string {
	id := b.def.beanClass.String()
	if b.def.kind == ProducerBean {
		id = "producer:" + id
	}
	var extra []string
	for _, q := range b.def.qualifiers {
		if q.Name != Any.Name && q.Name != Default.Name {
			extra = append(extra, q.String())
		}
	}
	if len(extra) > 0 {
		id += strings.Join(extra, "")
	}
	return id
}

func (b *BeanBuilder[T]) wrap(fn func(T) error) func(any) error {
	if fn == nil {
		return nil
	}
	return func(instance any) error {
		v, _ := instance.(T)
		return fn(v)
	}
}

func (b *BeanBuilder[T]) buildManaged() {
	def := b.def
	t := &managedTarget{
		goType:        b.goType,
		postConstruct: b.wrap(b.postConstruct),
		preDestroy:    b.wrap(b.preDestroy),
	}
	def.target = t

	if b.ctor.IsValid() {
		if err := checkFactoryFunc(b.ctor, "constructor"); err != nil {
			b.errs = append(b.errs, err)
			return
		}
		if !b.ctor.Type().Out(0).AssignableTo(b.goType) {
			b.fail("constructor returns %s, not %s", b.ctor.Type().Out(0), b.goType)
			return
		}
		t.ctor = b.ctor
		t.ctorPoints = funcPoints(def, InjectConstructor, "constructor", b.ctor.Type(), 0, b.ctorPoints)
	} else if b.goType.Kind() != reflect.Ptr || b.goType.Elem().Kind() != reflect.Struct {
		b.fail("%s is not a pointer to a struct; declare a constructor", b.goType)
		return
	}

	if st := structOf(b.goType); st != nil {
		fields, err := taggedFields(def, st, b.fieldPoints)
		if err != nil {
			b.errs = append(b.errs, err)
		}
		t.fields = fields
	} else if len(b.fieldPoints) > 0 {
		b.fail("%s has no fields to inject", b.goType)
	}

	for _, spec := range b.initializers {
		m, ok := b.goType.MethodByName(spec.method)
		if !ok {
			b.fail("%s has no method %s", b.goType, spec.method)
			continue
		}
		t.initializers = append(t.initializers, initializer{
			method: spec.method,
			points: funcPoints(def, InjectInitializer, spec.method, m.Type, 1, spec.points),
		})
	}
}

func (b *BeanBuilder[T]) buildProducer() {
	def := b.def
	if err := checkFactoryFunc(b.producer, "producer"); err != nil {
		b.errs = append(b.errs, err)
		return
	}
	out := b.producer.Type().Out(0)
	if !out.AssignableTo(b.goType) {
		b.fail("producer returns %s, not %s", out, b.goType)
		return
	}
	t := &producerTarget{
		fn:     b.producer,
		points: funcPoints(def, InjectProducer, "producer", b.producer.Type(), 0, b.producerPoints),
		normal: !def.scope.IsPseudo(),
	}
	if b.disposer.IsValid() {
		dt := b.disposer.Type()
		if b.disposer.Kind() != reflect.Func || dt.NumIn() == 0 || !b.goType.AssignableTo(dt.In(0)) {
			b.fail("disposer must take %s as first parameter", b.goType)
		} else {
			t.disposer = b.disposer
			t.disposerPoints = funcPoints(def, InjectProducer, "disposer", dt, 1, b.disposerPoints)
		}
	}
	def.target = t
}

func structOf(rt reflect.Type) reflect.Type {
	if rt.Kind() == reflect.Ptr && rt.Elem().Kind() == reflect.Struct {
		return rt.Elem()
	}
	return nil
}

// defaultBeanName derives a bean name from the simple type name, with the
// first letter lowered
func defaultBeanName(rt reflect.Type) string {
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	name := rt.Name()
	if name == "" {
		return ""
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
