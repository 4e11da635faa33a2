package core

import (
	"context"
	"fmt"
	"reflect"
)

// BeanKind tells how instances of a bean are obtained
type BeanKind int

const (
	// ManagedBean instances are built from a Go type and an optional constructor
	ManagedBean BeanKind = iota
	// ProducerBean instances are returned by a producer function
	ProducerBean
	// SyntheticBean instances are returned by a callback registered in code
	SyntheticBean
	// ValueBean wraps a pre-existing instance the container never constructs
	ValueBean
	// InterceptorBean instances wrap invocations and lifecycle callbacks
	InterceptorBean
	// DecoratorBean instances wrap the business interface of other beans
	DecoratorBean
	// BuiltInBean is provided by the container itself
	BuiltInBean
)

func (k BeanKind) String() string {
	switch k {
	case ManagedBean:
		return "managed"
	case ProducerBean:
		return "producer"
	case SyntheticBean:
		return "synthetic"
	case ValueBean:
		return "value"
	case InterceptorBean:
		return "interceptor"
	case DecoratorBean:
		return "decorator"
	case BuiltInBean:
		return "built-in"
	}
	return "unknown"
}

// InjectionKind tells where an injection point is declared
type InjectionKind int

const (
	InjectConstructor InjectionKind = iota
	InjectField
	InjectInitializer
	InjectProducer
	InjectObserver
)

type builtinKind int

const (
	builtinNone builtinKind = iota
	builtinEvent
	builtinInstance
	builtinInjectionPoint
	builtinContext
)

var (
	// EventRawType is the raw type of injected *Event handles
	EventRawType = Generic("Event", []*Type{Variable("T")})
	// InstanceRawType is the raw type of injected *Instance handles
	InstanceRawType = Generic("Instance", []*Type{Variable("T")})

	eventGoType          = reflect.TypeOf((*Event)(nil))
	instanceGoType       = reflect.TypeOf((*Instance)(nil))
	injectionPointGoType = reflect.TypeOf((*InjectionPoint)(nil))
	contextGoType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorGoType          = reflect.TypeOf((*error)(nil)).Elem()
)

// InjectionPoint describes one consumption site of a bean
type InjectionPoint struct {
	Type       *Type
	Qualifiers []Qualifier
	Bean       *BeanDefinition
	Kind       InjectionKind
	Member     string
	Position   int
	Delegate   bool

	goType     reflect.Type
	fieldIndex []int
	builtin    builtinKind
}

func (ip *InjectionPoint) String() string {
	owner := "<none>"
	if ip.Bean != nil {
		owner = ip.Bean.ID()
	}
	switch ip.Kind {
	case InjectField:
		return fmt.Sprintf("%s.%s", owner, ip.Member)
	default:
		return fmt.Sprintf("%s.%s[%d]", owner, ip.Member, ip.Position)
	}
}

// GoType returns the Go type of the parameter or field
func (ip *InjectionPoint) GoType() reflect.Type { return ip.goType }

// Point customizes an injection point declared by position or field name
type Point struct {
	typ        *Type
	qualifiers []Qualifier
	delegate   bool
}

// At returns a point requiring the given qualifiers
func At(qualifiers ...Qualifier) Point {
	return Point{qualifiers: qualifiers}
}

// Delegate marks the decorator delegate injection point
func Delegate(qualifiers ...Qualifier) Point {
	return Point{qualifiers: qualifiers, delegate: true}
}

// Of overrides the required type. For *Event and *Instance points it sets
// the type argument instead.
func (p Point) Of(t *Type) Point {
	p.typ = t
	return p
}

// newInjectionPoint derives an injection point from a Go type and an optional spec
func newInjectionPoint(bean *BeanDefinition, kind InjectionKind, member string, pos int, goType reflect.Type, spec Point) *InjectionPoint {
	ip := &InjectionPoint{
		Bean:       bean,
		Kind:       kind,
		Member:     member,
		Position:   pos,
		Delegate:   spec.delegate,
		goType:     goType,
		Qualifiers: requiredQualifiers(spec.qualifiers),
	}
	switch goType {
	case eventGoType, instanceGoType:
		arg := spec.typ
		if arg == nil {
			arg = ObjectType
		}
		raw := EventRawType
		ip.builtin = builtinEvent
		if goType == instanceGoType {
			raw = InstanceRawType
			ip.builtin = builtinInstance
		}
		ip.Type = Parameterized(raw, arg)
		if len(spec.qualifiers) == 0 && goType == eventGoType {
			ip.Qualifiers = nil
		}
	case injectionPointGoType:
		ip.builtin = builtinInjectionPoint
		ip.Type = typeOfGo(goType)
	case contextGoType:
		ip.builtin = builtinContext
		ip.Type = typeOfGo(goType)
	default:
		if spec.typ != nil {
			ip.Type = spec.typ
		} else {
			ip.Type = typeOfGo(goType)
		}
	}
	return ip
}

// Stereotype bundles defaults that a bean may adopt in one declaration
type Stereotype struct {
	Name        string
	Scope       Scope
	Alternative bool
	Bindings    []string
	DefaultName bool
}

// InterceptorMeta marks a bean as an interceptor
type InterceptorMeta struct {
	Bindings []string
	Priority int
	kinds    map[InterceptionType]bool
}

// Intercepts reports whether the interceptor handles the interception type
func (m *InterceptorMeta) Intercepts(kind InterceptionType) bool {
	return m.kinds[kind]
}

// DecoratorMeta marks a bean as a decorator
type DecoratorMeta struct {
	Decorated []*Type
	Priority  int
}

// BeanDefinition is an immutable descriptor of a registered bean
type BeanDefinition struct {
	id             string
	kind           BeanKind
	beanClass      *Type
	types          []*Type
	qualifiers     []Qualifier
	scope          Scope
	name           string
	alternative    bool
	priority       int
	stereotypes    []string
	specializes    string
	eager          bool
	target         InjectionTarget
	proxy          ProxyFactory
	bindings       []string
	methodBindings map[string][]string
	interceptor    *InterceptorMeta
	decorator      *DecoratorMeta
	observers      []*ObserverMethod
	module         string
	seq            int
	err            error
}

// ID returns the unique bean identity
func (b *BeanDefinition) ID() string { return b.id }

// Kind returns how instances are obtained
func (b *BeanDefinition) Kind() BeanKind { return b.kind }

// BeanClass returns the implementation type
func (b *BeanDefinition) BeanClass() *Type { return b.beanClass }

// Types returns the exposed bean types, Object included
func (b *BeanDefinition) Types() []*Type { return b.types }

// Qualifiers returns the normalized qualifiers, Any included
func (b *BeanDefinition) Qualifiers() []Qualifier { return b.qualifiers }

// Scope returns the bean scope
func (b *BeanDefinition) Scope() Scope { return b.scope }

// Name returns the bean name used for name-based lookup
func (b *BeanDefinition) Name() string { return b.name }

// IsAlternative reports whether the bean must be enabled to be resolvable
func (b *BeanDefinition) IsAlternative() bool { return b.alternative }

// Priority returns the alternative, interceptor or decorator priority
func (b *BeanDefinition) Priority() int { return b.priority }

// Stereotypes returns the names of adopted stereotypes
func (b *BeanDefinition) Stereotypes() []string { return b.stereotypes }

// Specializes returns the id of the specialized bean, if any
func (b *BeanDefinition) Specializes() string { return b.specializes }

// IsEager reports whether the bean is instantiated when the container freezes
func (b *BeanDefinition) IsEager() bool { return b.eager }

// Module returns the name of the bean archive that declared the bean
func (b *BeanDefinition) Module() string { return b.module }

// HasProxy reports whether the bean supplies a client proxy factory
func (b *BeanDefinition) HasProxy() bool { return b.proxy != nil }

// InterceptorMeta returns the interceptor metadata of an interceptor bean
func (b *BeanDefinition) InterceptorMeta() *InterceptorMeta { return b.interceptor }

// DecoratorMeta returns the decorator metadata of a decorator bean
func (b *BeanDefinition) DecoratorMeta() *DecoratorMeta { return b.decorator }

// Observers returns the observer methods declared by the bean
func (b *BeanDefinition) Observers() []*ObserverMethod { return b.observers }

// InjectionPoints returns every injection point of the bean
func (b *BeanDefinition) InjectionPoints() []*InjectionPoint {
	if b.target == nil {
		return nil
	}
	return b.target.InjectionPoints()
}

// Bindings returns the interceptor bindings that apply to method
func (b *BeanDefinition) Bindings(method string) []string {
	out := append([]string(nil), b.bindings...)
	return append(out, b.methodBindings[method]...)
}

func (b *BeanDefinition) String() string {
	return fmt.Sprintf("%s bean '%s' [%s]", b.kind, b.id, b.scope)
}

// delegatePoint returns the delegate injection point of a decorator
func (b *BeanDefinition) delegatePoint() *InjectionPoint {
	for _, ip := range b.InjectionPoints() {
		if ip.Delegate {
			return ip
		}
	}
	return nil
}

// resolvable reports whether the bean takes part in typesafe resolution
func (b *BeanDefinition) resolvable() bool {
	return b.kind != InterceptorBean && b.kind != DecoratorBean
}
