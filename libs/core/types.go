package core

import (
	"reflect"
	"strings"
)

// TypeKind classifies a Type descriptor
type TypeKind int

const (
	// KindClass is a raw, non-parameterized type
	KindClass TypeKind = iota
	// KindParameterized is a generic type applied to type arguments
	KindParameterized
	// KindWildcard is a wildcard type argument with optional bounds
	KindWildcard
	// KindVariable is an unresolved type variable
	KindVariable
)

// Type is a structural type descriptor used for bean and observer matching.
// Descriptors are immutable once built and safe to share between goroutines.
type Type struct {
	kind   TypeKind
	name   string
	raw    *Type
	args   []*Type
	params []*Type
	supers []*Type
	upper  []*Type
	lower  []*Type
	goType reflect.Type
}

// ObjectType is the root of every type hierarchy. Every bean exposes it.
var ObjectType = &Type{kind: KindClass, name: "Object"}

// Class declares a raw type with its direct supertypes
func Class(name string, supers ...*Type) *Type {
	return &Type{kind: KindClass, name: name, supers: supers}
}

// Generic declares a generic class with type parameters. Supertypes may
// reference the parameters; they are substituted when the class is applied
// with Parameterized.
func Generic(name string, params []*Type, supers ...*Type) *Type {
	return &Type{kind: KindClass, name: name, params: params, supers: supers}
}

// Parameterized applies a generic class to actual type arguments
func Parameterized(raw *Type, args ...*Type) *Type {
	if raw.kind == KindParameterized {
		raw = raw.raw
	}
	return &Type{kind: KindParameterized, name: raw.name, raw: raw, args: args}
}

// Wildcard returns an unbounded wildcard argument
func Wildcard() *Type {
	return &Type{kind: KindWildcard, upper: []*Type{ObjectType}}
}

// WildcardExtends returns a wildcard bounded above by upper
func WildcardExtends(upper *Type) *Type {
	return &Type{kind: KindWildcard, upper: []*Type{upper}}
}

// WildcardSuper returns a wildcard bounded below by lower
func WildcardSuper(lower *Type) *Type {
	return &Type{kind: KindWildcard, upper: []*Type{ObjectType}, lower: []*Type{lower}}
}

// Variable declares a type variable; with no bounds it is bounded by Object
func Variable(name string, bounds ...*Type) *Type {
	if len(bounds) == 0 {
		bounds = []*Type{ObjectType}
	}
	return &Type{kind: KindVariable, name: name, upper: bounds}
}

// TypeFor returns the descriptor of the Go type T
func TypeFor[T any]() *Type {
	return typeOfGo(reflect.TypeOf((*T)(nil)).Elem())
}

// TypedEvent lets a payload report a richer descriptor than its Go type,
// typically a parameterized one.
type TypedEvent interface {
	EventType() *Type
}

// TypeOfValue returns the runtime descriptor of v
func TypeOfValue(v any) *Type {
	if v == nil {
		return ObjectType
	}
	if te, ok := v.(TypedEvent); ok {
		if t := te.EventType(); t != nil {
			return t
		}
	}
	return typeOfGo(reflect.TypeOf(v))
}

func typeOfGo(rt reflect.Type) *Type {
	if rt.Kind() == reflect.Interface && rt.NumMethod() == 0 {
		return ObjectType
	}
	return &Type{kind: KindClass, name: rt.String(), goType: rt}
}

// Kind returns the descriptor kind
func (t *Type) Kind() TypeKind { return t.kind }

// Name returns the raw type name, or the variable name for type variables
func (t *Type) Name() string { return t.name }

// Raw returns the raw class of a parameterized type, or t itself
func (t *Type) Raw() *Type {
	if t.kind == KindParameterized {
		return t.raw
	}
	return t
}

// Args returns the type arguments of a parameterized type
func (t *Type) Args() []*Type { return t.args }

// GoType returns the Go type the descriptor was derived from, if any
func (t *Type) GoType() reflect.Type { return t.goType }

// IsObject reports whether t is the root Object type
func (t *Type) IsObject() bool {
	return t.kind == KindClass && t.name == ObjectType.name && t.goType == nil
}

func (t *Type) String() string {
	switch t.kind {
	case KindParameterized:
		parts := make([]string, len(t.args))
		for i, a := range t.args {
			parts[i] = a.String()
		}
		return t.name + "<" + strings.Join(parts, ",") + ">"
	case KindWildcard:
		if len(t.lower) > 0 {
			return "? super " + t.lower[0].String()
		}
		if len(t.upper) > 0 && !t.upper[0].IsObject() {
			return "? extends " + t.upper[0].String()
		}
		return "?"
	default:
		return t.name
	}
}

// Equal reports structural equality
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.kind != o.kind || t.name != o.name {
		return false
	}
	switch t.kind {
	case KindParameterized:
		return typesEqual(t.args, o.args)
	case KindWildcard:
		return typesEqual(t.upper, o.upper) && typesEqual(t.lower, o.lower)
	case KindClass:
		return t.goType == o.goType
	}
	return true
}

func typesEqual(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// HasVariables reports whether t mentions an unresolved type variable
func (t *Type) HasVariables() bool {
	switch t.kind {
	case KindVariable:
		return true
	case KindParameterized:
		for _, a := range t.args {
			if a.HasVariables() {
				return true
			}
		}
	case KindWildcard:
		for _, b := range t.upper {
			if b.HasVariables() {
				return true
			}
		}
		for _, b := range t.lower {
			if b.HasVariables() {
				return true
			}
		}
	}
	return false
}

// Supertypes returns the direct supertypes of t with type arguments
// substituted for a parameterized type.
func (t *Type) Supertypes() []*Type {
	switch t.kind {
	case KindClass:
		return t.supers
	case KindParameterized:
		if len(t.raw.params) == 0 || len(t.raw.params) != len(t.args) {
			return t.raw.supers
		}
		bindings := make(map[string]*Type, len(t.args))
		for i, p := range t.raw.params {
			bindings[p.name] = t.args[i]
		}
		out := make([]*Type, len(t.raw.supers))
		for i, s := range t.raw.supers {
			out[i] = substitute(s, bindings)
		}
		return out
	}
	return nil
}

// Closure returns t and every transitive supertype, ending with Object
func (t *Type) Closure() []*Type {
	seen := make(map[string]bool)
	var out []*Type
	var walk func(*Type)
	walk = func(x *Type) {
		key := x.key()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, x)
		for _, s := range x.Supertypes() {
			walk(s)
		}
	}
	walk(t)
	if !seen[ObjectType.key()] {
		out = append(out, ObjectType)
	}
	return out
}

func (t *Type) key() string {
	if t.goType != nil {
		return t.goType.PkgPath() + "|" + t.String()
	}
	return t.String()
}

func substitute(t *Type, bindings map[string]*Type) *Type {
	switch t.kind {
	case KindVariable:
		if b, ok := bindings[t.name]; ok {
			return b
		}
		return t
	case KindParameterized:
		args := make([]*Type, len(t.args))
		for i, a := range t.args {
			args[i] = substitute(a, bindings)
		}
		return &Type{kind: KindParameterized, name: t.name, raw: t.raw, args: args}
	case KindWildcard:
		w := &Type{kind: KindWildcard}
		for _, b := range t.upper {
			w.upper = append(w.upper, substitute(b, bindings))
		}
		for _, b := range t.lower {
			w.lower = append(w.lower, substitute(b, bindings))
		}
		return w
	}
	return t
}

func sameRaw(a, b *Type) bool {
	ra, rb := a.Raw(), b.Raw()
	if ra.goType != nil || rb.goType != nil {
		return ra.goType == rb.goType
	}
	return ra.name == rb.name
}

// IsAssignableFrom reports whether a value of type from may be used where t
// is expected, following subtype rules with invariant type arguments.
func (t *Type) IsAssignableFrom(from *Type) bool {
	return isAssignable(t, from)
}

func isAssignable(to, from *Type) bool {
	switch to.kind {
	case KindWildcard:
		return withinBounds(from, to.upper, to.lower)
	case KindVariable:
		if from.kind == KindVariable && from.name == to.name {
			return true
		}
		return withinBounds(from, to.upper, nil)
	}
	if to.IsObject() {
		return true
	}
	if from.kind == KindVariable || from.kind == KindWildcard {
		for _, b := range from.upper {
			if isAssignable(to, b) {
				return true
			}
		}
		return false
	}
	if to.goType != nil && from.goType != nil && to.goType.Kind() == reflect.Interface {
		return from.goType.Implements(to.goType)
	}
	for _, s := range from.Closure() {
		if !sameRaw(to, s) {
			continue
		}
		if to.kind == KindClass || s.kind == KindClass {
			return true
		}
		if len(to.args) != len(s.args) {
			continue
		}
		ok := true
		for i := range to.args {
			if !argContains(to.args[i], s.args[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func argContains(to, from *Type) bool {
	switch to.kind {
	case KindWildcard:
		if from.kind == KindWildcard {
			for _, ub := range to.upper {
				matched := false
				for _, fb := range from.upper {
					if isAssignable(ub, fb) {
						matched = true
					}
				}
				if !matched {
					return false
				}
			}
			return true
		}
		return withinBounds(from, to.upper, to.lower)
	case KindVariable:
		return from.kind == KindVariable && from.name == to.name
	}
	return to.Equal(from)
}

func withinBounds(t *Type, upper, lower []*Type) bool {
	for _, u := range upper {
		if !isAssignable(u, t) {
			return false
		}
	}
	for _, l := range lower {
		if !isAssignable(t, l) {
			return false
		}
	}
	return true
}

// beanTypeMatches applies the bean assignability rules: required is the type
// of an injection point, beanType one of the bean's exposed types.
func beanTypeMatches(required, beanType *Type) bool {
	if required.goType != nil && beanType.goType != nil {
		return required.goType == beanType.goType
	}
	if !sameRaw(required, beanType) {
		return false
	}
	switch {
	case required.kind == KindClass && beanType.kind == KindClass:
		return true
	case required.kind == KindClass:
		for _, a := range beanType.args {
			if !isUnboundedArg(a) {
				return false
			}
		}
		return true
	case beanType.kind == KindClass:
		for _, a := range required.args {
			if !isUnboundedArg(a) {
				return false
			}
		}
		return true
	}
	if len(required.args) != len(beanType.args) {
		return false
	}
	for i := range required.args {
		if !beanParamMatches(required.args[i], beanType.args[i]) {
			return false
		}
	}
	return true
}

func beanParamMatches(r, b *Type) bool {
	rActual := r.kind == KindClass || r.kind == KindParameterized
	bActual := b.kind == KindClass || b.kind == KindParameterized
	switch {
	case rActual && bActual:
		if r.kind == KindParameterized || b.kind == KindParameterized {
			return beanTypeMatches(r, b)
		}
		return r.Equal(b)
	case r.kind == KindWildcard && bActual:
		return withinBounds(b, r.upper, r.lower)
	case r.kind == KindWildcard && b.kind == KindVariable:
		for _, vb := range b.upper {
			for _, wb := range r.upper {
				if !isAssignable(wb, vb) && !isAssignable(vb, wb) {
					return false
				}
			}
			for _, lb := range r.lower {
				if !isAssignable(vb, lb) {
					return false
				}
			}
		}
		return true
	case rActual && b.kind == KindVariable:
		return withinBounds(r, b.upper, nil)
	case r.kind == KindVariable && b.kind == KindVariable:
		for _, rb := range r.upper {
			matched := false
			for _, bb := range b.upper {
				if isAssignable(bb, rb) {
					matched = true
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}
	return false
}

func isUnboundedArg(a *Type) bool {
	switch a.kind {
	case KindWildcard, KindVariable:
		return len(a.lower) == 0 && (len(a.upper) == 0 || (len(a.upper) == 1 && a.upper[0].IsObject()))
	}
	return a.IsObject()
}

// eventTypeMatches applies the observer resolution rules: observed is the
// type declared by an observer, eventType one type from the event's closure.
func eventTypeMatches(observed, eventType *Type) bool {
	if observed.kind == KindVariable {
		return withinBounds(eventType, observed.upper, nil)
	}
	if observed.IsObject() {
		return true
	}
	if observed.goType != nil && eventType.goType != nil {
		if observed.goType.Kind() == reflect.Interface {
			return eventType.goType.Implements(observed.goType)
		}
		return observed.goType == eventType.goType
	}
	if !sameRaw(observed, eventType) {
		return false
	}
	if observed.kind == KindClass {
		return true
	}
	if eventType.kind == KindClass {
		for _, a := range observed.args {
			if !isUnboundedArg(a) {
				return false
			}
		}
		return true
	}
	if len(observed.args) != len(eventType.args) {
		return false
	}
	for i := range observed.args {
		o, e := observed.args[i], eventType.args[i]
		switch o.kind {
		case KindWildcard:
			if !withinBounds(e, o.upper, o.lower) {
				return false
			}
		case KindVariable:
			if !withinBounds(e, o.upper, nil) {
				return false
			}
		case KindParameterized:
			if !eventTypeMatches(o, e) {
				return false
			}
		default:
			if !o.Equal(e) {
				return false
			}
		}
	}
	return true
}
