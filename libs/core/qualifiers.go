package core

import (
	"fmt"
	"sort"
	"strings"
)

// Qualifier narrows which bean satisfies an injection point beyond its type.
// Two qualifiers are equal when their names match and every binding member
// has the same value. Members listed in Nonbinding are ignored.
type Qualifier struct {
	Name       string
	Members    map[string]any
	Nonbinding []string
}

// Built-in qualifiers
var (
	Any     = Qualifier{Name: "Any"}
	Default = Qualifier{Name: "Default"}
)

const namedQualifier = "Named"

// NewQualifier builds a qualifier with binding members
func NewQualifier(name string, members map[string]any, nonbinding ...string) Qualifier {
	return Qualifier{Name: name, Members: members, Nonbinding: nonbinding}
}

// Named returns the built-in qualifier carrying a bean name
func Named(name string) Qualifier {
	return Qualifier{Name: namedQualifier, Members: map[string]any{"value": name}}
}

// String returns the canonical form used for equality and cache keys
func (q Qualifier) String() string {
	if len(q.Members) == 0 {
		return "@" + q.Name
	}
	keys := make([]string, 0, len(q.Members))
	for k := range q.Members {
		if q.isNonbinding(k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "@" + q.Name
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, q.Members[k])
	}
	return "@" + q.Name + "(" + strings.Join(parts, ",") + ")"
}

func (q Qualifier) isNonbinding(member string) bool {
	for _, n := range q.Nonbinding {
		if n == member {
			return true
		}
	}
	return false
}

// Equal compares binding members only
func (q Qualifier) Equal(o Qualifier) bool {
	return q.String() == o.String()
}

// parseQualifierTag reads a `doffy:"inject,named=x,qualifier=Y,delegate"` tag
func parseQualifierTag(tag string) (inject, delegate bool, qualifiers []Qualifier) {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "inject":
			inject = true
		case part == "delegate":
			inject = true
			delegate = true
		case strings.HasPrefix(part, "named="):
			qualifiers = append(qualifiers, Named(strings.TrimPrefix(part, "named=")))
		case strings.HasPrefix(part, "qualifier="):
			qualifiers = append(qualifiers, Qualifier{Name: strings.TrimPrefix(part, "qualifier=")})
		}
	}
	return inject, delegate, qualifiers
}

// beanQualifiers normalizes declared bean qualifiers: Default is implied when
// nothing but Named/Any is declared, Any is always present.
func beanQualifiers(declared []Qualifier) []Qualifier {
	out := dedupQualifiers(declared)
	needsDefault := true
	hasAny := false
	for _, q := range out {
		switch q.Name {
		case Any.Name:
			hasAny = true
		case namedQualifier:
		default:
			needsDefault = false
		}
	}
	if needsDefault {
		out = append(out, Default)
	}
	if !hasAny {
		out = append(out, Any)
	}
	return out
}

// requiredQualifiers normalizes qualifiers of an injection point or lookup
func requiredQualifiers(declared []Qualifier) []Qualifier {
	if len(declared) == 0 {
		return []Qualifier{Default}
	}
	return dedupQualifiers(declared)
}

// eventQualifiers normalizes qualifiers of a fired event
func eventQualifiers(declared []Qualifier) []Qualifier {
	out := dedupQualifiers(declared)
	if len(out) == 0 {
		out = append(out, Default)
	}
	return dedupQualifiers(append(out, Any))
}

func dedupQualifiers(qs []Qualifier) []Qualifier {
	seen := make(map[string]bool, len(qs))
	out := make([]Qualifier, 0, len(qs)+2)
	for _, q := range qs {
		k := q.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, q)
	}
	return out
}

// hasAllQualifiers reports whether have contains every qualifier of required
func hasAllQualifiers(have, required []Qualifier) bool {
	for _, r := range required {
		found := false
		for _, h := range have {
			if h.Equal(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func qualifiersKey(qs []Qualifier) string {
	keys := make([]string, len(qs))
	for i, q := range qs {
		keys[i] = q.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, "")
}
