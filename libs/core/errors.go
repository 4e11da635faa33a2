package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Sentinel errors. Every typed error below unwraps to one of these where a
// category applies, so callers can branch with errors.Is.
var (
	ErrIllegalArgument      = errors.New("doffy: illegal argument")
	ErrIllegalState         = errors.New("doffy: illegal state")
	ErrUnsupportedOperation = errors.New("doffy: unsupported operation")
	ErrContextNotActive     = errors.New("doffy: context not active")
	ErrTimeout              = errors.New("doffy: timeout")
	ErrFrozen               = errors.New("doffy: container is frozen")
)

// illegalArgument wraps ErrIllegalArgument with a formatted message
func illegalArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalArgument, fmt.Sprintf(format, args...))
}

// illegalState wraps ErrIllegalState with a formatted message
func illegalState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}

// UnsatisfiedResolutionError is returned when no enabled bean matches a
// required type and qualifier set.
type UnsatisfiedResolutionError struct {
	Type           *Type
	Qualifiers     []Qualifier
	InjectionPoint *InjectionPoint
}

func (e *UnsatisfiedResolutionError) Error() string {
	msg := fmt.Sprintf("doffy: unsatisfied dependency for type %s with qualifiers %s", e.Type, qualifierList(e.Qualifiers))
	if e.InjectionPoint != nil {
		msg += " at " + e.InjectionPoint.String()
	}
	return msg
}

// Unwrap reports the error as an illegal state for programmatic lookups
func (e *UnsatisfiedResolutionError) Unwrap() error { return ErrIllegalState }

// AmbiguousResolutionError is returned when several enabled beans match and
// neither alternatives nor specialization narrow the set to one.
type AmbiguousResolutionError struct {
	Type           *Type
	Qualifiers     []Qualifier
	Beans          []*BeanDefinition
	InjectionPoint *InjectionPoint
}

func (e *AmbiguousResolutionError) Error() string {
	ids := make([]string, len(e.Beans))
	for i, b := range e.Beans {
		ids[i] = b.ID()
	}
	msg := fmt.Sprintf("doffy: ambiguous dependency for type %s with qualifiers %s, candidates [%s]",
		e.Type, qualifierList(e.Qualifiers), strings.Join(ids, ", "))
	if e.InjectionPoint != nil {
		msg += " at " + e.InjectionPoint.String()
	}
	return msg
}

// Unwrap reports the error as an illegal state for programmatic lookups
func (e *AmbiguousResolutionError) Unwrap() error { return ErrIllegalState }

// CircularDependencyError describes a dependency cycle that cannot be broken
// by a client proxy.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("doffy: circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// UnproxyableResolutionError is returned when a bean needs a client proxy
// (normal scope, interceptors or decorators) but supplies no proxy factory.
type UnproxyableResolutionError struct {
	Bean   string
	Reason string
}

func (e *UnproxyableResolutionError) Error() string {
	return fmt.Sprintf("doffy: bean '%s' is not proxyable: %s", e.Bean, e.Reason)
}

// DefinitionError reports an invalid bean, observer, interceptor or decorator definition
type DefinitionError struct {
	Bean   string
	Reason string
	Err    error
}

func (e *DefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("doffy: definition error in '%s': %s: %v", e.Bean, e.Reason, e.Err)
	}
	return fmt.Sprintf("doffy: definition error in '%s': %s", e.Bean, e.Reason)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// DeploymentError aggregates every problem found while validating a deployment
type DeploymentError struct {
	Err error
}

func (e *DeploymentError) Error() string {
	errs := multierr.Errors(e.Err)
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("doffy: deployment failed with %d error(s):\n%s", len(errs), strings.Join(lines, "\n"))
}

func (e *DeploymentError) Unwrap() []error { return multierr.Errors(e.Err) }

// Errors returns the individual problems in discovery order
func (e *DeploymentError) Errors() []error { return multierr.Errors(e.Err) }

// CreationError wraps a failure raised while constructing, injecting or
// initializing a contextual instance.
type CreationError struct {
	Bean string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("doffy: failed to create instance of '%s': %v", e.Bean, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// DestructionError wraps a failure raised by a pre-destroy callback or disposer
type DestructionError struct {
	Bean string
	Err  error
}

func (e *DestructionError) Error() string {
	return fmt.Sprintf("doffy: failed to destroy instance of '%s': %v", e.Bean, e.Err)
}

func (e *DestructionError) Unwrap() error { return e.Err }

// ObserverError wraps a failure raised by an observer method
type ObserverError struct {
	Observer string
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("doffy: observer '%s' failed: %v", e.Observer, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }

// TimeoutError is raised when an asynchronous notification exceeds its deadline
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("doffy: notification timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CompletionError completes an asynchronous notification exceptionally.
// Cause is the first observer failure if one happened before the deadline,
// otherwise the TimeoutError. Suppressed holds every other failure.
type CompletionError struct {
	Cause      error
	Suppressed []error
}

func (e *CompletionError) Error() string {
	if len(e.Suppressed) == 0 {
		return fmt.Sprintf("doffy: asynchronous notification failed: %v", e.Cause)
	}
	return fmt.Sprintf("doffy: asynchronous notification failed: %v (%d suppressed)", e.Cause, len(e.Suppressed))
}

func (e *CompletionError) Unwrap() []error {
	return append([]error{e.Cause}, e.Suppressed...)
}

// BusyConversationError is returned when a conversation lock cannot be
// acquired within the concurrent access timeout.
type BusyConversationError struct {
	ID string
}

func (e *BusyConversationError) Error() string {
	return fmt.Sprintf("doffy: conversation '%s' is locked by another request", e.ID)
}

// NonexistentConversationError is returned when a request names a
// conversation that was never started or already expired.
type NonexistentConversationError struct {
	ID string
}

func (e *NonexistentConversationError) Error() string {
	return fmt.Sprintf("doffy: conversation '%s' does not exist", e.ID)
}

func qualifierList(qs []Qualifier) string {
	keys := make([]string, len(qs))
	for i, q := range qs {
		keys[i] = q.String()
	}
	return "[" + strings.Join(keys, ", ") + "]"
}
