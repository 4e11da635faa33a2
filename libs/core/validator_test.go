package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeterClient struct {
	Greeter Greeter `doffy:"inject"`
}

type chicken struct{ egg *egg }
type egg struct{ chicken *chicken }

func newChicken(e *egg) *chicken { return &chicken{egg: e} }
func newEgg(c *chicken) *egg     { return &egg{chicken: c} }

// Kettle and Stove need each other at construction time
type Kettle interface {
	Boil(ctx context.Context) error
}

type Stove interface {
	Heat(ctx context.Context) error
}

type kettleProxy struct{ inv Invoker }

func (p kettleProxy) Boil(ctx context.Context) error { return Return0(p.inv.Invoke("Boil", ctx)) }

type stoveProxy struct{ inv Invoker }

func (p stoveProxy) Heat(ctx context.Context) error { return Return0(p.inv.Invoke("Heat", ctx)) }

type kettle struct{ stove Stove }

func (k *kettle) Boil(ctx context.Context) error { return nil }

type stove struct{ kettle Kettle }

func (s *stove) Heat(ctx context.Context) error { return nil }

func newKettle(s Stove) *kettle { return &kettle{stove: s} }
func newStove(k Kettle) *stove  { return &stove{kettle: k} }

type left struct {
	Right *right `doffy:"inject"`
}

type right struct {
	Left *left `doffy:"inject"`
}

type metadataConsumer struct {
	Point *InjectionPoint `doffy:"inject"`
}

func deploymentProblems(t *testing.T, err error) []error {
	t.Helper()
	var deployment *DeploymentError
	require.ErrorAs(t, err, &deployment)
	return deployment.Errors()
}

func TestValidator_UnsatisfiedDependency(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(Managed[*greeterClient]()))

	err := c.Freeze(context.Background())
	problems := deploymentProblems(t, err)
	require.Len(t, problems, 1)

	var unsatisfied *UnsatisfiedResolutionError
	require.ErrorAs(t, problems[0], &unsatisfied)
	assert.Equal(t, "Greeter", unsatisfied.InjectionPoint.Member)
	assert.False(t, c.Registry().Frozen(), "a failed deployment stays open")
}

func TestValidator_AmbiguousDependency(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().Typed(TypeFor[Greeter]()),
		Managed[*spanishGreeter]().Typed(TypeFor[Greeter]()),
		Managed[*greeterClient](),
	))

	err := c.Freeze(context.Background())
	var ambiguous *AmbiguousResolutionError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Beans, 2)
}

func TestValidator_AmbiguityResolvedByAlternative(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().Typed(TypeFor[Greeter]()),
		Managed[*spanishGreeter]().Typed(TypeFor[Greeter]()).Alternative(100),
		Managed[*greeterClient](),
	))
	require.NoError(t, c.Freeze(context.Background()))

	client, err := Lookup[*greeterClient](context.Background(), c)
	require.NoError(t, err)
	msg, err := client.Greeter.Greet(context.Background(), "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Hola Ada", msg)
}

func TestValidator_CircularConstructorDependency(t *testing.T) {
	tests := []struct {
		name  string
		beans []Provider
		ids   []string
	}{
		{
			name: "dependent",
			beans: []Provider{
				Managed[*chicken]().Constructor(newChicken),
				Managed[*egg]().Constructor(newEgg),
			},
			ids: []string{"*core.chicken", "*core.egg"},
		},
		{
			name: "singleton",
			beans: []Provider{
				Managed[*chicken]().Constructor(newChicken).Scoped(Singleton),
				Managed[*egg]().Constructor(newEgg).Scoped(Singleton),
			},
			ids: []string{"*core.chicken", "*core.egg"},
		},
		{
			name: "application scoped behind proxies",
			beans: []Provider{
				Managed[*kettle]().Types(TypeFor[Kettle]()).Constructor(newKettle).
					Scoped(ApplicationScoped).Proxy(func(inv Invoker) any { return kettleProxy{inv: inv} }),
				Managed[*stove]().Types(TypeFor[Stove]()).Constructor(newStove).
					Scoped(ApplicationScoped).Proxy(func(inv Invoker) any { return stoveProxy{inv: inv} }),
			},
			ids: []string{"*core.kettle", "*core.stove"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContainer(t)
			require.NoError(t, c.Register(tt.beans...))

			err := c.Freeze(context.Background())
			var cycle *CircularDependencyError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
			assert.ElementsMatch(t, tt.ids, cycle.Path[:len(cycle.Path)-1])

			// the cycle is reported once, not once per bean
			cycles := 0
			for _, p := range deploymentProblems(t, err) {
				if errors.As(p, &cycle) {
					cycles++
				}
			}
			assert.Equal(t, 1, cycles)
		})
	}
}

func TestValidator_SingletonFieldCycleIsAllowed(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*left]().Scoped(Singleton),
		Managed[*right]().Scoped(Singleton),
	))
	require.NoError(t, c.Freeze(context.Background()))

	l, err := Lookup[*left](context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, l.Right)
	assert.Same(t, l, l.Right.Left)
}

func TestValidator_DependentFieldCycleFails(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*left](),
		Managed[*right](),
	))

	err := c.Freeze(context.Background())
	var cycle *CircularDependencyError
	assert.ErrorAs(t, err, &cycle)
}

func TestValidator_NormalScopedBeanWithoutProxy(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().Typed(TypeFor[Greeter]()).Scoped(ApplicationScoped),
		Managed[*greeterClient](),
	))

	err := c.Freeze(context.Background())
	var unproxyable *UnproxyableResolutionError
	require.ErrorAs(t, err, &unproxyable)
	assert.Equal(t, "*core.englishGreeter", unproxyable.Bean)
}

func TestValidator_InterceptedBeanWithoutProxy(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Value(&callTrace{}),
		Managed[*englishGreeter]().Typed(TypeFor[Greeter]()).InterceptedBy("Traced"),
		Managed[*tracingInterceptor]().Interceptor(10, "Traced"),
	))

	err := c.Freeze(context.Background())
	var unproxyable *UnproxyableResolutionError
	assert.ErrorAs(t, err, &unproxyable)
}

func TestValidator_CollectsEveryProblem(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*greeterClient](),
		Managed[*metadataConsumer]().Scoped(Singleton),
		Managed[*engine]().Scoped(Scope("Unknown")),
		Managed[*wheel]().Specializes("missing"),
	))

	problems := deploymentProblems(t, c.Freeze(context.Background()))
	assert.Len(t, problems, 4)

	var defErr *DefinitionError
	definitionErrors := 0
	for _, p := range problems {
		if errors.As(p, &defErr) {
			definitionErrors++
		}
	}
	assert.Equal(t, 3, definitionErrors)
}

func TestValidator_AmbiguousNames(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().Named("greeter"),
		Managed[*spanishGreeter]().Named("greeter"),
	))

	err := c.Freeze(context.Background())
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Reason, "ambiguous bean name 'greeter'")
}

func TestValidator_SequentialValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Bootstrap.ConcurrentValidation = false
	c := New(WithConfig(cfg))
	defer c.Shutdown(context.Background())

	require.NoError(t, c.Register(Managed[*greeterClient]()))
	var unsatisfied *UnsatisfiedResolutionError
	assert.ErrorAs(t, c.Freeze(context.Background()), &unsatisfied)
}
