package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greeterDeployment(t *testing.T, rec *recorder) *Container {
	t.Helper()
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().ID("english").Types(TypeFor[Greeter]()).
			PreDestroy(func(*englishGreeter) error {
				rec.add("english")
				return nil
			}),
		Managed[*spanishGreeter]().ID("spanish").Types(TypeFor[Greeter]()).Qualified(spanish).
			PreDestroy(func(*spanishGreeter) error {
				rec.add("spanish")
				return nil
			}),
	))
	require.NoError(t, c.Freeze(context.Background()))
	return c
}

func TestInstance_All(t *testing.T) {
	rec := &recorder{}
	c := greeterDeployment(t, rec)
	ctx := context.Background()

	handle := c.Instance(TypeFor[Greeter](), Any)
	assert.True(t, handle.IsAmbiguous())
	assert.False(t, handle.IsResolvable())

	var greetings []string
	for ref, err := range handle.All(ctx) {
		require.NoError(t, err)
		msg, err := ref.(Greeter).Greet(ctx, "Ada")
		require.NoError(t, err)
		greetings = append(greetings, msg)
	}
	assert.Equal(t, []string{"Hello Ada", "Hola Ada"}, greetings)

	require.NoError(t, handle.Release())
	assert.Equal(t, []string{"spanish", "english"}, rec.list(), "dependents are released in reverse order")
}

func TestInstance_Select(t *testing.T) {
	rec := &recorder{}
	c := greeterDeployment(t, rec)
	ctx := context.Background()

	handle := c.Instance(TypeFor[Greeter]())
	assert.True(t, handle.IsResolvable(), "the default qualifier excludes the spanish greeter")

	selected := handle.Select(spanish)
	assert.True(t, selected.IsResolvable())
	ref, err := selected.Get(ctx)
	require.NoError(t, err)
	msg, err := ref.(Greeter).Greet(ctx, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Hola Ada", msg)

	missing := handle.Select(Named("nobody"))
	assert.True(t, missing.IsUnsatisfied())
	_, err = missing.Get(ctx)
	var unsatisfied *UnsatisfiedResolutionError
	assert.ErrorAs(t, err, &unsatisfied)

	_, err = c.Instance(TypeFor[Greeter](), Any).Get(ctx)
	var ambiguous *AmbiguousResolutionError
	assert.ErrorAs(t, err, &ambiguous)
}

func TestInstance_SelectType(t *testing.T) {
	rec := &recorder{}
	c := greeterDeployment(t, rec)

	handle := c.Instance(ObjectType, Any)
	narrowed, err := handle.SelectType(TypeFor[*spanishGreeter]())
	require.NoError(t, err)
	assert.True(t, narrowed.IsResolvable())
	assert.True(t, narrowed.Type().Equal(TypeFor[*spanishGreeter]()))

	_, err = handle.SelectType(Variable("T"))
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = c.Instance(TypeFor[*englishGreeter]()).SelectType(TypeFor[*spanishGreeter]())
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestInstance_DestroyDependent(t *testing.T) {
	rec := &recorder{}
	c := greeterDeployment(t, rec)
	ctx := context.Background()

	handle := c.Instance(TypeFor[Greeter]())
	first, err := handle.Get(ctx)
	require.NoError(t, err)
	second, err := handle.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "every Get creates a new dependent instance")

	require.NoError(t, handle.Destroy(ctx, first))
	assert.Equal(t, []string{"english"}, rec.list())

	assert.ErrorIs(t, handle.Destroy(ctx, first), ErrIllegalArgument, "already destroyed")

	require.NoError(t, handle.Release())
	assert.Equal(t, []string{"english", "english"}, rec.list())
}

func TestInstance_DestroyNormalScoped(t *testing.T) {
	c := newTestContainer(t)
	var destroyed int
	require.NoError(t, c.Register(Managed[*counter]().
		Typed(TypeFor[Counter]()).
		Scoped(RequestScoped).
		Proxy(func(inv Invoker) any { return counterProxy{inv: inv} }).
		PreDestroy(func(*counter) error {
			destroyed++
			return nil
		})))
	require.NoError(t, c.Freeze(context.Background()))

	ctx, err := c.BeginScope(context.Background(), RequestScoped, "r1")
	require.NoError(t, err)
	defer c.EndScope(RequestScoped, "r1")

	handle := c.Instance(TypeFor[Counter]())
	ref, err := handle.Get(ctx)
	require.NoError(t, err)
	proxy := ref.(Counter)

	n, err := proxy.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = proxy.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, handle.Destroy(ctx, ref))
	assert.Equal(t, 1, destroyed)

	n, err = proxy.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the proxy reaches a fresh instance")
}
