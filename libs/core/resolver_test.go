package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spanish = Qualifier{Name: "Spanish"}

func beanIDs(beans []*BeanDefinition) []string {
	ids := make([]string, len(beans))
	for i, b := range beans {
		ids[i] = b.ID()
	}
	return ids
}

func TestResolver_Resolve(t *testing.T) {
	greeter := TypeFor[Greeter]()

	tests := []struct {
		name       string
		beans      []Provider
		enable     []string
		qualifiers []Qualifier
		want       []string
	}{
		{
			name:  "single match",
			beans: []Provider{Managed[*englishGreeter]().ID("english").Typed(greeter)},
			want:  []string{"english"},
		},
		{
			name: "qualifier narrows",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*spanishGreeter]().ID("spanish").Typed(greeter).Qualified(spanish),
			},
			qualifiers: []Qualifier{spanish},
			want:       []string{"spanish"},
		},
		{
			name: "default qualifier excludes qualified beans",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*spanishGreeter]().ID("spanish").Typed(greeter).Qualified(spanish),
			},
			want: []string{"english"},
		},
		{
			name: "any matches every bean",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*spanishGreeter]().ID("spanish").Typed(greeter).Qualified(spanish),
			},
			qualifiers: []Qualifier{Any},
			want:       []string{"english", "spanish"},
		},
		{
			name: "disabled alternative is ignored",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*frenchGreeter]().ID("french").Typed(greeter).Alternative(0),
			},
			want: []string{"english"},
		},
		{
			name: "enabled alternative wins",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*frenchGreeter]().ID("french").Typed(greeter).Alternative(0),
			},
			enable: []string{"french"},
			want:   []string{"french"},
		},
		{
			name: "alternative enabled by class",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*frenchGreeter]().ID("french").Typed(greeter).Alternative(0),
			},
			enable: []string{"*core.frenchGreeter"},
			want:   []string{"french"},
		},
		{
			name: "highest priority alternative wins",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter).Alternative(10),
				Managed[*frenchGreeter]().ID("french").Typed(greeter).Alternative(20),
				Managed[*spanishGreeter]().ID("spanish").Typed(greeter),
			},
			want: []string{"french"},
		},
		{
			name: "specializing bean replaces its target",
			beans: []Provider{
				Managed[*englishGreeter]().ID("english").Typed(greeter),
				Managed[*frenchGreeter]().ID("french").Typed(greeter).Specializes("english"),
			},
			want: []string{"french"},
		},
		{
			name:  "unsatisfied",
			beans: []Provider{Managed[*englishGreeter]().ID("english")},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContainer(t)
			require.NoError(t, c.Register(tt.beans...))
			if len(tt.enable) > 0 {
				require.NoError(t, c.EnableAlternatives(tt.enable...))
			}

			beans, err := c.Resolve(greeter, tt.qualifiers...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, beanIDs(beans))
		})
	}
}

func TestResolver_DeterministicAcrossCache(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().ID("english").Typed(TypeFor[Greeter]()),
		Managed[*spanishGreeter]().ID("spanish").Typed(TypeFor[Greeter]()).Qualified(spanish),
	))

	for i := 0; i < 3; i++ {
		bean, err := c.ResolveUnique(TypeFor[Greeter](), spanish)
		require.NoError(t, err)
		assert.Equal(t, "spanish", bean.ID())

		bean, err = c.ResolveUnique(TypeFor[Greeter]())
		require.NoError(t, err)
		assert.Equal(t, "english", bean.ID())
	}

	require.NoError(t, c.Register(Managed[*frenchGreeter]().ID("french").Typed(TypeFor[Greeter]()).Alternative(1)))
	bean, err := c.ResolveUnique(TypeFor[Greeter]())
	require.NoError(t, err)
	assert.Equal(t, "french", bean.ID(), "registration invalidates cached results")
}

func TestResolver_CallersCannotChangeCachedResults(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(Managed[*englishGreeter]().ID("english").Typed(TypeFor[Greeter]())))

	first, err := c.Resolve(TypeFor[Greeter]())
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0] = nil

	second, err := c.Resolve(TypeFor[Greeter]())
	require.NoError(t, err)
	assert.Equal(t, []string{"english"}, beanIDs(second))

	second[0] = nil
	third, err := c.Resolve(TypeFor[Greeter]())
	require.NoError(t, err)
	assert.Equal(t, []string{"english"}, beanIDs(third))
}

func TestResolver_UniqueErrors(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().ID("english").Typed(TypeFor[Greeter]()),
		Managed[*spanishGreeter]().ID("spanish").Typed(TypeFor[Greeter]()),
	))

	_, err := c.ResolveUnique(TypeFor[Greeter]())
	var ambiguous *AmbiguousResolutionError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []string{"english", "spanish"}, beanIDs(ambiguous.Beans))
	assert.ErrorIs(t, err, ErrIllegalState)

	_, err = c.ResolveUnique(TypeFor[Counter]())
	var unsatisfied *UnsatisfiedResolutionError
	require.ErrorAs(t, err, &unsatisfied)
	assert.ErrorIs(t, err, ErrIllegalState)

	_, err = c.Resolve(Variable("T"))
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = c.Resolve(nil)
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestResolver_ByName(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*englishGreeter]().Typed(TypeFor[Greeter]()).Named(""),
		Managed[*spanishGreeter]().Typed(TypeFor[Greeter]()).Named("hola"),
	))

	bean, err := c.ResolveByName("englishGreeter")
	require.NoError(t, err)
	assert.Equal(t, "englishGreeter", bean.Name())

	bean, err = c.ResolveByName("hola")
	require.NoError(t, err)
	assert.Equal(t, "hola", bean.Name())

	_, err = c.ResolveByName("missing")
	assert.ErrorIs(t, err, ErrIllegalState)

	named, err := c.ResolveUnique(TypeFor[Greeter](), Named("hola"))
	require.NoError(t, err)
	assert.Same(t, bean, named)
}

func TestResolver_SpecializationInheritsQualifiers(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Managed[*spanishGreeter]().ID("spanish").Typed(TypeFor[Greeter]()).Qualified(spanish).Named("hola"),
		Managed[*frenchGreeter]().ID("french").Typed(TypeFor[Greeter]()).Specializes("spanish"),
	))
	require.NoError(t, c.Freeze(context.Background()))

	bean, err := c.ResolveUnique(TypeFor[Greeter](), spanish)
	require.NoError(t, err)
	assert.Equal(t, "french", bean.ID())

	bean, err = c.ResolveByName("hola")
	require.NoError(t, err)
	assert.Equal(t, "french", bean.ID())

	greeter, err := Lookup[Greeter](context.Background(), c, spanish)
	require.NoError(t, err)
	msg, err := greeter.Greet(context.Background(), "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour Ada", msg)
}

func TestResolver_ObjectTypeMatchesEveryBean(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(Managed[*englishGreeter]().ID("english").Qualified(spanish)))

	beans, err := c.Resolve(ObjectType, spanish)
	require.NoError(t, err)
	assert.Equal(t, []string{"english"}, beanIDs(beans))
}
