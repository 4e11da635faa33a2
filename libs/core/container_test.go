package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Log.Environment = "test"
	return cfg
}

func newTestContainer(t *testing.T, opts ...Option) *Container {
	t.Helper()
	c := New(append([]Option{WithConfig(testConfig())}, opts...)...)
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
	})
	return c
}

// Greeter is the business interface shared by the greeter fixtures
type Greeter interface {
	Greet(ctx context.Context, name string) (string, error)
}

type greeterProxy struct{ inv Invoker }

func (p greeterProxy) Greet(ctx context.Context, name string) (string, error) {
	return Return1[string](p.inv.Invoke("Greet", ctx, name))
}

func newGreeterProxy(inv Invoker) any { return greeterProxy{inv: inv} }

type englishGreeter struct{ id int }

func (g *englishGreeter) Greet(_ context.Context, name string) (string, error) {
	return "Hello " + name, nil
}

type spanishGreeter struct{ id int }

func (g *spanishGreeter) Greet(_ context.Context, name string) (string, error) {
	return "Hola " + name, nil
}

type frenchGreeter struct{ id int }

func (g *frenchGreeter) Greet(_ context.Context, name string) (string, error) {
	return "Bonjour " + name, nil
}

// Counter is a stateful business interface for scope tests
type Counter interface {
	Next(ctx context.Context) (int, error)
}

type counterProxy struct{ inv Invoker }

func (p counterProxy) Next(ctx context.Context) (int, error) {
	return Return1[int](p.inv.Invoke("Next", ctx))
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Next(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

// recorder collects lifecycle events in call order
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type engine struct{ id int }
type wheel struct{ id int }

type car struct {
	Engine *engine `doffy:"inject"`
	Wheel  *wheel  `doffy:"inject"`
}

func TestContainer_LookupApplicationScopedBean(t *testing.T) {
	c := newTestContainer(t)
	var created atomic.Int32

	require.NoError(t, c.Register(
		Managed[*englishGreeter]().
			Typed(TypeFor[Greeter]()).
			Scoped(ApplicationScoped).
			Proxy(newGreeterProxy).
			PostConstruct(func(*englishGreeter) error {
				created.Add(1)
				return nil
			}),
	))
	require.NoError(t, c.Freeze(context.Background()))

	ctx := context.Background()
	greeter, err := Lookup[Greeter](ctx, c)
	require.NoError(t, err)
	assert.IsType(t, greeterProxy{}, greeter)
	assert.Equal(t, int32(0), created.Load(), "client proxies are lazy")

	for i := 0; i < 3; i++ {
		msg, err := greeter.Greet(ctx, "Ada")
		require.NoError(t, err)
		assert.Equal(t, "Hello Ada", msg)
	}
	assert.Equal(t, int32(1), created.Load())

	var again Greeter
	require.NoError(t, c.ResolveAs(ctx, &again))
	assert.Equal(t, greeter, again)
}

func TestContainer_ReferenceRequiresFreeze(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(Managed[*englishGreeter]().Typed(TypeFor[Greeter]())))

	_, err := Lookup[Greeter](context.Background(), c)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestContainer_RegisterAfterFreeze(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Freeze(context.Background()))

	err := c.Register(Managed[*englishGreeter]())
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, c.EnableAlternatives("x"), ErrFrozen)
	assert.ErrorIs(t, c.RegisterScope(Scope("Batch"), true), ErrFrozen)
}

func TestContainer_DuplicateBeanID(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(Managed[*englishGreeter]().ID("greeter")))

	err := c.Register(Managed[*spanishGreeter]().ID("greeter"))
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "greeter", defErr.Bean)
}

func TestContainer_InvalidDeclarations(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
	}{
		{
			name:     "managed non-struct without constructor",
			provider: Managed[Greeter](),
		},
		{
			name:     "constructor with wrong result",
			provider: Managed[*englishGreeter]().Constructor(func() *spanishGreeter { return nil }),
		},
		{
			name:     "producer without result",
			provider: Producer[int](func() {}),
		},
		{
			name:     "interceptor without binding",
			provider: Managed[*tracingInterceptor]().Interceptor(10),
		},
		{
			name:     "normal-scoped interceptor",
			provider: Managed[*tracingInterceptor]().Interceptor(10, "Traced").Scoped(ApplicationScoped),
		},
		{
			name:     "unknown observer method",
			provider: Managed[*tally]().Observes("OnNothing", nil),
		},
		{
			name:     "unknown initializer",
			provider: Managed[*tally]().Initializer("Setup"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContainer(t)
			err := c.Register(tt.provider)
			var defErr *DefinitionError
			assert.ErrorAs(t, err, &defErr)
		})
	}
}

func TestContainer_DependentsReleasedInReverseOrder(t *testing.T) {
	c := newTestContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Register(
		Managed[*engine]().PreDestroy(func(*engine) error { rec.add("engine"); return nil }),
		Managed[*wheel]().PreDestroy(func(*wheel) error { rec.add("wheel"); return nil }),
		Managed[*car]().PreDestroy(func(*car) error { rec.add("car"); return nil }),
	))
	require.NoError(t, c.Freeze(context.Background()))

	ctx := context.Background()
	handle := c.Instance(TypeFor[*car]())
	ref, err := handle.Get(ctx)
	require.NoError(t, err)

	vehicle := ref.(*car)
	require.NotNil(t, vehicle.Engine)
	require.NotNil(t, vehicle.Wheel)

	require.NoError(t, handle.Destroy(ctx, vehicle))
	assert.Equal(t, []string{"car", "wheel", "engine"}, rec.list())
	assert.Nil(t, vehicle.Engine, "injected fields are cleared on disposal")
}

func TestContainer_RequestScopeInstances(t *testing.T) {
	c := newTestContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Register(
		Managed[*counter]().
			Typed(TypeFor[Counter]()).
			Scoped(RequestScoped).
			Proxy(func(inv Invoker) any { return counterProxy{inv: inv} }).
			PreDestroy(func(*counter) error { rec.add("destroyed"); return nil }),
	))
	require.NoError(t, c.Freeze(context.Background()))

	cnt, err := Lookup[Counter](context.Background(), c)
	require.NoError(t, err)

	ctx1, err := c.BeginScope(context.Background(), RequestScoped, "r1")
	require.NoError(t, err)
	ctx2, err := c.BeginScope(context.Background(), RequestScoped, "r2")
	require.NoError(t, err)

	assert.True(t, c.IsActive(ctx1, RequestScoped))
	assert.False(t, c.IsActive(context.Background(), RequestScoped))
	id, ok := ScopeID(ctx1, RequestScoped)
	assert.True(t, ok)
	assert.Equal(t, "r1", id)

	for want := 1; want <= 3; want++ {
		got, err := cnt.Next(ctx1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := cnt.Next(ctx2)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "each request has its own instance")

	assert.Equal(t, []string{"r1", "r2"}, c.ScopeIDs(RequestScoped))
	require.NoError(t, c.EndScope(RequestScoped, "r1"))
	assert.Equal(t, []string{"destroyed"}, rec.list())
	assert.Equal(t, []string{"r2"}, c.ScopeIDs(RequestScoped))

	_, err = cnt.Next(context.Background())
	assert.ErrorIs(t, err, ErrContextNotActive)
}

func TestContainer_BeginScopeRejectsUnknownScopes(t *testing.T) {
	c := newTestContainer(t)

	_, err := c.BeginScope(context.Background(), ConversationScoped, "")
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = c.BeginScope(context.Background(), ApplicationScoped, "")
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = c.BeginScope(context.Background(), Scope("Batch"), "")
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestContainer_CustomScope(t *testing.T) {
	c := newTestContainer(t)
	batch := Scope("BatchScoped")
	require.NoError(t, c.RegisterScope(batch, true))
	assert.ErrorIs(t, c.RegisterScope(batch, true), ErrIllegalArgument)

	require.NoError(t, c.Register(
		Managed[*counter]().
			Typed(TypeFor[Counter]()).
			Scoped(batch).
			Proxy(func(inv Invoker) any { return counterProxy{inv: inv} }),
	))
	require.NoError(t, c.Freeze(context.Background()))

	ctx, err := c.BeginScope(context.Background(), batch, "")
	require.NoError(t, err)
	id, ok := ScopeID(ctx, batch)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	cnt, err := Lookup[Counter](ctx, c)
	require.NoError(t, err)
	n, err := cnt.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.EndScope(batch, id))
}

func TestContainer_BuiltInBeans(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Freeze(context.Background()))
	ctx := context.Background()

	bm, err := Lookup[BeanManager](ctx, c)
	require.NoError(t, err)
	assert.Same(t, c, bm)

	cfg, err := Lookup[*Config](ctx, c)
	require.NoError(t, err)
	assert.Same(t, c.Config(), cfg)

	log, err := Lookup[Logger](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, c.Logger(), log)

	_, err = Lookup[*Metrics](ctx, c)
	var unsatisfied *UnsatisfiedResolutionError
	assert.ErrorAs(t, err, &unsatisfied, "metrics are disabled by default")
}

type answerConsumer struct {
	Answer int `doffy:"inject,qualifier=Answer"`
}

type resource struct {
	mu     sync.Mutex
	closed bool
}

func (r *resource) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestContainer_ProducerAndDisposer(t *testing.T) {
	c := newTestContainer(t)
	produced := &resource{}

	require.NoError(t, c.Register(
		Producer[int](func() int { return 42 }).Qualified(Qualifier{Name: "Answer"}),
		Managed[*answerConsumer](),
		Producer[*resource](func() (*resource, error) { return produced, nil }).
			Scoped(Singleton).
			Disposer(func(r *resource) {
				r.mu.Lock()
				r.closed = true
				r.mu.Unlock()
			}),
	))
	require.NoError(t, c.Freeze(context.Background()))
	ctx := context.Background()

	consumer, err := Lookup[*answerConsumer](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 42, consumer.Answer)

	res, err := Lookup[*resource](ctx, c)
	require.NoError(t, err)
	assert.Same(t, produced, res)
	assert.False(t, res.isClosed())

	require.NoError(t, c.Shutdown(ctx))
	assert.True(t, produced.isClosed())
}

func TestContainer_SyntheticBeanTimeout(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Register(
		Synthetic[*resource](func(ctx context.Context, _ *CreationalContext) (*resource, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Timeout(20*time.Millisecond),
	))
	require.NoError(t, c.Freeze(context.Background()))

	_, err := Lookup[*resource](context.Background(), c)
	var creation *CreationError
	require.ErrorAs(t, err, &creation)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestContainer_EagerBeansCreatedOnFreeze(t *testing.T) {
	c := newTestContainer(t)
	var created atomic.Int32
	require.NoError(t, c.Register(
		Managed[*engine]().
			Scoped(Singleton).
			Eager().
			PostConstruct(func(*engine) error {
				created.Add(1)
				return nil
			}),
	))
	assert.Equal(t, int32(0), created.Load())

	require.NoError(t, c.Freeze(context.Background()))
	assert.Equal(t, int32(1), created.Load())

	_, err := Lookup[*engine](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int32(1), created.Load())
}

func TestContainer_CreationFailureReleasesDependents(t *testing.T) {
	c := newTestContainer(t)
	rec := &recorder{}
	boom := errors.New("boom")

	require.NoError(t, c.Register(
		Managed[*engine]().PreDestroy(func(*engine) error { rec.add("engine"); return nil }),
		Managed[*wheel]().PreDestroy(func(*wheel) error { rec.add("wheel"); return nil }),
		Managed[*car]().PostConstruct(func(*car) error { return boom }),
	))
	require.NoError(t, c.Freeze(context.Background()))

	_, err := Lookup[*car](context.Background(), c)
	var creation *CreationError
	require.ErrorAs(t, err, &creation)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"wheel", "engine"}, rec.list())
}

type pedal struct {
	Crank *crank `doffy:"inject"`
}

type crank struct {
	Pedal *pedal `doffy:"inject"`
}

func TestContainer_FailedCycleLeavesNoInstanceBehind(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()
	bent := errors.New("pedal is bent")
	var failures atomic.Int32
	failures.Store(1)
	var destroyed atomic.Int32

	require.NoError(t, c.Register(
		Managed[*pedal]().Scoped(Singleton).PostConstruct(func(*pedal) error {
			if failures.Add(-1) >= 0 {
				return bent
			}
			return nil
		}),
		Managed[*crank]().Scoped(Singleton).PreDestroy(func(*crank) error {
			destroyed.Add(1)
			return nil
		}),
	))
	require.NoError(t, c.Freeze(ctx))

	_, err := Lookup[*pedal](ctx, c)
	assert.ErrorIs(t, err, bent)
	assert.Equal(t, int32(1), destroyed.Load(), "the crank built on the broken pedal is destroyed")

	cr, err := Lookup[*crank](ctx, c)
	require.NoError(t, err)
	require.NotNil(t, cr.Pedal)

	p, err := Lookup[*pedal](ctx, c)
	require.NoError(t, err)
	assert.Same(t, p, cr.Pedal)
	assert.Same(t, cr, p.Crank)
}

func TestContainer_Shutdown(t *testing.T) {
	c := newTestContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Register(
		Managed[*counter]().
			Typed(TypeFor[Counter]()).
			Scoped(ApplicationScoped).
			Proxy(func(inv Invoker) any { return counterProxy{inv: inv} }).
			PreDestroy(func(*counter) error { rec.add("application"); return nil }),
		Managed[*englishGreeter]().
			Typed(TypeFor[Greeter]()).
			Scoped(RequestScoped).
			Proxy(newGreeterProxy).
			PreDestroy(func(*englishGreeter) error { rec.add("request"); return nil }),
	))
	require.NoError(t, c.Freeze(context.Background()))

	ctx, err := c.BeginScope(context.Background(), RequestScoped, "open")
	require.NoError(t, err)
	cnt, err := Lookup[Counter](ctx, c)
	require.NoError(t, err)
	_, err = cnt.Next(ctx)
	require.NoError(t, err)
	greeter, err := Lookup[Greeter](ctx, c)
	require.NoError(t, err)
	_, err = greeter.Greet(ctx, "Ada")
	require.NoError(t, err)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"request", "application"}, rec.list())
	assert.Equal(t, 0, c.Registry().Len())
	assert.NoError(t, c.Shutdown(context.Background()), "shutdown is idempotent")

	err = c.Register(Managed[*engine]())
	assert.ErrorIs(t, err, ErrIllegalState)
}
