package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Tally counts calls within whatever scope its bean lives in
type Tally interface {
	Next(ctx context.Context) (int, error)
}

type tallyProxy struct{ inv core.Invoker }

func (p tallyProxy) Next(ctx context.Context) (int, error) {
	return core.Return1[int](p.inv.Invoke("Next", ctx))
}

func newTallyProxy(inv core.Invoker) any { return tallyProxy{inv: inv} }

type tally struct {
	mu sync.Mutex
	n  int
}

func (t *tally) Next(context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
	return t.n, nil
}

type sessionTally struct{ tally }
type conversationTally struct{ tally }
type requestTally struct{ tally }

var (
	sessionQualifier      = core.Qualifier{Name: "SessionTally"}
	conversationQualifier = core.Qualifier{Name: "ConversationTally"}
)

func testAppConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Log.Environment = "test"
	cfg.Server.Mode = gin.TestMode
	return cfg
}

func newTestApp(t *testing.T, modules ...*core.Module) *DoffApp {
	t.Helper()
	app, err := CreateDoffApp(&AppOptions{
		Name:    "test-app",
		Config:  testAppConfig(),
		Modules: modules,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = app.Shutdown(context.Background())
	})
	return app
}

func tallyModule(destroyed *sync.WaitGroup) *core.Module {
	return core.NewModule("tallies", "1.0.0").WithBeans(
		core.Managed[*sessionTally]().
			Typed(core.TypeFor[Tally]()).
			Qualified(sessionQualifier).
			Scoped(core.SessionScoped).
			Proxy(newTallyProxy),
		core.Managed[*conversationTally]().
			Typed(core.TypeFor[Tally]()).
			Qualified(conversationQualifier).
			Scoped(core.ConversationScoped).
			Proxy(newTallyProxy),
		core.Managed[*requestTally]().
			Typed(core.TypeFor[Tally]()).
			Scoped(core.RequestScoped).
			Proxy(newTallyProxy).
			PreDestroy(func(*requestTally) error {
				if destroyed != nil {
					destroyed.Done()
				}
				return nil
			}),
	)
}

func countRoute(qualifier core.Qualifier) func(c *gin.Context) {
	return func(c *gin.Context) {
		tally, err := Inject[Tally](c, qualifier)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		n, err := tally.Next(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, strconv.Itoa(n))
	}
}

func serve(app *DoffApp, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.GetEngine().ServeHTTP(w, req)
	return w
}

func TestDoffApp_SessionScope(t *testing.T) {
	app := newTestApp(t, tallyModule(nil))
	app.GetRouter().GET("/visits", countRoute(sessionQualifier))
	require.NoError(t, app.Start(context.Background()))

	first := serve(app, httptest.NewRequest(http.MethodGet, "/visits", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Body.String())
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "DOFFYSESSIONID", cookies[0].Name)

	again := httptest.NewRequest(http.MethodGet, "/visits", nil)
	again.AddCookie(cookies[0])
	second := serve(app, again)
	assert.Equal(t, "2", second.Body.String(), "the cookie selects the same session")
	assert.Empty(t, second.Result().Cookies())

	other := serve(app, httptest.NewRequest(http.MethodGet, "/visits", nil))
	assert.Equal(t, "1", other.Body.String(), "a new session starts from scratch")
	assert.Equal(t, 2, app.GetSessionManager().Len())
}

func TestDoffApp_RequestScope(t *testing.T) {
	var destroyed sync.WaitGroup
	destroyed.Add(2)
	app := newTestApp(t, tallyModule(&destroyed))
	app.GetRouter().GET("/twice", func(c *gin.Context, tally Tally) {
		ctx := c.Request.Context()
		_, _ = tally.Next(ctx)
		n, _ := tally.Next(ctx)
		c.String(http.StatusOK, strconv.Itoa(n))
	})
	require.NoError(t, app.Start(context.Background()))

	for i := 0; i < 2; i++ {
		w := serve(app, httptest.NewRequest(http.MethodGet, "/twice", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Body.String(), "each request gets its own instance")
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	}
	destroyed.Wait()
}

func TestDoffApp_Conversation(t *testing.T) {
	app := newTestApp(t, tallyModule(nil))
	router := app.GetRouter()
	router.POST("/wizard", func(c *gin.Context, container *core.Container) {
		conv, ok := container.Conversations().Current(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		if err := conv.Begin(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, conv.ID())
	})
	router.GET("/wizard/step", countRoute(conversationQualifier))
	require.NoError(t, app.Start(context.Background()))

	begin := serve(app, httptest.NewRequest(http.MethodPost, "/wizard", nil))
	require.Equal(t, http.StatusOK, begin.Code)
	cid := begin.Body.String()
	cookie := begin.Result().Cookies()[0]

	for want := 1; want <= 2; want++ {
		req := httptest.NewRequest(http.MethodGet, "/wizard/step?cid="+cid, nil)
		req.AddCookie(cookie)
		w := serve(app, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.Itoa(want), w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/wizard/step", nil)
	req.Header.Set(ConversationHeader, cid)
	req.AddCookie(cookie)
	assert.Equal(t, "3", serve(app, req).Body.String(), "the header selects the conversation too")

	transient := httptest.NewRequest(http.MethodGet, "/wizard/step", nil)
	transient.AddCookie(cookie)
	assert.Equal(t, "1", serve(app, transient).Body.String())

	missing := httptest.NewRequest(http.MethodGet, "/wizard/step?cid=nope", nil)
	missing.AddCookie(cookie)
	assert.Equal(t, http.StatusNotFound, serve(app, missing).Code)

	foreign := serve(app, httptest.NewRequest(http.MethodGet, "/wizard/step?cid="+cid, nil))
	assert.Equal(t, http.StatusNotFound, foreign.Code, "conversations belong to their session")
}

func TestConversationStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, conversationStatus(&core.BusyConversationError{ID: "c1"}))
	assert.Equal(t, http.StatusNotFound, conversationStatus(&core.NonexistentConversationError{ID: "c1"}))
	assert.Equal(t, http.StatusInternalServerError, conversationStatus(errors.New("boom")))
}

func TestDoffApp_StartFailsOnDeploymentProblems(t *testing.T) {
	type needsTally struct {
		Tally Tally `doffy:"inject"`
	}
	app := newTestApp(t, core.NewModule("broken", "1.0.0").WithBeans(core.Managed[*needsTally]()))

	err := app.Start(context.Background())
	var deployment *core.DeploymentError
	require.ErrorAs(t, err, &deployment)
	assert.Equal(t, err, app.Start(context.Background()), "start runs once")
}

func TestCreateDoffApp_ConfigErrors(t *testing.T) {
	cfg := testAppConfig()
	cfg.Executor.Type = "BOGUS"
	_, err := CreateDoffApp(&AppOptions{Config: cfg})
	assert.ErrorIs(t, err, core.ErrIllegalArgument)

	_, err = CreateDoffApp(&AppOptions{ConfigPath: "does-not-exist.yaml"})
	assert.Error(t, err)
}

// MockPlugin implements Plugin with testify expectations
type MockPlugin struct {
	mock.Mock
	BasePlugin
	module *core.Module
	hooks  []LifecycleHook
}

func (m *MockPlugin) Name() string    { return "MockPlugin" }
func (m *MockPlugin) Version() string { return "1.0.0" }

func (m *MockPlugin) Module() *core.Module { return m.module }

func (m *MockPlugin) Hooks() []LifecycleHook { return m.hooks }

func (m *MockPlugin) Init(app *DoffApp) error {
	return m.Called(app).Error(0)
}

func (m *MockPlugin) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestDoffApp_PluginLifecycle(t *testing.T) {
	var order []string
	plugin := &MockPlugin{
		module: tallyModule(nil),
		hooks: []LifecycleHook{&LifecycleHookFunc{
			OnReadyFunc: func(*DoffApp) error {
				order = append(order, "OnReady")
				return nil
			},
			OnCloseFunc: func(context.Context) error {
				order = append(order, "OnClose")
				return nil
			},
		}},
	}
	plugin.On("Init", mock.Anything).Run(func(mock.Arguments) {
		order = append(order, "Init")
	}).Return(nil).Once()
	plugin.On("Shutdown", mock.Anything).Run(func(mock.Arguments) {
		order = append(order, "Shutdown")
	}).Return(nil).Once()

	app, err := CreateDoffApp(&AppOptions{Config: testAppConfig(), Plugins: []Plugin{plugin}})
	require.NoError(t, err)

	assert.ErrorIs(t, app.RegisterPlugin(plugin), ErrPluginAlreadyRegistered)
	assert.ErrorIs(t, app.RegisterPlugin(nil), ErrPluginNil)
	got, ok := app.GetPluginManager().GetPlugin("MockPlugin")
	require.True(t, ok)
	assert.Same(t, plugin, got)

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Start(context.Background()))
	_, err = app.GetContainer().ResolveUnique(core.TypeFor[Tally](), sessionQualifier)
	require.NoError(t, err, "the plugin module is deployed")

	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, []string{"OnReady", "Init", "OnClose", "Shutdown"}, order)
	plugin.AssertExpectations(t)
}

func TestDoffApp_PluginInitFailure(t *testing.T) {
	plugin := &MockPlugin{}
	plugin.On("Init", mock.Anything).Return(errors.New("no database"))
	plugin.On("Shutdown", mock.Anything).Return(nil)

	app, err := CreateDoffApp(&AppOptions{Config: testAppConfig(), Plugins: []Plugin{plugin}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	err = app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin MockPlugin: no database")
}

func TestDoffApp_RequestHooks(t *testing.T) {
	var events []string
	app := newTestApp(t)
	app.GetPluginManager().GetLifecycleManager().AddHook(&LifecycleHookFunc{
		OnRequestFunc: func(c *gin.Context) {
			events = append(events, "OnRequest")
			if c.GetHeader("X-Block") != "" {
				c.AbortWithStatus(http.StatusForbidden)
			}
		},
		PreHandlerFunc: func(*gin.Context) { events = append(events, "PreHandler") },
		OnResponseFunc: func(_ *gin.Context, response interface{}) {
			events = append(events, "OnResponse:"+strconv.Itoa(response.(int)))
		},
	})
	app.GetRouter().GET("/ping", func(c *gin.Context) {
		events = append(events, "handler")
		c.String(http.StatusOK, "pong")
	})
	require.NoError(t, app.Start(context.Background()))

	assert.Equal(t, http.StatusOK, serve(app, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	assert.Equal(t, []string{"OnRequest", "PreHandler", "handler", "OnResponse:200"}, events)

	events = nil
	blocked := httptest.NewRequest(http.MethodGet, "/ping", nil)
	blocked.Header.Set("X-Block", "1")
	assert.Equal(t, http.StatusForbidden, serve(app, blocked).Code)
	assert.Equal(t, []string{"OnRequest"}, events)
}
