package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuthenticator map[string]string

func (a tokenAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	principal, ok := a[token]
	if !ok {
		return "", ErrUnauthenticated
	}
	return principal, nil
}

type failures struct {
	mu     sync.Mutex
	events []AuthenticationFailed
}

func (f *failures) list() []AuthenticationFailed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AuthenticationFailed(nil), f.events...)
}

func newAuthApp(t *testing.T) (*app.DoffApp, *failures) {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Log.Environment = "test"
	cfg.Server.Mode = gin.TestMode

	a, err := app.CreateDoffApp(&app.AppOptions{
		Config:  cfg,
		Plugins: []app.Plugin{NewRequestAuthentication("GET:/public")},
		Modules: []*core.Module{
			core.NewModule("auth", "1.0.0").WithBeans(
				core.Value[Authenticator](tokenAuthenticator{"secret": "ada"}),
			),
		},
	})
	require.NoError(t, err)

	seen := &failures{}
	require.NoError(t, a.GetContainer().AddObserver(core.NewObserver(core.TypeFor[AuthenticationFailed](), func(_ context.Context, event any) error {
		seen.mu.Lock()
		seen.events = append(seen.events, event.(AuthenticationFailed))
		seen.mu.Unlock()
		return nil
	})))

	router := a.GetRouter()
	router.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "open") })
	router.GET("/me", func(c *gin.Context, identity Identity) {
		principal, err := identity.Principal(c.Request.Context())
		if err != nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, principal)
	})
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, seen
}

func get(a *app.DoffApp, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.GetEngine().ServeHTTP(w, req)
	return w
}

func TestRequestAuthentication(t *testing.T) {
	a, seen := newAuthApp(t)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
		body  string
	}{
		{name: "public route", path: "/public", code: http.StatusOK, body: "open"},
		{name: "valid token", path: "/me", token: "secret", code: http.StatusOK, body: "ada"},
		{name: "missing token", path: "/me", code: http.StatusUnauthorized},
		{name: "wrong token", path: "/me", token: "guess", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(a, tt.path, tt.token)
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}

	failed := seen.list()
	require.Len(t, failed, 2)
	assert.Equal(t, AuthenticationFailed{Method: "GET", Path: "/me", Reason: "missing token"}, failed[0])
	assert.Equal(t, ErrUnauthenticated.Error(), failed[1].Reason)
}

func TestRequestAuthentication_IdentityIsRequestScoped(t *testing.T) {
	a, _ := newAuthApp(t)

	require.Equal(t, "ada", get(a, "/me", "secret").Body.String())
	assert.Equal(t, http.StatusOK, get(a, "/me", "secret").Code, "every request logs in again")
}

func TestRequestAuthentication_IsPublic(t *testing.T) {
	p := NewRequestAuthentication("GET:/users/:id")
	assert.True(t, p.IsPublic("GET", "/users/:id"))
	assert.False(t, p.IsPublic("POST", "/users/:id"))
}
