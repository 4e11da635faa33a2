package cors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCorsApp(t *testing.T, options *CorsOptions) *app.DoffApp {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Log.Environment = "test"
	cfg.Server.Mode = gin.TestMode

	a, err := app.CreateDoffApp(&app.AppOptions{
		Config:  cfg,
		Plugins: []app.Plugin{NewCorsPlugin(options)},
	})
	require.NoError(t, err)
	a.GetRouter().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestCorsPlugin_Preflight(t *testing.T) {
	a := newCorsApp(t, nil)

	w := httptest.NewRecorder()
	a.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), app.ConversationHeader)
	assert.Equal(t, app.RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCorsPlugin_SimpleRequest(t *testing.T) {
	a := newCorsApp(t, &CorsOptions{
		AllowOrigins:     []string{"https://shop.example"},
		AllowCredentials: true,
	})

	w := httptest.NewRecorder()
	a.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestNewCorsService_MergesDefaults(t *testing.T) {
	opts := NewCorsService(&CorsOptions{AllowMethods: []string{"GET"}, MaxAge: 60}).Options()

	assert.Equal(t, []string{"*"}, opts.AllowOrigins)
	assert.Equal(t, []string{"GET"}, opts.AllowMethods)
	assert.Equal(t, 60, opts.MaxAge)
	assert.False(t, opts.AllowCredentials)
}
