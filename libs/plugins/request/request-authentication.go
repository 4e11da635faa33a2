package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
)

// ErrUnauthenticated is returned by an Authenticator rejecting a token
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator validates a bearer token and returns its principal. The
// application provides it as a bean.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Identity is the principal of the current request
type Identity interface {
	Principal(ctx context.Context) (string, error)
	Login(ctx context.Context, principal string) error
}

// AuthenticationFailed is fired when a request is rejected
type AuthenticationFailed struct {
	Method string
	Path   string
	Reason string
}

type requestIdentity struct {
	principal string
}

func (i *requestIdentity) Principal(ctx context.Context) (string, error) {
	if i.principal == "" {
		return "", ErrUnauthenticated
	}
	return i.principal, nil
}

func (i *requestIdentity) Login(ctx context.Context, principal string) error {
	i.principal = principal
	return nil
}

type identityProxy struct{ inv core.Invoker }

func (p identityProxy) Principal(ctx context.Context) (string, error) {
	return core.Return1[string](p.inv.Invoke("Principal", ctx))
}

func (p identityProxy) Login(ctx context.Context, principal string) error {
	return core.Return0(p.inv.Invoke("Login", ctx, principal))
}

// RequestAuthentication rejects requests without a valid bearer token,
// except on public routes
type RequestAuthentication struct {
	app.BasePlugin
	publicRoutes map[string]bool
}

// NewRequestAuthentication creates the plugin. Public routes are given as
// "METHOD:/path/pattern".
func NewRequestAuthentication(publicRoutes ...string) *RequestAuthentication {
	p := &RequestAuthentication{
		publicRoutes: make(map[string]bool),
	}
	for _, route := range publicRoutes {
		p.publicRoutes[route] = true
	}
	return p
}

func (p *RequestAuthentication) Name() string {
	return "request-authentication"
}

func (p *RequestAuthentication) Version() string {
	return "1.0.0"
}

// Module declares the request scoped Identity bean
func (p *RequestAuthentication) Module() *core.Module {
	return core.NewModule("plugin.request-authentication", p.Version()).WithBeans(
		core.Managed[*requestIdentity]().
			Typed(core.TypeFor[Identity]()).
			Scoped(core.RequestScoped).
			Proxy(func(inv core.Invoker) any { return identityProxy{inv: inv} }),
	)
}

func (p *RequestAuthentication) Hooks() []app.LifecycleHook {
	return []app.LifecycleHook{
		NewRequestAuthenticationHook(p),
	}
}

// IsPublic reports whether method and route pattern skip authentication
func (p *RequestAuthentication) IsPublic(method, path string) bool {
	return p.publicRoutes[fmt.Sprintf("%s:%s", method, path)]
}

type RequestAuthenticationHook struct {
	plugin *RequestAuthentication
}

func NewRequestAuthenticationHook(plugin *RequestAuthentication) *RequestAuthenticationHook {
	return &RequestAuthenticationHook{
		plugin: plugin,
	}
}

// OnRequest authenticates the bearer token and records the principal in
// the request scoped Identity
func (h *RequestAuthenticationHook) OnRequest(c *gin.Context) {
	// c.FullPath() returns the matched path pattern (e.g. /users/:id)
	if h.plugin.IsPublic(c.Request.Method, c.FullPath()) {
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		h.reject(c, "missing token")
		return
	}

	authenticator, err := app.Inject[Authenticator](c)
	if err != nil {
		h.reject(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	principal, err := authenticator.Authenticate(ctx, token)
	if err != nil {
		h.reject(c, err.Error())
		return
	}

	identity, err := app.Inject[Identity](c)
	if err == nil {
		err = identity.Login(ctx, principal)
	}
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *RequestAuthenticationHook) reject(c *gin.Context, reason string) {
	if container, ok := c.Value("container").(*core.Container); ok {
		event := AuthenticationFailed{Method: c.Request.Method, Path: c.Request.URL.Path, Reason: reason}
		if err := container.Fire(c.Request.Context(), event); err != nil {
			_ = c.Error(err)
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

func (h *RequestAuthenticationHook) PreHandler(c *gin.Context) {}

func (h *RequestAuthenticationHook) OnResponse(c *gin.Context, response interface{}) {}

func (h *RequestAuthenticationHook) OnError(c *gin.Context, err error) {}
