package app

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
)

// RouteHandler defines a handler function that has access to the container
type RouteHandler func(c *gin.Context, container *core.Container)

var (
	ginContextType = reflect.TypeOf((*gin.Context)(nil))
	containerType  = reflect.TypeOf((*core.Container)(nil))
)

// Router wraps gin.Engine and injects beans into route handlers.
//
// A handler is a RouteHandler, a gin.HandlerFunc, or any function whose first
// parameter is *gin.Context. Every further parameter is resolved from the
// container as the unique bean of that type, in the scopes active for the
// request.
type Router struct {
	engine    *gin.Engine
	container *core.Container
	lifecycle *LifecycleManager
}

// NewRouter creates a new router helper
func NewRouter(engine *gin.Engine, container *core.Container, lifecycle *LifecycleManager) *Router {
	return &Router{
		engine:    engine,
		container: container,
		lifecycle: lifecycle,
	}
}

// Group creates a new route group
func (r *Router) Group(relativePath string, handlers ...gin.HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group:  r.engine.Group(relativePath, handlers...),
		router: r,
	}
}

// GET registers a GET route
func (r *Router) GET(path string, handler interface{}) {
	r.engine.GET(path, r.wrapHandler(handler))
}

// POST registers a POST route
func (r *Router) POST(path string, handler interface{}) {
	r.engine.POST(path, r.wrapHandler(handler))
}

// PUT registers a PUT route
func (r *Router) PUT(path string, handler interface{}) {
	r.engine.PUT(path, r.wrapHandler(handler))
}

// PATCH registers a PATCH route
func (r *Router) PATCH(path string, handler interface{}) {
	r.engine.PATCH(path, r.wrapHandler(handler))
}

// DELETE registers a DELETE route
func (r *Router) DELETE(path string, handler interface{}) {
	r.engine.DELETE(path, r.wrapHandler(handler))
}

// Any registers a route that matches all HTTP methods
func (r *Router) Any(path string, handler interface{}) {
	r.engine.Any(path, r.wrapHandler(handler))
}

// wrapHandler adapts handler to gin. The signature is checked once here; a
// bad handler answers every request with 500.
func (r *Router) wrapHandler(handler interface{}) gin.HandlerFunc {
	invoke, err := r.invoker(handler)
	return func(c *gin.Context) {
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if r.lifecycle != nil {
			r.lifecycle.ExecutePreHandler(c)
			if c.IsAborted() {
				return
			}
		}

		if err := invoke(c); err != nil {
			_ = c.Error(err)
			if r.lifecycle != nil {
				r.lifecycle.ExecuteOnError(c, err)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to resolve handler arguments: %v", err),
			})
		}
	}
}

func (r *Router) invoker(handler interface{}) (func(c *gin.Context) error, error) {
	switch h := handler.(type) {
	case RouteHandler:
		return func(c *gin.Context) error { h(c, r.container); return nil }, nil
	case func(*gin.Context, *core.Container):
		return func(c *gin.Context) error { h(c, r.container); return nil }, nil
	case gin.HandlerFunc:
		return func(c *gin.Context) error { h(c); return nil }, nil
	case func(*gin.Context):
		return func(c *gin.Context) error { h(c); return nil }, nil
	}

	handlerValue := reflect.ValueOf(handler)
	handlerType := handlerValue.Type()
	if handlerType.Kind() != reflect.Func || handlerType.NumIn() == 0 || handlerType.In(0) != ginContextType {
		return nil, fmt.Errorf("invalid handler signature %s", handlerType)
	}

	return func(c *gin.Context) error {
		ctx := c.Request.Context()
		args := make([]reflect.Value, handlerType.NumIn())
		args[0] = reflect.ValueOf(c)
		for i := 1; i < handlerType.NumIn(); i++ {
			arg, err := r.argument(ctx, handlerType.In(i))
			if err != nil {
				return err
			}
			args[i] = arg
		}
		handlerValue.Call(args)
		return nil
	}, nil
}

func (r *Router) argument(ctx context.Context, t reflect.Type) (reflect.Value, error) {
	if t == containerType {
		return reflect.ValueOf(r.container), nil
	}
	target := reflect.New(t)
	if err := r.container.ResolveAs(ctx, target.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// RouterGroup provides helper methods for route groups
type RouterGroup struct {
	group  *gin.RouterGroup
	router *Router
}

// Group creates a nested route group
func (rg *RouterGroup) Group(relativePath string, handlers ...gin.HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group:  rg.group.Group(relativePath, handlers...),
		router: rg.router,
	}
}

// GET registers a GET route in the group
func (rg *RouterGroup) GET(path string, handler interface{}) {
	rg.group.GET(path, rg.router.wrapHandler(handler))
}

// POST registers a POST route in the group
func (rg *RouterGroup) POST(path string, handler interface{}) {
	rg.group.POST(path, rg.router.wrapHandler(handler))
}

// PUT registers a PUT route in the group
func (rg *RouterGroup) PUT(path string, handler interface{}) {
	rg.group.PUT(path, rg.router.wrapHandler(handler))
}

// PATCH registers a PATCH route in the group
func (rg *RouterGroup) PATCH(path string, handler interface{}) {
	rg.group.PATCH(path, rg.router.wrapHandler(handler))
}

// DELETE registers a DELETE route in the group
func (rg *RouterGroup) DELETE(path string, handler interface{}) {
	rg.group.DELETE(path, rg.router.wrapHandler(handler))
}

// Use adds middleware to the group
func (rg *RouterGroup) Use(middleware ...gin.HandlerFunc) {
	rg.group.Use(middleware...)
}

// Inject resolves the unique bean of type T in the scopes active for the
// request handled by c
func Inject[T any](c *gin.Context, qualifiers ...core.Qualifier) (T, error) {
	var zero T
	value, exists := c.Get("container")
	if !exists {
		return zero, fmt.Errorf("%w: container not found in request context", core.ErrIllegalState)
	}
	return core.Lookup[T](c.Request.Context(), value.(*core.Container), qualifiers...)
}
