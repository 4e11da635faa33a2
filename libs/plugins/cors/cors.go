package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
)

// CorsPlugin answers preflight requests and sets the CORS headers
type CorsPlugin struct {
	app.BasePlugin
	options *CorsOptions
}

// NewCorsPlugin creates a new CORS plugin; nil options use the defaults
func NewCorsPlugin(options *CorsOptions) *CorsPlugin {
	return &CorsPlugin{
		options: options,
	}
}

// Name returns the plugin name
func (p *CorsPlugin) Name() string {
	return "cors"
}

// Version returns the plugin version
func (p *CorsPlugin) Version() string {
	return "1.0.0"
}

// Module declares the CORS service bean
func (p *CorsPlugin) Module() *core.Module {
	return core.NewModule("plugin.cors", p.Version()).WithBeans(
		core.Value(NewCorsService(p.options)),
	)
}

// Hooks returns the lifecycle hooks for CORS
func (p *CorsPlugin) Hooks() []app.LifecycleHook {
	return []app.LifecycleHook{
		NewCorsHook(),
	}
}

// CorsOptions defines CORS configuration
type CorsOptions struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// CorsService provides CORS functionality
type CorsService struct {
	options *CorsOptions
}

// NewCorsService merges options over the defaults
func NewCorsService(options *CorsOptions) *CorsService {
	merged := &CorsOptions{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type", "Authorization", app.ConversationHeader},
		ExposeHeaders: []string{
			app.RequestIDHeader,
		},
		MaxAge: 86400,
	}

	if options != nil {
		if len(options.AllowOrigins) > 0 {
			merged.AllowOrigins = options.AllowOrigins
		}
		if len(options.AllowMethods) > 0 {
			merged.AllowMethods = options.AllowMethods
		}
		if len(options.AllowHeaders) > 0 {
			merged.AllowHeaders = options.AllowHeaders
		}
		if len(options.ExposeHeaders) > 0 {
			merged.ExposeHeaders = options.ExposeHeaders
		}
		merged.AllowCredentials = options.AllowCredentials
		if options.MaxAge > 0 {
			merged.MaxAge = options.MaxAge
		}
	}

	return &CorsService{
		options: merged,
	}
}

// Options returns the effective options
func (s *CorsService) Options() CorsOptions {
	return *s.options
}

// Handle sets the CORS headers and ends preflight requests
func (s *CorsService) Handle(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", strings.Join(s.options.AllowOrigins, ","))
	c.Header("Access-Control-Allow-Methods", strings.Join(s.options.AllowMethods, ","))
	c.Header("Access-Control-Allow-Headers", strings.Join(s.options.AllowHeaders, ","))
	if len(s.options.ExposeHeaders) > 0 {
		c.Header("Access-Control-Expose-Headers", strings.Join(s.options.ExposeHeaders, ","))
	}
	if s.options.AllowCredentials {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	c.Header("Access-Control-Max-Age", strconv.Itoa(s.options.MaxAge))

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// CorsHook implements the LifecycleHook interface for CORS
type CorsHook struct{}

// NewCorsHook creates a new CORS hook
func NewCorsHook() *CorsHook {
	return &CorsHook{}
}

// OnRequest applies the CORS service of the container
func (h *CorsHook) OnRequest(c *gin.Context) {
	service, err := app.Inject[*CorsService](c)
	if err != nil {
		return
	}
	service.Handle(c)
}

// PreHandler implements the LifecycleHook interface
func (h *CorsHook) PreHandler(c *gin.Context) {}

// OnResponse implements the LifecycleHook interface
func (h *CorsHook) OnResponse(c *gin.Context, response interface{}) {}

// OnError implements the LifecycleHook interface
func (h *CorsHook) OnError(c *gin.Context, err error) {}
