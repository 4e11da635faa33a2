package logger

import (
	"time"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const startTimeKey = "doffy.start_time"

// LoggerPlugin logs every request through the container logger
type LoggerPlugin struct {
	app.BasePlugin
}

// NewLoggerPlugin creates a new logger plugin
func NewLoggerPlugin() *LoggerPlugin {
	return &LoggerPlugin{}
}

// Name returns the plugin name
func (p *LoggerPlugin) Name() string {
	return "logger"
}

// Version returns the plugin version
func (p *LoggerPlugin) Version() string {
	return "1.0.0"
}

// Module declares the request logger bean
func (p *LoggerPlugin) Module() *core.Module {
	return core.NewModule("plugin.logger", p.Version()).WithBeans(
		core.Managed[*RequestLogger]().Scoped(core.Singleton),
	)
}

// Hooks returns the lifecycle hooks for logging
func (p *LoggerPlugin) Hooks() []app.LifecycleHook {
	return []app.LifecycleHook{
		NewLoggerHook(),
	}
}

// RequestLogger provides request logging functionality
type RequestLogger struct {
	Logger core.Logger `doffy:"inject"`
}

// LogRequest logs a finished request
func (l *RequestLogger) LogRequest(c *gin.Context, start time.Time) {
	fields := []zap.Field{
		zap.String("event", "Request"),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status_code", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
		zap.String("client_ip", c.ClientIP()),
		zap.String("user_agent", c.GetHeader("User-Agent")),
	}
	if id, ok := core.ScopeID(c.Request.Context(), core.RequestScoped); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	l.Logger.Zap().Info(c.Request.Method+" "+c.Request.URL.Path, fields...)
}

// LogError logs a failure reported while handling a request
func (l *RequestLogger) LogError(c *gin.Context, err error) {
	l.Logger.Zap().Error("request failed",
		zap.String("event", "Error"),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
}

// LoggerHook implements the LifecycleHook interface for request logging
type LoggerHook struct{}

// NewLoggerHook creates a new logger hook
func NewLoggerHook() *LoggerHook {
	return &LoggerHook{}
}

// OnRequest records the request start time
func (h *LoggerHook) OnRequest(c *gin.Context) {
	c.Set(startTimeKey, time.Now())
}

// PreHandler implements the LifecycleHook interface
func (h *LoggerHook) PreHandler(c *gin.Context) {}

// OnResponse logs the request after it's processed
func (h *LoggerHook) OnResponse(c *gin.Context, response interface{}) {
	start, ok := c.Value(startTimeKey).(time.Time)
	if !ok {
		return
	}
	if l, err := app.Inject[*RequestLogger](c); err == nil {
		l.LogRequest(c, start)
	}
}

// OnError logs the error
func (h *LoggerHook) OnError(c *gin.Context, err error) {
	if l, injectErr := app.Inject[*RequestLogger](c); injectErr == nil {
		l.LogError(c, err)
	}
}
