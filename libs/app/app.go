package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AppOptions configures CreateDoffApp. Config wins over ConfigPath; with
// neither the defaults apply.
type AppOptions struct {
	Name             string
	ConfigPath       string
	Config           *core.Config
	Logger           core.Logger
	Modules          []*core.Module
	Plugins          []Plugin
	ContainerOptions []core.Option
}

// DoffServer is the HTTP host of a container
type DoffServer interface {
	Start(ctx context.Context) error
	Listen() error
	Shutdown(ctx context.Context) error
	RegisterPlugin(plugin Plugin) error
	GetContainer() *core.Container
	GetEngine() *gin.Engine
}

var _ DoffServer = (*DoffApp)(nil)

// DoffApp hosts a container behind a gin engine. Every request runs with
// its request, session and conversation scopes active.
type DoffApp struct {
	server        *gin.Engine
	name          string
	config        *core.Config
	logger        core.Logger
	container     *core.Container
	pluginManager *PluginManager
	sessions      *SessionManager
	httpServer    *http.Server

	startOnce sync.Once
	startErr  error
	stopSweep context.CancelFunc
}

// CreateDoffApp builds the container, deploys the given modules and plugins
// and prepares the engine. The container is frozen by Start.
func CreateDoffApp(options *AppOptions) (*DoffApp, error) {
	if options == nil {
		options = &AppOptions{}
	}

	cfg := options.Config
	if cfg == nil && options.ConfigPath != "" {
		loaded, err := core.LoadConfig(options.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = core.InitLogger(cfg.Log)
	}

	app := &DoffApp{
		name:   options.Name,
		config: cfg,
		logger: logger,
	}
	containerOpts := append([]core.Option{core.WithConfig(cfg), core.WithLogger(logger)}, options.ContainerOptions...)
	app.container = core.New(containerOpts...)
	app.pluginManager = NewPluginManager(app.container)
	app.sessions = NewSessionManager(cfg.Session.Timeout, func(id string) {
		if err := EndSession(app.container, id); err != nil {
			logger.Infor(&core.LoggerItem{
				Event:    "SessionEnd",
				Messages: fmt.Sprintf("failed to end session '%s'", id),
				Error:    err,
			})
		}
	})

	if err := app.Deploy(options.Modules...); err != nil {
		return nil, err
	}
	for _, plugin := range options.Plugins {
		if err := app.RegisterPlugin(plugin); err != nil {
			return nil, err
		}
	}

	app.initServer()
	return app, nil
}

func (d *DoffApp) initServer() {
	if d.config.Server.Mode != "" {
		gin.SetMode(d.config.Server.Mode)
	}
	d.server = gin.New()
	d.server.Use(gin.Recovery())

	// Add app and container to context
	d.server.Use(func(c *gin.Context) {
		c.Set("app", d)
		c.Set("container", d.container)
		c.Next()
	})

	lifecycleManager := d.pluginManager.GetLifecycleManager()
	d.server.Use(ScopeMiddleware(d.container, d.sessions, lifecycleManager))

	d.server.Use(func(c *gin.Context) {
		lifecycleManager.ExecuteOnRequest(c)
		if c.IsAborted() {
			return
		}
		c.Next()
		lifecycleManager.ExecuteOnResponse(c, c.Writer.Status())
	})
}

// Deploy registers modules with the container
func (d *DoffApp) Deploy(modules ...*core.Module) error {
	if len(modules) == 0 {
		return nil
	}
	return d.container.Deploy(modules...)
}

// Start freezes the container, runs the OnReady hooks and initializes the
// plugins. It runs once; later calls return the first result.
func (d *DoffApp) Start(ctx context.Context) error {
	d.startOnce.Do(func() {
		d.startErr = d.start(ctx)
	})
	return d.startErr
}

func (d *DoffApp) start(ctx context.Context) error {
	if err := d.container.Freeze(ctx); err != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "DeploymentError",
			Messages: "Failed to validate the deployment",
			Error:    err,
		})
		return err
	}

	if err := d.pluginManager.GetLifecycleManager().ExecuteOnReady(d); err != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "OnReadyError",
			Messages: "Failed to execute OnReady hooks",
			Error:    err,
		})
		return err
	}

	if err := d.pluginManager.InitializePlugins(d); err != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "PluginInitializationError",
			Messages: "Failed to initialize plugins",
			Error:    err,
		})
		return err
	}

	if err := d.pluginManager.RegisterRoutes(d.server); err != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "PluginRouteRegistrationError",
			Messages: "Failed to register plugin routes",
			Error:    err,
		})
		return err
	}

	if d.config.Session.Timeout > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		d.stopSweep = cancel
		go d.sessions.Run(sweepCtx, sweepInterval(d.config.Session.Timeout))
	}
	return nil
}

func sweepInterval(timeout time.Duration) time.Duration {
	if interval := timeout / 4; interval > time.Second {
		return interval
	}
	return time.Second
}

// Listen starts the application and serves HTTP on the configured port
// until Shutdown
func (d *DoffApp) Listen() error {
	if err := d.Start(context.Background()); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", d.config.Server.Port)
	d.httpServer = &http.Server{
		Addr:              addr,
		Handler:           d.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	d.logger.Infor(&core.LoggerItem{
		Event:    "StartServer",
		Messages: fmt.Sprintf("%s is starting.....", d.name),
		Data: struct {
			CreatedAT time.Time `json:"created_at"`
			Addr      string    `json:"address"`
		}{
			CreatedAT: time.Now().UTC(),
			Addr:      listener.Addr().String(),
		},
	})

	if err := d.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, runs the OnClose hooks, shuts the plugins
// down, ends every session and finally shuts the container down
func (d *DoffApp) Shutdown(ctx context.Context) error {
	d.logger.Infor(&core.LoggerItem{
		Event:    "ShutdownServer",
		Messages: fmt.Sprintf("%s is shutting down.....", d.name),
		Data: struct {
			ShutdownAt time.Time `json:"shutdown_at"`
		}{
			ShutdownAt: time.Now().UTC(),
		},
	})

	var err error
	if d.httpServer != nil {
		err = multierr.Append(err, d.httpServer.Shutdown(ctx))
	}
	if d.stopSweep != nil {
		d.stopSweep()
	}

	if closeErr := d.pluginManager.GetLifecycleManager().ExecuteOnClose(ctx); closeErr != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "OnCloseError",
			Messages: "Error during OnClose hooks",
			Error:    closeErr,
		})
		err = multierr.Append(err, closeErr)
	}

	if pluginErr := d.pluginManager.ShutdownPlugins(ctx); pluginErr != nil {
		d.logger.Infor(&core.LoggerItem{
			Event:    "PluginShutdownError",
			Messages: "Error during plugin shutdown",
			Error:    pluginErr,
		})
		err = multierr.Append(err, pluginErr)
	}

	d.sessions.Close()
	err = multierr.Append(err, d.container.Shutdown(ctx))
	if err != nil {
		d.logger.Debug("ShutdownServer", "shutdown completed with errors", zap.Error(err))
	}
	return err
}

// RegisterPlugin registers a plugin; it must happen before Start
func (d *DoffApp) RegisterPlugin(plugin Plugin) error {
	return d.pluginManager.RegisterPlugin(plugin)
}

// GetContainer returns the container
func (d *DoffApp) GetContainer() *core.Container {
	return d.container
}

// GetEngine returns the gin engine
func (d *DoffApp) GetEngine() *gin.Engine {
	return d.server
}

// GetPluginManager returns the plugin manager
func (d *DoffApp) GetPluginManager() *PluginManager {
	return d.pluginManager
}

// GetSessionManager returns the HTTP session manager
func (d *DoffApp) GetSessionManager() *SessionManager {
	return d.sessions
}

// GetConfig returns the application configuration
func (d *DoffApp) GetConfig() *core.Config {
	return d.config
}

// GetRouter returns a router helper with injection support
func (d *DoffApp) GetRouter() *Router {
	return NewRouter(d.server, d.container, d.pluginManager.GetLifecycleManager())
}
