package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
)

// Plugin contributes beans, hooks and routes to an application
type Plugin interface {
	// Name returns the unique name of the plugin
	Name() string
	// Version returns the version of the plugin
	Version() string
	// Module returns the bean archive deployed for the plugin, or nil
	Module() *core.Module
	// Hooks returns the lifecycle hooks provided by this plugin
	Hooks() []LifecycleHook
	// Routes registers the plugin's routes
	Routes(router *gin.Engine) error
	// Init is called once the container is frozen
	Init(app *DoffApp) error
	// Shutdown is called when the application is shutting down
	Shutdown(ctx context.Context) error
}

// Plugin errors
var (
	ErrPluginNil                = errors.New("doffy: plugin cannot be nil")
	ErrPluginAlreadyRegistered  = errors.New("doffy: plugin is already registered")
	ErrPluginRegistrationFailed = errors.New("doffy: plugin registration failed")
)

// PluginManager manages plugin registration and lifecycle. Plugins are
// initialized in registration order and shut down in reverse.
type PluginManager struct {
	plugins   map[string]Plugin
	order     []string
	container *core.Container
	lifecycle *LifecycleManager
}

// NewPluginManager creates a new plugin manager
func NewPluginManager(container *core.Container) *PluginManager {
	return &PluginManager{
		plugins:   make(map[string]Plugin),
		container: container,
		lifecycle: NewLifecycleManager(),
	}
}

// RegisterPlugin deploys the plugin's module and adds its hooks
func (pm *PluginManager) RegisterPlugin(plugin Plugin) error {
	if plugin == nil {
		return ErrPluginNil
	}

	name := plugin.Name()
	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrPluginAlreadyRegistered, name)
	}

	if m := plugin.Module(); m != nil {
		if err := pm.container.Deploy(m); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPluginRegistrationFailed, name, err)
		}
	}

	pm.plugins[name] = plugin
	pm.order = append(pm.order, name)
	for _, hook := range plugin.Hooks() {
		pm.lifecycle.AddHook(hook)
	}
	return nil
}

// GetPlugin returns a plugin by name
func (pm *PluginManager) GetPlugin(name string) (Plugin, bool) {
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// GetPlugins returns all registered plugins in registration order
func (pm *PluginManager) GetPlugins() []Plugin {
	result := make([]Plugin, 0, len(pm.order))
	for _, name := range pm.order {
		result = append(result, pm.plugins[name])
	}
	return result
}

// InitializePlugins initializes all registered plugins
func (pm *PluginManager) InitializePlugins(app *DoffApp) error {
	for _, plugin := range pm.GetPlugins() {
		if err := plugin.Init(app); err != nil {
			return fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
	}
	return nil
}

// RegisterRoutes registers routes for all plugins
func (pm *PluginManager) RegisterRoutes(router *gin.Engine) error {
	for _, plugin := range pm.GetPlugins() {
		if err := plugin.Routes(router); err != nil {
			return fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
	}
	return nil
}

// ShutdownPlugins shuts down every plugin, collecting failures
func (pm *PluginManager) ShutdownPlugins(ctx context.Context) error {
	var err error
	plugins := pm.GetPlugins()
	for i := len(plugins) - 1; i >= 0; i-- {
		err = multierr.Append(err, plugins[i].Shutdown(ctx))
	}
	return err
}

// GetLifecycleManager returns the lifecycle manager
func (pm *PluginManager) GetLifecycleManager() *LifecycleManager {
	return pm.lifecycle
}

// BasePlugin provides a default implementation for optional plugin methods
type BasePlugin struct{}

// Module provides a default empty implementation
func (bp *BasePlugin) Module() *core.Module {
	return nil
}

// Hooks provides a default empty implementation
func (bp *BasePlugin) Hooks() []LifecycleHook {
	return nil
}

// Routes provides a default empty implementation
func (bp *BasePlugin) Routes(router *gin.Engine) error {
	return nil
}

// Init provides a default empty implementation
func (bp *BasePlugin) Init(app *DoffApp) error {
	return nil
}

// Shutdown provides a default empty implementation
func (bp *BasePlugin) Shutdown(ctx context.Context) error {
	return nil
}
