package core

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Module is a bean archive: a named group of bean definitions and observer
// methods deployed together after the archives it imports
type Module struct {
	// Name is the unique identifier for this module
	Name string

	// Version follows semantic versioning (e.g., "1.0.0")
	Version string

	// Description provides human-readable module purpose
	Description string

	// Imports lists modules deployed before this one
	Imports []*Module

	// Beans are registered in declaration order when the module is deployed
	Beans []Provider

	// Observers are observer methods not declared by a bean
	Observers []*ObserverMethod

	// Alternatives lists bean ids or classes this archive enables
	Alternatives []string
}

// NewModule creates a new module with the given name and version
func NewModule(name, version string) *Module {
	return &Module{
		Name:    name,
		Version: version,
	}
}

// WithImports adds import dependencies to the module
func (m *Module) WithImports(imports ...*Module) *Module {
	m.Imports = append(m.Imports, imports...)
	return m
}

// WithBeans adds bean declarations to the module
func (m *Module) WithBeans(beans ...Provider) *Module {
	m.Beans = append(m.Beans, beans...)
	return m
}

// WithObservers adds standalone observer methods to the module
func (m *Module) WithObservers(observers ...*ObserverMethod) *Module {
	m.Observers = append(m.Observers, observers...)
	return m
}

// EnableAlternatives enables alternatives, interceptors or decorators by bean id or class
func (m *Module) EnableAlternatives(ids ...string) *Module {
	m.Alternatives = append(m.Alternatives, ids...)
	return m
}

// Validate checks if the module configuration is valid
func (m *Module) Validate() error {
	if m.Name == "" {
		return illegalArgument("module name cannot be empty")
	}
	if m.Version == "" {
		return illegalArgument("version of module '%s' cannot be empty", m.Name)
	}
	for i, bean := range m.Beans {
		if bean == nil {
			return illegalArgument("bean %d of module '%s' is nil", i, m.Name)
		}
	}
	for i, om := range m.Observers {
		if om == nil {
			return illegalArgument("observer %d of module '%s' is nil", i, m.Name)
		}
	}
	for _, imp := range m.Imports {
		if imp == nil {
			return illegalArgument("module '%s' imports a nil module", m.Name)
		}
	}
	return nil
}

// GetImportNames returns the names of all imported modules
func (m *Module) GetImportNames() []string {
	names := make([]string, len(m.Imports))
	for i, imp := range m.Imports {
		names[i] = imp.Name
	}
	return names
}

// Deploy registers modules and everything they import, imports first. A
// module already deployed is skipped.
func (c *Container) Deploy(modules ...*Module) error {
	graph := NewModuleGraph()
	var collect func(m *Module) error
	collect = func(m *Module) error {
		if m == nil {
			return illegalArgument("module cannot be nil")
		}
		if existing, ok := graph.GetModule(m.Name); ok {
			if existing != m {
				return illegalArgument("two different modules are named '%s'", m.Name)
			}
			return nil
		}
		if err := graph.AddModule(m); err != nil {
			return err
		}
		for _, imp := range m.Imports {
			if err := collect(imp); err != nil {
				return err
			}
		}
		return nil
	}
	for _, m := range modules {
		if err := collect(m); err != nil {
			return err
		}
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return &DeploymentError{Err: err}
	}

	// a module whose import failed is not deployed; neither are its own dependents
	var errs error
	failedImport := make(map[string]string)
	for _, m := range order {
		c.mu.Lock()
		_, done := c.modules[m.Name]
		c.mu.Unlock()
		if done {
			continue
		}
		cause, blocked := failedImport[m.Name]
		if blocked {
			errs = multierr.Append(errs, fmt.Errorf("module '%s': import '%s' failed to deploy", m.Name, cause))
		} else if err := c.deployModule(m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("module '%s': %w", m.Name, err))
			cause = m.Name
		} else {
			continue
		}
		dependents, _ := graph.GetDependents(m.Name)
		for _, d := range dependents {
			if _, ok := failedImport[d.Name]; !ok {
				failedImport[d.Name] = cause
			}
		}
	}
	return errs
}

func (c *Container) deployModule(m *Module) error {
	if len(m.Alternatives) > 0 {
		if err := c.EnableAlternatives(m.Alternatives...); err != nil {
			return err
		}
	}
	var err error
	for _, p := range m.Beans {
		err = multierr.Append(err, c.register(p.Build(), m.Name))
	}
	for _, om := range m.Observers {
		err = multierr.Append(err, c.AddObserver(om))
	}

	c.mu.Lock()
	c.modules[m.Name] = m
	c.deployed = append(c.deployed, m)
	c.mu.Unlock()

	c.logger.Debug("ModuleDeployed", "module deployed",
		zap.String("module", m.Name),
		zap.String("version", m.Version),
		zap.Int("beans", len(m.Beans)),
	)
	return err
}

// Modules returns the deployed modules in deployment order
func (c *Container) Modules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Module(nil), c.deployed...)
}
