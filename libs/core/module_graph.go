package core

import (
	"sort"
)

// ModuleGraph manages module dependencies and deployment order
type ModuleGraph struct {
	modules map[string]*Module
	edges   map[string][]string // module name -> dependency names
}

// NewModuleGraph creates a new module graph
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules: make(map[string]*Module),
		edges:   make(map[string][]string),
	}
}

// AddModule registers a module and its dependencies
func (g *ModuleGraph) AddModule(module *Module) error {
	if module == nil {
		return illegalArgument("module cannot be nil")
	}
	if err := module.Validate(); err != nil {
		return err
	}
	if _, exists := g.modules[module.Name]; exists {
		return illegalArgument("module '%s' already registered", module.Name)
	}

	g.modules[module.Name] = module
	g.edges[module.Name] = module.GetImportNames()
	return nil
}

// GetModule returns a module by name
func (g *ModuleGraph) GetModule(name string) (*Module, bool) {
	module, exists := g.modules[name]
	return module, exists
}

// GetSortedModuleNames returns module names sorted alphabetically
func (g *ModuleGraph) GetSortedModuleNames() []string {
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopologicalSort returns modules in dependency order, dependencies first.
// Unrelated modules keep alphabetical order.
func (g *ModuleGraph) TopologicalSort() ([]*Module, error) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var order []*Module

	var visit func(name string) error
	visit = func(name string) error {
		if onStack[name] {
			return &CircularDependencyError{Path: cyclePath(stack, name)}
		}
		if visited[name] {
			return nil
		}
		onStack[name] = true
		stack = append(stack, name)

		for _, dep := range g.edges[name] {
			if _, exists := g.modules[dep]; !exists {
				return illegalArgument("module '%s' depends on non-existent module '%s'", name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		onStack[name] = false
		visited[name] = true
		order = append(order, g.modules[name])
		return nil
	}

	for _, name := range g.GetSortedModuleNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// cyclePath returns the part of stack from the first occurrence of name,
// closed by name again
func cyclePath(stack []string, name string) []string {
	for i, n := range stack {
		if n == name {
			return append(append([]string(nil), stack[i:]...), name)
		}
	}
	return []string{name, name}
}

// GetDependents returns modules that depend on the given module
func (g *ModuleGraph) GetDependents(moduleName string) ([]*Module, error) {
	if _, exists := g.modules[moduleName]; !exists {
		return nil, illegalArgument("module '%s' not found", moduleName)
	}

	var dependents []*Module
	for _, name := range g.GetSortedModuleNames() {
		for _, dep := range g.edges[name] {
			if dep == moduleName {
				dependents = append(dependents, g.modules[name])
				break
			}
		}
	}
	return dependents, nil
}
