package graph

import "github.com/kestrel-build/kestrel/internal/registry"

// Project is the top-level container of §3: it owns FileDependency nodes
// and the file-resource registry directly, while each Product owns its
// own artifacts and rule nodes.
type Project struct {
	Name string

	Products map[string]*Product

	// FileDependencies holds every FileDependency node discovered so far,
	// keyed by absolute path (§3 "The project owns FileDependency nodes").
	FileDependencies map[string]*FileDependency

	Registry *registry.Registry
}

// NewProject creates an empty project with its own file resource
// registry.
func NewProject(name string) *Project {
	return &Project{
		Name:             name,
		Products:         make(map[string]*Product),
		FileDependencies: make(map[string]*FileDependency),
		Registry:         registry.New(),
	}
}

// AddProduct creates and registers an empty product named name.
func (proj *Project) AddProduct(name string) *Product {
	p := NewProduct(proj, name)
	proj.Products[name] = p
	return p
}

// GetOrCreateFileDependency returns the FileDependency at path, creating
// and registering one if this is the first reference to it.
func (proj *Project) GetOrCreateFileDependency(path string) *FileDependency {
	if existing, ok := proj.FileDependencies[path]; ok {
		return existing
	}
	dep := NewFileDependency(path)
	proj.FileDependencies[path] = dep
	proj.Registry.Insert(dep) //nolint:errcheck // FileDependency never collides under I3 (IsGenerated()==false)
	return dep
}
