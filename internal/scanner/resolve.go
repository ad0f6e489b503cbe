package scanner

import (
	"path/filepath"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// ExistsFunc reports whether path exists on disk. It is injected so tests
// never touch the real filesystem.
type ExistsFunc func(path string) bool

// Resolver turns a scanner-reported dependency name into a graph node,
// per the resolution order of §4.5.
type Resolver struct {
	Project *graph.Project
	Exists  ExistsFunc
}

// NewResolver returns a Resolver backed by project and exists.
func NewResolver(project *graph.Project, exists ExistsFunc) *Resolver {
	return &Resolver{Project: project, Exists: exists}
}

// Resolve tries name as an absolute path, or as baseDir then each of
// searchPaths joined with name, in order. For the first candidate path
// that resolves to anything at all, it returns, in priority order: an
// artifact already in product, an artifact in any other product, an
// existing FileDependency, or (if the path exists on disk) a freshly
// created FileDependency. It reports false only if no candidate resolves
// to anything.
func (r *Resolver) Resolve(product *graph.Product, baseDir string, searchPaths []string, name string) (types.FileResource, bool) {
	var roots []string
	if filepath.IsAbs(name) {
		roots = []string{""}
	} else {
		roots = append([]string{baseDir}, searchPaths...)
	}

	for _, root := range roots {
		candidate := name
		if root != "" {
			candidate = filepath.Join(root, name)
		}
		candidate = filepath.Clean(candidate)

		if res, ok := r.resolveCandidate(product, candidate); ok {
			return res, true
		}
	}
	return nil, false
}

func (r *Resolver) resolveCandidate(product *graph.Product, candidate string) (types.FileResource, bool) {
	if a, ok := product.Artifacts[candidate]; ok {
		return a, true
	}
	for name, p := range r.Project.Products {
		if name == product.Name {
			continue
		}
		if a, ok := p.Artifacts[candidate]; ok {
			return a, true
		}
	}
	if dep, ok := r.Project.FileDependencies[candidate]; ok {
		return dep, true
	}
	if r.Exists != nil && r.Exists(candidate) {
		return r.Project.GetOrCreateFileDependency(candidate), true
	}
	return nil, false
}
