package projectdesc

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
)

// FSResolver implements facade.Resolver by reading and resolving a single
// KDL project file from disk (§6's Resolver collaborator, implemented for
// real here rather than stubbed, since without it nothing in this module
// can drive an end-to-end scenario). It also keeps the compiled-script
// bundle the last successful resolve produced, since facade.Resolver's
// interface only returns a *graph.Project: callers fetch it with Rules()
// before calling Facade.Build.
type FSResolver struct {
	Path     string
	Registry *ScriptRegistry

	// AllFileTags instantiates every declared rule of every product
	// rather than only the rules reachable from each product's own
	// top-level file tags (the activeFileTagsOnly build option negated).
	AllFileTags bool

	mu    sync.Mutex
	rules facade.CompiledRules
}

// NewFSResolver returns a resolver reading path (a KDL project file),
// compiling any command-script or outputArtifactsScript references
// against registry. A nil registry is treated as empty: the project file
// must be purely declarative.
func NewFSResolver(path string, registry *ScriptRegistry) *FSResolver {
	if registry == nil {
		registry = NewScriptRegistry()
	}
	return &FSResolver{Path: path, Registry: registry}
}

// Resolve reads r.Path, parses it, and resolves it into a *graph.Project,
// satisfying facade.Resolver. The project file's directory is the base
// every group's file pattern is matched against.
func (r *FSResolver) Resolve(ctx context.Context) (*graph.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, kerrors.NewCancelledError(err.Error())
	}

	content, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, kerrors.NewIOError("read", r.Path, err)
	}

	item, err := Parse(string(content))
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveWithOptions(filepath.Dir(r.Path), item, r.Registry, r.AllFileTags)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.rules = resolved.Rules
	r.mu.Unlock()

	return resolved.Project, nil
}

// Rules returns the compiled-script bundle from the most recent
// successful Resolve call, for handing to facade.Build alongside the
// project it just set up.
func (r *FSResolver) Rules() facade.CompiledRules {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules
}

var _ facade.Resolver = (*FSResolver)(nil)
