// Package registry implements the file resource registry of §4.2: a
// process-wide index from (directory, filename) to the FileResource nodes
// that live at that path, plus the change-tracking probe records §4.6
// replays on reload. It mirrors the role the teacher's
// internal/indexing.DeletedFileTracker plays for file state — a single
// shared, lock-guarded index consulted far more often than it is mutated.
package registry

import (
	"path/filepath"
	"sync"
	"time"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/types"
)

type dirFileKey struct {
	dir  string
	file string
}

func splitPath(path string) dirFileKey {
	return dirFileKey{dir: filepath.Dir(path), file: filepath.Base(path)}
}

// generatedChecker is implemented by concrete Artifact types so the
// registry can enforce I3 (two generated artifacts must not share a
// filePath) without importing internal/graph.
type generatedChecker interface {
	IsGenerated() bool
}

func isGenerated(res types.FileResource) bool {
	gc, ok := res.(generatedChecker)
	return ok && gc.IsGenerated()
}

// Registry is the (dirPath, fileName) -> []FileResource index shared by
// every product in a project (§3 "The project owns ... the file-resource
// index").
type Registry struct {
	mu      sync.RWMutex
	byEntry map[dirFileKey][]types.FileResource

	probes *ProbeStore
}

// New creates an empty registry with its own probe store.
func New() *Registry {
	return &Registry{
		byEntry: make(map[dirFileKey][]types.FileResource),
		probes:  NewProbeStore(),
	}
}

// Probes returns the registry's change-tracking probe store (§4.2, §4.6).
func (r *Registry) Probes() *ProbeStore {
	return r.probes
}

// Insert registers res under its path. Inserting a generated artifact
// whose path already holds another generated artifact fails with a
// ConflictError (I3); source artifacts and file dependencies may share a
// path with other resources (e.g. a header included by two products).
func (r *Registry) Insert(res types.FileResource) error {
	path := res.Path()
	key := splitPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if isGenerated(res) {
		for _, existing := range r.byEntry[key] {
			if isGenerated(existing) {
				loc := types.SourceLocation{FilePath: path}
				return kerrors.NewConflictError(path, "generated artifact", loc, "generated artifact", loc)
			}
		}
	}

	r.byEntry[key] = append(r.byEntry[key], res)
	return nil
}

// Remove unregisters res. It is idempotent: removing a resource that was
// never registered, or removing it twice, is a no-op.
func (r *Registry) Remove(res types.FileResource) {
	key := splitPath(res.Path())

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byEntry[key]
	for i, existing := range entries {
		if existing == res {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.byEntry, key)
		return
	}
	r.byEntry[key] = entries
}

// Lookup returns every FileResource registered under (dir, file).
func (r *Registry) Lookup(dir, file string) []types.FileResource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.FileResource(nil), r.byEntry[dirFileKey{dir: dir, file: file}]...)
}

// LookupPath returns every FileResource registered at the absolute path.
func (r *Registry) LookupPath(path string) []types.FileResource {
	key := splitPath(path)
	return r.Lookup(key.dir, key.file)
}

// StatFunc resolves a path's modification time, normally os.Stat's ModTime.
type StatFunc func(path string) (time.Time, error)

// Timestamp returns res's cached timestamp, populating the cache from
// statFn on first use. Call res.ClearTimestamp() to force the next call
// back to disk (§4.2).
func (r *Registry) Timestamp(res types.FileResource, statFn StatFunc) (time.Time, error) {
	if ts, ok := res.Timestamp(); ok {
		return ts, nil
	}
	ts, err := statFn(res.Path())
	if err != nil {
		return time.Time{}, kerrors.NewIOError("stat", res.Path(), err)
	}
	res.SetTimestamp(ts)
	return ts, nil
}
