// Package clean implements the artifact cleaner and directory GC of
// §4.10: removing a set of products' generated artifacts from disk (and
// from the in-memory graph) and then removing any ancestor directory,
// within the project's build root, left empty by those removals.
package clean

import (
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/logging"
)

// FileSystem abstracts the filesystem operations the cleaner performs,
// so tests can substitute an in-memory fake instead of touching disk.
type FileSystem interface {
	Remove(path string) error
	ReadDir(dir string) ([]string, error)
}

type osFileSystem struct{}

// NewOSFileSystem returns the default FileSystem, backed by os.Remove
// and os.ReadDir.
func NewOSFileSystem() FileSystem { return osFileSystem{} }

func (osFileSystem) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (osFileSystem) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Result summarizes one clean operation.
type Result struct {
	Removed []string
	Failed  []string
	Err     error
}

// Cleaner removes generated artifacts and garbage-collects the
// directories they leave behind.
type Cleaner struct {
	FS FileSystem
}

// New returns a Cleaner. A nil fs defaults to NewOSFileSystem.
func New(fs FileSystem) *Cleaner {
	if fs == nil {
		fs = NewOSFileSystem()
	}
	return &Cleaner{FS: fs}
}

// CleanProduct removes every generated artifact of product from disk and
// from the product itself, then removes any ancestor directory (within
// buildRoot) left empty. A removal failure is fatal and aborts the whole
// operation unless keepGoing is set, in which case it is recorded in
// Result.Failed and the remaining artifacts are still attempted.
func (c *Cleaner) CleanProduct(product *graph.Product, buildRoot string, keepGoing bool) Result {
	var result Result
	touchedDirs := make(map[string]struct{})

	paths := make([]string, 0, len(product.Artifacts))
	for path, a := range product.Artifacts {
		if a.IsGenerated() {
			paths = append(paths, path)
		}
	}

	for _, path := range paths {
		a := product.Artifacts[path]
		if err := c.FS.Remove(path); err != nil {
			logging.Warningf("failed to remove artifact %s: %v", path, err)
			result.Failed = append(result.Failed, path)
			if !keepGoing {
				result.Err = kerrors.NewIOError("remove", path, err)
				return result
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		product.RemoveArtifact(a)
		touchedDirs[filepath.Dir(path)] = struct{}{}
	}

	c.removeEmptyAncestors(touchedDirs, buildRoot)
	return result
}

// RemoveStaleArtifacts removes artifact files at paths that are no longer
// produced by the current build graph (the "removeStaleArtifacts" build
// option), applying the same fatal-unless-keepGoing and directory-GC
// behavior as CleanProduct.
func (c *Cleaner) RemoveStaleArtifacts(paths []string, buildRoot string, keepGoing bool) Result {
	var result Result
	touchedDirs := make(map[string]struct{})

	for _, path := range paths {
		if err := c.FS.Remove(path); err != nil {
			logging.Warningf("failed to remove stale artifact %s: %v", path, err)
			result.Failed = append(result.Failed, path)
			if !keepGoing {
				result.Err = kerrors.NewIOError("remove", path, err)
				return result
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		touchedDirs[filepath.Dir(path)] = struct{}{}
	}

	c.removeEmptyAncestors(touchedDirs, buildRoot)
	return result
}

// removeEmptyAncestors walks upward from each directory in startDirs,
// removing it and continuing to its parent as long as it is empty and
// still within buildRoot.
func (c *Cleaner) removeEmptyAncestors(startDirs map[string]struct{}, buildRoot string) {
	cleanRoot := filepath.Clean(buildRoot)
	for dir := range startDirs {
		cur := filepath.Clean(dir)
		for c.withinRoot(cur, cleanRoot) && cur != cleanRoot {
			entries, err := c.FS.ReadDir(cur)
			if err != nil || len(entries) > 0 {
				break
			}
			if err := c.FS.Remove(cur); err != nil {
				break
			}
			cur = filepath.Dir(cur)
		}
	}
}

func (c *Cleaner) withinRoot(dir, root string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
