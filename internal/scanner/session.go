package scanner

import (
	"path/filepath"

	"github.com/kestrel-build/kestrel/internal/graph"
)

// ReadFileFunc returns the content of path, for scanning. Injected so
// scanning never depends on the real filesystem in tests.
type ReadFileFunc func(path string) ([]byte, error)

// Session ties the pluggable Scanner variants, the RawScanResults cache,
// and the dependency Resolver together into the one operation the
// rule-application engine needs: "scan this artifact and wire whatever
// its scanners find into the build graph."
type Session struct {
	Scanners []Scanner
	Cache    *RawScanResults
	Resolver *Resolver
	ReadFile ReadFileFunc
}

// NewSession returns a Session running scanners, backed by cache and
// resolver, reading file content through readFile.
func NewSession(scanners []Scanner, cache *RawScanResults, resolver *Resolver, readFile ReadFileFunc) *Session {
	return &Session{Scanners: scanners, Cache: cache, Resolver: resolver, ReadFile: readFile}
}

// Scan runs every configured scanner over artifact, recursively following
// resolved dependencies for scanners that report Recursive()==true, and
// wires every resolved dependency onto artifact via AddScannerChild (I5).
// It returns one Result per scanner, in Scanners order, so the caller can
// read C++ module metadata (ProvidesModule, RequiresModules) that isn't
// itself a graph edge.
func (s *Session) Scan(product *graph.Product, artifact *graph.Artifact) ([]Result, error) {
	results := make([]Result, len(s.Scanners))
	for i, sc := range s.Scanners {
		visited := map[string]struct{}{artifact.Path(): {}}
		result, err := s.scanWith(sc, product, artifact, visited)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

func (s *Session) scanWith(sc Scanner, product *graph.Product, artifact *graph.Artifact, visited map[string]struct{}) (Result, error) {
	result, err := s.rawScan(sc, artifact)
	if err != nil {
		return Result{}, err
	}

	baseDir := filepath.Dir(artifact.Path())
	searchPaths := sc.CollectSearchPaths(artifact)

	for _, name := range result.Dependencies {
		res, ok := s.Resolver.Resolve(product, baseDir, searchPaths, name)
		if !ok {
			continue
		}
		artifact.AddScannerChild(res)

		if !sc.Recursive() {
			continue
		}
		child, ok := res.(*graph.Artifact)
		if !ok {
			continue
		}
		if _, seen := visited[child.Path()]; seen {
			continue
		}
		visited[child.Path()] = struct{}{}
		if _, err := s.scanWith(sc, product, child, visited); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

// rawScan consults the cache before invoking sc.CollectDependencies,
// storing any freshly computed result back into the cache.
func (s *Session) rawScan(sc Scanner, artifact *graph.Artifact) (Result, error) {
	properties := artifact.Properties
	if properties == nil {
		properties = graph.NewPropertyMap(nil)
	}

	if cached, ok := s.Cache.Lookup(sc, artifact.Path(), properties); ok {
		return cached, nil
	}

	content, err := s.ReadFile(artifact.Path())
	if err != nil {
		return Result{}, err
	}
	result, err := sc.CollectDependencies(artifact.Path(), content, artifact.FileTags)
	if err != nil {
		return Result{}, err
	}
	s.Cache.Store(sc, artifact.Path(), properties, result)
	return result, nil
}
