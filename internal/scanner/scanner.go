// Package scanner implements the dependency scanner subsystem of §4.5: a
// pluggable capability set for discovering a file's additional
// dependencies (headers, C++ module imports, or a project-defined
// equivalent), a per-file result cache keyed by property-map fingerprint,
// and the dependency resolution order that turns a reported name into a
// graph node.
package scanner

import (
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// Result is one scanner's findings for a single file. Dependencies are
// reported names, not yet resolved to graph nodes (Resolve does that).
// ProvidesModule/IsInterfaceModule/RequiresModules are populated only by
// the C++ module scanner; every other scanner leaves them zero.
type Result struct {
	Dependencies      []string
	ProvidesModule    string
	IsInterfaceModule bool
	RequiresModules   []string
}

// Scanner is the capability set of §4.5. Every variant (built-in C/C++
// header scanner, built-in C++ module scanner, user-defined script
// scanner) implements it the same way.
type Scanner interface {
	// ID is a stable identifier distinguishing this scanner variant from
	// every other, used as part of the RawScanResults cache key.
	ID() string

	// Key returns a stable string describing this scanner instance's
	// configuration (search path list, flags); two scanners with equal
	// Key values are expected to produce identical results for the same
	// file and properties.
	Key() string

	// Recursive reports whether dependencies this scanner discovers
	// should themselves be scanned (true for header scanners, since a
	// header can include another header).
	Recursive() bool

	// CollectSearchPaths returns the additional directories this scanner
	// should search to resolve artifact's dependencies, beyond baseDir.
	CollectSearchPaths(artifact *graph.Artifact) []string

	// CollectDependencies scans content (already read from file) and
	// returns the raw dependency names it finds. fileTagsHint narrows
	// scanner-specific behavior (e.g. a module scanner only inspects
	// files tagged "cpp" or "hpp").
	CollectDependencies(file string, content []byte, fileTagsHint types.TagSet) (Result, error)

	// AreModulePropertiesCompatible reports whether a cached result
	// produced under properties a can be reused when the requesting
	// artifact has properties b. Most scanners compare only the
	// properties they actually read.
	AreModulePropertiesCompatible(a, b *graph.PropertyMap) bool
}
