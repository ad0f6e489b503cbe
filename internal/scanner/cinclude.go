package scanner

import (
	"sort"
	"strings"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// CInclude is the built-in C/C++ header scanner of §4.5. It recognizes
// `#include "name"` and `#include <name>` directives; name is reported
// as-is and resolved later by the dependency resolution order (baseDir,
// then search paths; each candidate path is looked up in the graph
// before on disk).
//
// SystemPaths is empty by default: system/distribution/compiler include
// paths are only added as candidate roots when the caller configures
// them, matching the "only when configured" qualifier of §4.5.
type CInclude struct {
	SystemPaths []string
}

var _ Scanner = (*CInclude)(nil)

func (s *CInclude) ID() string { return "builtin.cpp.includes" }

func (s *CInclude) Key() string {
	return "cinclude:" + strings.Join(s.SystemPaths, ":")
}

func (s *CInclude) Recursive() bool { return true }

func (s *CInclude) CollectSearchPaths(artifact *graph.Artifact) []string {
	paths := make([]string, len(s.SystemPaths))
	copy(paths, s.SystemPaths)
	return paths
}

// CollectDependencies scans content line by line for include directives.
// Both quoted and angle-bracket forms are reported; which roots a name
// eventually resolves against is the resolver's decision, not the
// scanner's.
func (s *CInclude) CollectDependencies(file string, content []byte, fileTagsHint types.TagSet) (Result, error) {
	var deps []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(string(content), "\n") {
		name, ok := parseIncludeDirective(line)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		deps = append(deps, name)
	}

	sort.Strings(deps)
	return Result{Dependencies: deps}, nil
}

// parseIncludeDirective extracts the name from a `#include "name"` or
// `#include <name>` line, ignoring leading whitespace. It does not
// evaluate preprocessor conditionals; a scan is a heuristic, not a full
// preprocess.
func parseIncludeDirective(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	const directive = "#include "
	if !strings.HasPrefix(trimmed, directive) {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[len(directive):])
	if rest == "" {
		return "", false
	}

	open, close := byte('"'), byte('"')
	if rest[0] == '<' {
		open, close = '<', '>'
	} else if rest[0] != '"' {
		return "", false
	}
	if rest[0] != open {
		return "", false
	}
	end := strings.IndexByte(rest[1:], close)
	if end < 0 {
		return "", false
	}
	return rest[1 : 1+end], true
}

// AreModulePropertiesCompatible reports true whenever the two maps carry
// equal cpp.includePaths; the header scanner never reads any other
// property, so changes elsewhere must not invalidate its cache.
func (s *CInclude) AreModulePropertiesCompatible(a, b *graph.PropertyMap) bool {
	av, _ := a.Get("cpp.includePaths")
	bv, _ := b.Get("cpp.includePaths")
	return av == bv
}
