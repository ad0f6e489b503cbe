package scanner

import (
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// SearchPathsEvaluator and DependenciesEvaluator are the two script
// callbacks a user-defined scanner evaluates in the script runtime, with
// the scanned artifact exposed as a module-qualified value (§4.5). They
// are satisfied by internal/script's evaluator; scanner itself does not
// depend on internal/script to avoid a package cycle (script may in turn
// need the scanner's Result type for typed test doubles).
type SearchPathsEvaluator func(artifact *graph.Artifact) ([]string, error)
type DependenciesEvaluator func(file string, content []byte, fileTagsHint types.TagSet) (Result, error)

// UserDefined is a project-declared scanner: its searchPathsScript and
// scanScript are opaque to this package, already compiled down to Go
// closures by whatever evaluates the project description.
type UserDefined struct {
	Name               string
	SearchPathsScript  SearchPathsEvaluator
	ScanScript         DependenciesEvaluator
	IsRecursive        bool
	RelevantProperties []string
}

var _ Scanner = (*UserDefined)(nil)

func (s *UserDefined) ID() string { return "user." + s.Name }

func (s *UserDefined) Key() string { return "user:" + s.Name }

func (s *UserDefined) Recursive() bool { return s.IsRecursive }

func (s *UserDefined) CollectSearchPaths(artifact *graph.Artifact) []string {
	if s.SearchPathsScript == nil {
		return nil
	}
	paths, err := s.SearchPathsScript(artifact)
	if err != nil {
		return nil
	}
	return paths
}

func (s *UserDefined) CollectDependencies(file string, content []byte, fileTagsHint types.TagSet) (Result, error) {
	if s.ScanScript == nil {
		return Result{}, nil
	}
	return s.ScanScript(file, content, fileTagsHint)
}

// AreModulePropertiesCompatible compares only the properties the scanner
// declared relevant (RelevantProperties); any property not in that list
// never invalidates a cached result.
func (s *UserDefined) AreModulePropertiesCompatible(a, b *graph.PropertyMap) bool {
	for _, key := range s.RelevantProperties {
		av, _ := a.Get(key)
		bv, _ := b.Get(key)
		if av != bv {
			return false
		}
	}
	return true
}
