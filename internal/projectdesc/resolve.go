package projectdesc

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/ruleorder"
)

// Resolved is what Resolve hands back: the instantiated build graph plus
// the compiled-script bundle internal/facade's BuildOrchestrator needs to
// actually run it.
type Resolved struct {
	Project *graph.Project
	Rules   facade.CompiledRules
}

// Resolve turns a parsed ProjectItem into a real *graph.Project: groups
// become source artifacts (matched against projectDir via doublestar,
// following the teacher's own fallback glob matching in
// internal/indexing/watcher.go), modules become property maps, and rules
// become *graph.Rule values with their scripts compiled through registry.
// Multiplexed rules are expanded per matching input artifact (multiplex.go)
// before internal/ruleorder instantiates the product's rule nodes.
func Resolve(projectDir string, item ProjectItem, registry *ScriptRegistry) (*Resolved, error) {
	return ResolveWithOptions(projectDir, item, registry, false)
}

// ResolveWithOptions is Resolve, plus allFileTags (the build option
// activeFileTagsOnly's negation): when true, every product instantiates
// one rule node per declared rule rather than only the rules reachable
// from its own top-level file tags.
func ResolveWithOptions(projectDir string, item ProjectItem, registry *ScriptRegistry, allFileTags bool) (*Resolved, error) {
	proj := graph.NewProject(item.Name)
	compiled := newCompiledRules()

	for _, pi := range item.Products {
		product := proj.AddProduct(pi.Name)
		moduleProps := mergeModuleProperties(pi.Modules)

		if err := resolveGroups(projectDir, product, pi.Groups, moduleProps); err != nil {
			return nil, err
		}

		var productRules []*graph.Rule
		for _, ri := range pi.Rules {
			expanded, err := resolveRule(product, ri, registry, compiled)
			if err != nil {
				return nil, err
			}
			productRules = append(productRules, expanded...)
		}

		productTags := tagSet(pi.Type)
		if _, err := ruleorder.InstantiateWithOptions(product, productRules, productTags, allFileTags); err != nil {
			return nil, err
		}
	}

	for _, pi := range item.Products {
		product := proj.Products[pi.Name]
		for _, depName := range pi.Dependencies {
			dep, ok := proj.Products[depName]
			if !ok {
				return nil, kerrors.NewConfigurationError("depends-on", depName, productNamesOf(proj), nil)
			}
			product.Dependencies = append(product.Dependencies, dep)
		}
	}

	return &Resolved{Project: proj, Rules: compiled}, nil
}

func productNamesOf(proj *graph.Project) []string {
	out := make([]string, 0, len(proj.Products))
	for name := range proj.Products {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolveGroups matches every group's file patterns against projectDir and
// adds one source artifact per matched file, tagged with the group's tags
// and carrying the product's module properties (§3's module/property
// system, scoped down per SPEC_FULL.md to a direct per-product property
// set rather than a dependency graph of modules).
func resolveGroups(projectDir string, product *graph.Product, groups []GroupItem, moduleProps map[string]string) error {
	properties := graph.NewPropertyMap(moduleProps)
	var allFiles []string
	if err := filepath.Walk(projectDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		allFiles = append(allFiles, path)
		return nil
	}); err != nil {
		return kerrors.NewIOError("walk", projectDir, err)
	}

	for _, g := range groups {
		tags := tagSet(g.FileTags)
		for _, pattern := range g.Files {
			matches, err := matchGroupFiles(projectDir, pattern, allFiles)
			if err != nil {
				return err
			}
			for _, path := range matches {
				if existing, ok := product.Artifacts[path]; ok {
					product.RetagArtifact(existing, existing.FileTags.Union(tags))
					continue
				}
				artifact := graph.NewSourceArtifact(path)
				artifact.FileTags = tags.Clone()
				artifact.Properties = properties
				if err := product.AddArtifact(artifact); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// matchGroupFiles matches pattern (a literal path or a doublestar glob,
// relative to projectDir) against the project's known files.
func matchGroupFiles(projectDir, pattern string, allFiles []string) ([]string, error) {
	if !containsGlobMeta(pattern) {
		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(projectDir, pattern)
		}
		return []string{filepath.Clean(abs)}, nil
	}

	var out []string
	for _, path := range allFiles {
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return nil, kerrors.NewConfigurationError("group pattern", pattern, nil, err)
		}
		if matched {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func containsGlobMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func mergeModuleProperties(modules []ModuleItem) map[string]string {
	out := make(map[string]string)
	for _, m := range modules {
		for k, v := range m.Properties {
			out[k] = v
		}
	}
	return out
}
