package projectdesc

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/command"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// resolveRule compiles one parsed RuleItem into the *graph.Rule value(s)
// internal/ruleorder instantiates rule nodes from, registering each one's
// compiled scripts in compiled. A plain rule produces exactly one
// *graph.Rule; a multiplexed rule produces one clone per matching input
// artifact (see expandMultiplex below), since internal/ruleorder.Instantiate
// creates exactly one rule node per *graph.Rule and neither it nor
// internal/apply perform any output-path templating of their own.
func resolveRule(product *graph.Product, ri RuleItem, registry *ScriptRegistry, compiled facade.CompiledRules) ([]*graph.Rule, error) {
	prepareFn, scriptFuncs, err := compilePrepare(ri.Commands, registry)
	if err != nil {
		return nil, err
	}

	compiledRule := apply.CompiledRule{Prepare: prepareFn}
	var outputScript graph.ScriptRef
	if ri.OutputArtifactsScriptKey != "" {
		fn, ok := registry.outputArtifacts[ri.OutputArtifactsScriptKey]
		if !ok {
			return nil, kerrors.NewConfigurationError("outputArtifactsScript", ri.OutputArtifactsScriptKey, nil, nil)
		}
		compiledRule.OutputArtifacts = fn
		outputScript = graph.ScriptRef{Source: ri.OutputArtifactsScriptKey}
	}

	base := &graph.Rule{
		Name:                   ri.Name,
		Inputs:                 tagSet(ri.Inputs),
		InputsFromDependencies: tagSet(ri.InputsFromDependencies),
		AuxiliaryInputs:        tagSet(ri.AuxiliaryInputs),
		ExcludedInputs:         tagSet(ri.ExcludedInputs),
		ExplicitlyDependsOn:    tagSet(ri.ExplicitlyDependsOn),
		OutputFileTags:         tagSet(ri.OutputFileTags),
		Multiplex:              ri.Multiplex,
		RequiresInputs:         ri.RequiresInputs,
		AlwaysRun:              ri.AlwaysRun,
		PrepareScript:          graph.ScriptRef{Source: ri.Name},
		OutputArtifactsScript:  outputScript,
	}

	if !ri.Multiplex {
		base.Artifacts = artifactBindings(ri.Artifacts, nil)
		compiled.Apply[base] = compiledRule
		compiled.Commands[base] = scriptFuncs
		return []*graph.Rule{base}, nil
	}

	return expandMultiplex(product, base, ri, compiledRule, scriptFuncs, compiled)
}

// expandMultiplex clones base once per artifact already present in
// product that carries one of base's input tags, retagging each matched
// artifact with a private synthetic tag so its clone's Inputs selects
// exactly that one artifact (§3's multiplex rule: "the engine applies it
// once per matching input, each application seeing exactly one input").
// Every static artifact binding's {{base}}/{{dir}}/{{ext}} placeholders
// are substituted against that one artifact's path at clone time, since
// internal/apply's sanitizeOutputPath treats ArtifactBinding.FilePath as
// a literal relative path and performs no templating itself.
func expandMultiplex(product *graph.Product, base *graph.Rule, ri RuleItem, compiledRule apply.CompiledRule, scriptFuncs map[int]command.ScriptCommandFunc, compiled facade.CompiledRules) ([]*graph.Rule, error) {
	matches := matchingInputArtifacts(product, base.Inputs)
	if len(matches) == 0 {
		if ri.RequiresInputs {
			return nil, kerrors.NewConfigurationError("multiplex rule", ri.Name, nil, nil)
		}
		return nil, nil
	}

	clones := make([]*graph.Rule, 0, len(matches))
	for i, artifact := range matches {
		synthetic := types.FileTag(fmt.Sprintf("%s#%d", ri.Name, i))
		product.RetagArtifact(artifact, artifact.FileTags.Union(types.NewTagSet(synthetic)))

		clone := *base
		clone.Inputs = types.NewTagSet(synthetic)
		clone.Artifacts = artifactBindings(ri.Artifacts, templateVars(artifact.Path()))
		clonePtr := &clone

		compiled.Apply[clonePtr] = compiledRule
		compiled.Commands[clonePtr] = scriptFuncs
		clones = append(clones, clonePtr)
	}
	return clones, nil
}

// matchingInputArtifacts returns every artifact in product tagged with
// any of wants, in a stable, path-sorted order so multiplex expansion is
// deterministic across runs.
func matchingInputArtifacts(product *graph.Product, wants types.TagSet) []*graph.Artifact {
	seen := make(map[string]*graph.Artifact)
	for tag := range wants {
		for _, a := range product.ArtifactsWithTag(tag) {
			seen[a.Path()] = a
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*graph.Artifact, 0, len(paths))
	for _, p := range paths {
		out = append(out, seen[p])
	}
	return out
}

func artifactBindings(items []ArtifactItem, substitute func(string) string) []graph.ArtifactBinding {
	out := make([]graph.ArtifactBinding, 0, len(items))
	for _, item := range items {
		path := item.FilePath
		if substitute != nil {
			path = substitute(path)
		}
		out = append(out, graph.ArtifactBinding{
			FilePath:      path,
			FileTags:      tagSet(item.FileTags),
			AlwaysUpdated: item.AlwaysUpdated,
		})
	}
	return out
}

// templateVars returns a substitution function for a multiplex clone's
// artifact path templates, derived from the one input artifact it was
// cloned for: {{base}} is the filename without extension, {{dir}} its
// directory, {{ext}} its extension without the leading dot.
func templateVars(path string) func(string) string {
	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := filepath.Dir(path)
	return func(s string) string {
		s = strings.ReplaceAll(s, "{{base}}", stem)
		s = strings.ReplaceAll(s, "{{dir}}", dir)
		s = strings.ReplaceAll(s, "{{ext}}", ext)
		return s
	}
}
