package apply

import (
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// applyStatic resolves rule.Artifacts against buildDir and reuses or
// creates one output artifact per binding, rejecting duplicate output
// paths within this application.
func (e *Engine) applyStatic(product *graph.Product, rule *graph.Rule, transformer *graph.Transformer, buildDir string) ([]*graph.Artifact, error) {
	seen := make(map[string]struct{}, len(rule.Artifacts))
	outputs := make([]*graph.Artifact, 0, len(rule.Artifacts))

	for _, binding := range rule.Artifacts {
		path, err := sanitizeOutputPath(buildDir, binding.FilePath)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[path]; dup {
			loc := types.SourceLocation{}
			return nil, kerrors.NewConflictError(path, "duplicate output of rule "+rule.Name, loc, "duplicate output of rule "+rule.Name, loc)
		}
		seen[path] = struct{}{}

		out, err := resolveOutputArtifact(product, rule, transformer, path, binding.FileTags, binding.AlwaysUpdated, len(rule.Inputs) > 0 || len(rule.InputsFromDependencies) > 0)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// applyDynamic evaluates rule.OutputArtifactsScript and resolves each
// returned spec the same way applyStatic resolves a static binding.
func (e *Engine) applyDynamic(product *graph.Product, rule *graph.Rule, transformer *graph.Transformer, buildDir string, compiled CompiledRule) ([]*graph.Artifact, error) {
	scope := e.Evaluator.NewScope(nil, product, transformer.Inputs, firstOrNil(transformer.Inputs), transformer.ExplicitlyDependsOn, nil, nil)
	specs, access, err := e.Evaluator.EvaluateOutputArtifacts(compiled.OutputArtifacts, scope)
	if err != nil {
		return nil, err
	}
	transformer.PropertiesRequestedInPrepareScript = mergeUnique(transformer.PropertiesRequestedInPrepareScript, access.Properties)

	seen := make(map[string]struct{}, len(specs))
	outputs := make([]*graph.Artifact, 0, len(specs))
	for _, spec := range specs {
		path, err := sanitizeOutputPath(buildDir, spec.FilePath)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[path]; dup {
			loc := types.SourceLocation{}
			return nil, kerrors.NewConflictError(path, "duplicate output of rule "+rule.Name, loc, "duplicate output of rule "+rule.Name, loc)
		}
		seen[path] = struct{}{}

		out, err := resolveOutputArtifact(product, rule, transformer, path, spec.FileTags, spec.AlwaysUpdated, len(rule.Inputs) > 0 || len(rule.InputsFromDependencies) > 0)
		if err != nil {
			return nil, err
		}
		if len(spec.PropertyOverrides) > 0 {
			out.Properties = graph.NewPropertyMap(spec.PropertyOverrides)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// resolveOutputArtifact implements §4.6's "If an existing artifact is
// found at that path" handling: conflict with another rule's output,
// conflict with this rule's own output from a distinct transformer on a
// non-multiplex rule, or reuse.
func resolveOutputArtifact(product *graph.Product, rule *graph.Rule, transformer *graph.Transformer, path string, tags types.TagSet, alwaysUpdated bool, hasDeclaredInputs bool) (*graph.Artifact, error) {
	existing, ok := product.Artifacts[path]
	if !ok {
		out := graph.NewGeneratedArtifact(path, transformer)
		out.FileTags = tags.Clone()
		out.AlwaysUpdated = alwaysUpdated
		if err := product.AddArtifact(out); err != nil {
			return nil, err
		}
		return out, nil
	}

	if !existing.IsGenerated() {
		loc := types.SourceLocation{}
		return nil, kerrors.NewConflictError(path, "source artifact", loc, "output of rule "+rule.Name, loc)
	}
	if existing.Transformer != nil && existing.Transformer.Rule != rule {
		loc := types.SourceLocation{}
		return nil, kerrors.NewConflictError(path, "output of another rule", loc, "output of rule "+rule.Name, loc)
	}
	if existing.Transformer != transformer && !rule.Multiplex {
		loc := types.SourceLocation{}
		return nil, kerrors.NewConflictError(path, "output from a distinct input set", loc, "output of rule "+rule.Name, loc)
	}

	existing.Transformer = transformer
	product.RetagArtifact(existing, tags)
	existing.AlwaysUpdated = alwaysUpdated
	if hasDeclaredInputs {
		existing.ClearTimestamp()
	}
	return existing, nil
}
