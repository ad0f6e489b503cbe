// Package apply implements the rule-application engine of §4.6: given a
// rule node and its product's current artifact index, it decides whether
// the rule must re-run, computes its output artifacts (static or
// dynamic), and wires the resulting transformer into the build graph.
package apply

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/scanner"
	"github.com/kestrel-build/kestrel/internal/script"
	"github.com/kestrel-build/kestrel/internal/types"
)

// CompiledRule bundles a rule's scripts, already compiled to Go closures
// by internal/projectdesc, so this package never itself touches script
// source text.
type CompiledRule struct {
	Prepare         script.PrepareFunc
	OutputArtifacts script.OutputArtifactsFunc
}

// Engine runs rule applications. Now is injectable so tests get
// deterministic timestamps.
type Engine struct {
	Evaluator *script.Evaluator
	Now       func() time.Time

	// Stat resolves a source or generated artifact's on-disk modification
	// time, consulted through project.Registry.Timestamp's lazy cache the
	// same way internal/registry itself does (§4.2): a fresh process never
	// starts with any artifact's timestamp already cached, so this is the
	// only path that ever actually reaches the filesystem.
	Stat func(path string) (time.Time, error)

	// ScanSession runs §4.5's dependency scanners over a rule's compatible
	// inputs before staleness is evaluated. Nil disables scanning entirely
	// (the zero value for rules/products with no configured scanners).
	ScanSession *scanner.Session

	// ChangedFiles forces reapplication for any node touching one of these
	// paths, bypassing timestamp comparison (the buildOptions.changedFiles
	// override of §4.8: the caller asserts these files changed regardless
	// of what a stat would report).
	ChangedFiles map[string]struct{}

	// FilesToConsider restricts the "is this input newer than last
	// application" check to this set when non-empty (buildOptions.
	// filesToConsider, §4.8) — a scoping knob, distinct from ChangedFiles,
	// for limiting how much of a huge tree gets stat'd on one build.
	FilesToConsider map[string]struct{}
}

// NewEngine returns an Engine using now for every timestamp it assigns,
// stat'ing the real filesystem for artifact timestamps.
func NewEngine(now func() time.Time) *Engine {
	return &Engine{
		Evaluator: script.NewEvaluator(),
		Now:       now,
		Stat:      statFile,
	}
}

func statFile(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Apply re-evaluates node if required and returns whether it actually
// ran. buildDir is the product's build directory, used to resolve and
// sanitize output paths.
func (e *Engine) Apply(node *graph.RuleNode, product *graph.Product, project *graph.Project, buildDir string, compiled CompiledRule) (applied bool, err error) {
	rule := node.Rule
	compatibleInputs := computeCompatibleInputs(product, rule)
	explicitlyDependsOn := computeInputsForTags(product, rule.ExplicitlyDependsOn, nil)
	auxiliaryInputs := computeInputsForTags(product, rule.AuxiliaryInputs, nil)

	if e.ScanSession != nil {
		for _, a := range compatibleInputs {
			if _, err := e.ScanSession.Scan(product, a); err != nil {
				return false, err
			}
		}
	}

	if !e.needsReapplication(node, rule, project, compatibleInputs, explicitlyDependsOn, auxiliaryInputs) {
		return false, nil
	}

	transformer := node.Transformer
	if transformer == nil {
		transformer = graph.NewTransformer(rule)
	}
	transformer.Inputs = append(append([]*graph.Artifact{}, compatibleInputs...), auxiliaryInputs...)
	transformer.ExplicitlyDependsOn = explicitlyDependsOn

	var outputs []*graph.Artifact
	if rule.IsDynamic() {
		outputs, err = e.applyDynamic(product, rule, transformer, buildDir, compiled)
	} else {
		outputs, err = e.applyStatic(product, rule, transformer, buildDir)
	}
	if err != nil {
		return false, err
	}
	transformer.Outputs = outputs
	graph.WireTransformer(transformer)
	if err := graph.CheckAcyclic(graph.ProductRoots(product)); err != nil {
		return false, err
	}

	scope := e.Evaluator.NewScope(project, product, compatibleInputs, firstOrNil(compatibleInputs), explicitlyDependsOn, outputs, nil)
	commands, access, err := e.Evaluator.EvaluatePrepare(compiled.Prepare, scope)
	if err != nil {
		return false, err
	}
	transformer.Commands = commands
	transformer.PropertiesRequestedInPrepareScript = mergeUnique(transformer.PropertiesRequestedInPrepareScript, access.Properties)
	transformer.PropertiesRequestedFromArtifactInPrepareScript = access.PropertiesFromArtifact
	transformer.ImportedFilesUsedInPrepareScript = access.ImportedFiles
	transformer.DepsRequestedInPrepareScript = access.Deps
	transformer.ArtifactsMapRequestedInPrepareScript = access.ArtifactsMapTags
	transformer.ExportedModulesAccessedInPrepareScript = access.ExportedModules
	transformer.LastPrepareScriptExecutionTime = e.Now()
	transformer.PrepareScriptNeedsChangeTracking = false

	node.Transformer = transformer
	node.OldInputArtifacts = toFileResources(compatibleInputs)
	node.OldExplicitlyDependsOn = toFileResources(explicitlyDependsOn)
	node.OldAuxiliaryInputs = toFileResources(auxiliaryInputs)
	node.LastApplicationTime = e.Now()
	node.NeedsToConsiderChangedInputs = false

	node.Children = nil
	for _, a := range compatibleInputs {
		node.AddChild(a)
	}
	for _, a := range explicitlyDependsOn {
		node.AddChild(a)
	}
	for _, a := range auxiliaryInputs {
		node.AddChild(a)
	}

	return true, nil
}

func firstOrNil(artifacts []*graph.Artifact) *graph.Artifact {
	if len(artifacts) == 0 {
		return nil
	}
	return artifacts[0]
}

// needsReapplication implements §4.6's disjunction (a)-(e), plus the
// no-declared-inputs special case and the buildOptions.changedFiles/
// filesToConsider overrides of §4.8.
func (e *Engine) needsReapplication(node *graph.RuleNode, rule *graph.Rule, project *graph.Project, compatibleInputs, explicitlyDependsOn, auxiliaryInputs []*graph.Artifact) bool {
	if rule.AlwaysRun {
		return true
	}
	if len(rule.Inputs) == 0 && len(rule.InputsFromDependencies) == 0 {
		return node.Transformer == nil || len(node.Transformer.Outputs) == 0 || node.Transformer.PrepareScriptNeedsChangeTracking
	}

	if e.anyForcedChanged(compatibleInputs) || e.anyForcedChanged(explicitlyDependsOn) || e.anyForcedChanged(auxiliaryInputs) {
		return true
	}

	if !sameArtifactSet(compatibleInputs, node.OldInputArtifacts) { // (a)
		return true
	}
	if !sameArtifactSet(explicitlyDependsOn, node.OldExplicitlyDependsOn) || e.anyNewerThan(explicitlyDependsOn, project, node.LastApplicationTime) { // (b)
		return true
	}
	if !sameArtifactSet(auxiliaryInputs, node.OldAuxiliaryInputs) || e.anyNewerThan(auxiliaryInputs, project, node.LastApplicationTime) { // (c)
		return true
	}
	if e.anyNewerThan(compatibleInputs, project, node.LastApplicationTime) { // (d)
		return true
	}
	if node.Transformer != nil && node.Transformer.PrepareScriptNeedsChangeTracking { // (e)
		return true
	}
	for _, a := range compatibleInputs { // §4.5: a scanner-discovered dependency went stale.
		if e.scannerChildrenStale(a, project, node.LastApplicationTime) {
			return true
		}
	}
	return false
}

func sameArtifactSet(current []*graph.Artifact, old []types.FileResource) bool {
	if len(current) != countLive(old) {
		return false
	}
	oldPaths := make(map[string]struct{}, len(old))
	for _, r := range old {
		if graph.IsRemovedArtifact(r) {
			continue
		}
		oldPaths[r.Path()] = struct{}{}
	}
	for _, a := range current {
		if _, ok := oldPaths[a.Path()]; !ok {
			return false
		}
	}
	return true
}

func countLive(old []types.FileResource) int {
	n := 0
	for _, r := range old {
		if !graph.IsRemovedArtifact(r) {
			n++
		}
	}
	return n
}

func (e *Engine) anyNewerThan(artifacts []*graph.Artifact, project *graph.Project, ref time.Time) bool {
	for _, a := range artifacts {
		if !e.considers(a.Path()) {
			continue
		}
		if ts, ok := e.timestamp(a, project); ok && ts.After(ref) {
			return true
		}
	}
	return false
}

// timestamp resolves res's modification time through its own cache first,
// falling back to e.Stat via project.Registry's lazy-cache-from-disk
// pattern (§4.2) when nothing is cached yet. A stat failure (e.g. the
// artifact doesn't exist on disk, as happens for a declared-but-never-
// built output) is treated as "no timestamp to compare", not an error:
// every other branch of needsReapplication still catches a real change.
func (e *Engine) timestamp(res types.FileResource, project *graph.Project) (time.Time, bool) {
	if ts, ok := res.Timestamp(); ok {
		return ts, true
	}
	if e.Stat == nil || project == nil || project.Registry == nil {
		return time.Time{}, false
	}
	ts, err := project.Registry.Timestamp(res, e.Stat)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (e *Engine) anyForcedChanged(artifacts []*graph.Artifact) bool {
	if len(e.ChangedFiles) == 0 {
		return false
	}
	for _, a := range artifacts {
		if _, ok := e.ChangedFiles[a.Path()]; ok {
			return true
		}
	}
	return false
}

// considers reports whether path is in scope for a live-stat staleness
// check: every path is in scope when FilesToConsider is empty, otherwise
// only the ones it names (buildOptions.filesToConsider, §4.8).
func (e *Engine) considers(path string) bool {
	if len(e.FilesToConsider) == 0 {
		return true
	}
	_, ok := e.FilesToConsider[path]
	return ok
}

// scannerChildrenStale reports whether any scanner-discovered child of
// artifact (I5's ChildrenAddedByScanner subset) has changed since ref,
// the check that makes a changed #include'd header actually trigger
// recompilation (§4.5) instead of only the rule's declared inputs.
func (e *Engine) scannerChildrenStale(artifact *graph.Artifact, project *graph.Project, ref time.Time) bool {
	if len(artifact.ChildrenAddedByScanner) == 0 {
		return false
	}
	for _, child := range artifact.Children {
		res, ok := child.(types.FileResource)
		if !ok {
			continue
		}
		if _, scanned := artifact.ChildrenAddedByScanner[res.Path()]; !scanned {
			continue
		}
		if len(e.ChangedFiles) > 0 {
			if _, forced := e.ChangedFiles[res.Path()]; forced {
				return true
			}
		}
		if !e.considers(res.Path()) {
			continue
		}
		if ts, ok := e.timestamp(res, project); ok && ts.After(ref) {
			return true
		}
	}
	return false
}

func toFileResources(artifacts []*graph.Artifact) []types.FileResource {
	out := make([]types.FileResource, len(artifacts))
	for i, a := range artifacts {
		out[i] = a
	}
	return out
}

// computeCompatibleInputs is rule.inputs ∪ rule.inputsFromDependencies,
// respecting excludedInputs, with dependency-owned artifacts drawn from
// product.Dependencies rather than product itself.
func computeCompatibleInputs(product *graph.Product, rule *graph.Rule) []*graph.Artifact {
	out := computeInputsForTags(product, rule.Inputs, rule.ExcludedInputs)
	seen := make(map[string]struct{}, len(out))
	for _, a := range out {
		seen[a.Path()] = struct{}{}
	}
	for _, dep := range product.Dependencies {
		for _, a := range computeInputsForTags(dep, rule.InputsFromDependencies, rule.ExcludedInputs) {
			if _, ok := seen[a.Path()]; ok {
				continue
			}
			seen[a.Path()] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

func computeInputsForTags(product *graph.Product, tags types.TagSet, excluded types.TagSet) []*graph.Artifact {
	seen := make(map[string]struct{})
	var out []*graph.Artifact
	for tag := range tags {
		if excluded.Contains(tag) {
			continue
		}
		for _, a := range product.ArtifactsWithTag(tag) {
			if _, ok := seen[a.Path()]; ok {
				continue
			}
			seen[a.Path()] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// sanitizeOutputPath resolves rawPath against buildDir, rejecting any
// path that escapes buildDir via "..".
func sanitizeOutputPath(buildDir, rawPath string) (string, error) {
	joined := filepath.Clean(filepath.Join(buildDir, rawPath))
	rel, err := filepath.Rel(buildDir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", kerrors.NewInternalError("output-path", "path "+rawPath+" escapes build directory "+buildDir, nil)
	}
	return joined, nil
}
