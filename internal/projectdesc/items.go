package projectdesc

import "github.com/kestrel-build/kestrel/internal/types"

// tagSet converts a KDL item's plain string tag list into a types.TagSet,
// the representation every *graph.Rule/*graph.Artifact field uses.
func tagSet(tags []string) types.TagSet {
	out := make([]types.FileTag, len(tags))
	for i, t := range tags {
		out[i] = types.FileTag(t)
	}
	return types.NewTagSet(out...)
}

// The Item structs below are the parser's intermediate representation:
// a literal transcription of the KDL document's Project/Product/Group/
// Module/Rule/Artifact nodes, free of any internal/graph concerns. parse.go
// builds these from the kdl-go document tree; resolve.go and multiplex.go
// turn them into a real *graph.Project. Splitting parse from resolve
// mirrors the teacher's own LoadKDL / applyTo two-step shape in
// internal/config/kdl_config.go.

// ProjectItem is the KDL document's single top-level `project` node.
type ProjectItem struct {
	Name     string
	Products []ProductItem
}

// ProductItem is one `product` node: a named build target, its source
// groups, the modules it depends on, and the rules that apply to it.
type ProductItem struct {
	Name         string
	Type         []string // e.g. "application", "staticlibrary"
	Groups       []GroupItem
	Modules      []ModuleItem
	Rules        []RuleItem
	Dependencies []string // names of other products this one depends on
}

// GroupItem is a `group` node: a set of source files, named by literal
// paths and/or doublestar glob patterns, tagged with one or more file
// tags (§3 "a named subset of a product's files").
type GroupItem struct {
	Name     string
	Files    []string // literal paths and doublestar patterns, relative to the project file's directory
	FileTags []string
}

// ModuleItem is a `module` node: a named bundle of properties a product
// pulls in (§3's module/property-propagation system, scoped down per
// SPEC_FULL.md to direct per-product property sets without a dependency
// graph of modules).
type ModuleItem struct {
	Name       string
	Properties map[string]string
}

// CommandItem is one entry in a rule's literal, ordered command list
// (§3's "NOT a general JS engine" evaluator): either a process command
// (Program set) or a registered script command (ScriptKey set).
type CommandItem struct {
	Program     string
	Arguments   []string
	Description string

	// ScriptKey names a closure pre-registered in a ScriptRegistry,
	// kestrel's escape hatch for logic beyond command-line templating.
	ScriptKey string
}

// ArtifactItem is one static output binding inside a `rule` node.
type ArtifactItem struct {
	FilePath      string // may contain {{base}}/{{dir}}/{{ext}} placeholders under multiplex
	FileTags      []string
	AlwaysUpdated bool
}

// RuleItem is a `rule` node: the declarative input/output contract plus
// its compiled-at-resolve-time command list.
type RuleItem struct {
	Name string

	Inputs                 []string
	InputsFromDependencies []string
	AuxiliaryInputs        []string
	ExcludedInputs         []string
	ExplicitlyDependsOn    []string
	OutputFileTags         []string

	Multiplex      bool
	RequiresInputs bool
	AlwaysRun      bool

	Commands  []CommandItem
	Artifacts []ArtifactItem

	// OutputArtifactsScriptKey, when set, makes this a dynamic rule: its
	// output artifacts are produced by a registered
	// script.OutputArtifactsFunc rather than the static Artifacts list.
	OutputArtifactsScriptKey string
}
