package graph

import "github.com/kestrel-build/kestrel/internal/types"

// ScriptRef points at an evaluator source for one of a Rule's scripts.
// The actual evaluation contract lives in internal/script; graph only
// needs enough to identify and locate the script for error reporting.
type ScriptRef struct {
	Source   string
	Location types.SourceLocation
}

// IsZero reports whether the script reference is empty (no script set).
func (s ScriptRef) IsZero() bool { return s.Source == "" }

// ArtifactBinding is one statically-declared output of a static rule:
// a file path template plus the file tags and properties to attach
// (§3 "optional artifacts list (static rules only) with per-output
// bindings").
type ArtifactBinding struct {
	FilePath   string
	FileTags   types.TagSet
	AlwaysUpdated bool
}

// Rule is the declarative descriptor of §3: the input/output file-tag
// contract a rule node is instantiated from.
type Rule struct {
	Name string

	Inputs                 types.TagSet
	InputsFromDependencies types.TagSet
	AuxiliaryInputs        types.TagSet
	ExcludedInputs         types.TagSet
	ExplicitlyDependsOn    types.TagSet

	OutputFileTags types.TagSet

	Multiplex      bool
	RequiresInputs bool
	AlwaysRun      bool

	PrepareScript ScriptRef

	// OutputArtifactsScript is set only for dynamic rules (§3 "presence
	// marks the rule dynamic").
	OutputArtifactsScript ScriptRef

	// Artifacts is non-empty only for static rules: OutputArtifactsScript
	// and Artifacts are mutually exclusive.
	Artifacts []ArtifactBinding
}

// IsDynamic reports whether the rule computes its outputs via script
// rather than a static artifacts list.
func (r *Rule) IsDynamic() bool { return !r.OutputArtifactsScript.IsZero() }
