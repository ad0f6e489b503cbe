// Package script defines the contract the rule-application engine
// (internal/apply) evaluates prepare scripts, output-artifacts scripts,
// and artifact-binding templates through, plus the bookkeeping the
// change tracker (§4.7) needs: every property, imported file, dependency,
// artifacts-map query, and exported-module access a script performed.
//
// No JavaScript runtime is part of the example pack this module was
// built from, so scripts are represented as already-compiled Go
// closures (ScriptFunc) rather than interpreted from source at apply
// time. The project-file parser (internal/projectdesc) builds these
// closures from a rule's literal command list, or looks up Go closures
// registered by key; no script source is interpreted. This mirrors internal/scanner.UserDefined, which takes the same approach
// for scanner scripts.
package script

import (
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// OutputArtifactSpec is one element of a dynamic rule's
// outputArtifactsScript result (§4.6).
type OutputArtifactSpec struct {
	FilePath            string
	FileTags            types.TagSet
	AlwaysUpdated       bool
	ExplicitlyDependsOn []string
	PropertyOverrides   map[string]string
}

// Scope is the set of bindings a prepare script, output-artifacts script,
// or artifact-binding template is evaluated with (§4.6 "populated with
// project, product, inputs, input, explicitlyDependsOn").
type Scope struct {
	Project             *graph.Project
	Product             *graph.Product
	Inputs              []*graph.Artifact
	Input               *graph.Artifact
	ExplicitlyDependsOn []*graph.Artifact
	Outputs             []*graph.Artifact
	Properties          *RecordingPropertyMap
}

// Access is the full record of what a script evaluation touched, needed
// both to populate Transformer's *RequestedIn* fields and to drive §4.7's
// up-to-date check on the next build.
type Access struct {
	Properties             []string
	PropertiesFromArtifact map[string][]string
	ImportedFiles          []string
	Deps                   []string
	ArtifactsMapTags       []string
	ExportedModules        []string
}

// PrepareFunc is a compiled prepareScript: given scope, it returns the
// transformer's command list.
type PrepareFunc func(scope *Scope) ([]graph.CommandDescriptor, error)

// OutputArtifactsFunc is a compiled outputArtifactsScript (dynamic rules
// only): given scope, it returns the artifacts to create.
type OutputArtifactsFunc func(scope *Scope) ([]OutputArtifactSpec, error)

// ArtifactBindingFunc is a compiled static rule artifact binding's file
// path template plus property overrides.
type ArtifactBindingFunc func(scope *Scope) (filePath string, propertyOverrides map[string]string, err error)

// Evaluator runs a rule's compiled scripts and reports what they
// accessed. RecordingPropertyMap (recording.go) does the actual bookkeeping;
// Evaluator only needs to hand each script a fresh Scope wrapping one.
type Evaluator struct{}

// NewEvaluator returns a ready Evaluator. It carries no state of its own;
// all per-evaluation state lives in the Scope/RecordingPropertyMap passed
// to each call.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// NewScope builds a Scope around properties, wrapping it in a
// RecordingPropertyMap so every Get access during the script call is
// captured into the Access the Evaluate* methods return.
func (e *Evaluator) NewScope(project *graph.Project, product *graph.Product, inputs []*graph.Artifact, input *graph.Artifact, explicitlyDependsOn, outputs []*graph.Artifact, properties *graph.PropertyMap) *Scope {
	return &Scope{
		Project:             project,
		Product:             product,
		Inputs:              inputs,
		Input:               input,
		ExplicitlyDependsOn: explicitlyDependsOn,
		Outputs:             outputs,
		Properties:          NewRecordingPropertyMap(properties),
	}
}

// EvaluatePrepare runs fn and returns its commands alongside the access
// record accumulated on scope.Properties.
func (e *Evaluator) EvaluatePrepare(fn PrepareFunc, scope *Scope) ([]graph.CommandDescriptor, Access, error) {
	if fn == nil {
		return nil, scope.Properties.Access(), nil
	}
	commands, err := fn(scope)
	return commands, scope.Properties.Access(), err
}

// EvaluateOutputArtifacts runs fn and returns its specs alongside the
// access record accumulated on scope.Properties.
func (e *Evaluator) EvaluateOutputArtifacts(fn OutputArtifactsFunc, scope *Scope) ([]OutputArtifactSpec, Access, error) {
	if fn == nil {
		return nil, scope.Properties.Access(), nil
	}
	specs, err := fn(scope)
	return specs, scope.Properties.Access(), err
}

// EvaluateArtifactBinding runs fn and returns its path and overrides
// alongside the access record.
func (e *Evaluator) EvaluateArtifactBinding(fn ArtifactBindingFunc, scope *Scope) (string, map[string]string, Access, error) {
	if fn == nil {
		return "", nil, scope.Properties.Access(), nil
	}
	path, overrides, err := fn(scope)
	return path, overrides, scope.Properties.Access(), err
}
