// Package graph implements the build-graph data model of §3: artifact and
// rule nodes, transformers, the declarative Rule descriptor, and the
// Product/Project containers that own them, together with the structural
// invariants I1-I6. It is the in-memory shape the rule-application engine
// (internal/apply), scheduler (internal/scheduler), and persistence layer
// (internal/persistence) all operate on.
package graph

import (
	"path/filepath"
	"time"

	"github.com/kestrel-build/kestrel/internal/types"
)

// Artifact is the concrete FileResource variant of §3 that participates in
// the build graph proper: a SourceFile supplied by the project description,
// or a Generated artifact produced by exactly one Transformer.
type Artifact struct {
	path  string
	ts    time.Time
	hasTS bool

	// Product is a back-reference only (§3 "weak references on product
	// inside nodes break the node->product->nodes cycle"); Product never
	// holds Go's only strong reference to this artifact's memory, the
	// owning Product.Artifacts map does.
	Product *Product

	ArtifactType types.ArtifactKind
	FileTags     types.TagSet
	Properties   *PropertyMap

	// Transformer is non-nil iff ArtifactType == Generated (I1).
	Transformer *Transformer

	// FileDependencies holds external files (scanner results) this
	// artifact references, keyed by absolute path.
	FileDependencies map[string]types.FileResource

	// ChildrenAddedByScanner is the subset of Children contributed by a
	// dependency scanner rather than the rule's declared inputs (I5).
	ChildrenAddedByScanner map[string]struct{}

	AlwaysUpdated          bool
	OldDataPossiblyPresent bool

	// Children/Parents hold the bipartite DAG edges (I2): for a generated
	// artifact, Children are the artifacts/file-dependencies/rule-nodes
	// its transformer consumes, Parents are the nodes that list it as a
	// child: generated artifacts built from it (WireTransformer) and rule
	// nodes that consume it as an input.
	Children []GraphNode
	Parents  []GraphNode
}

// NewSourceArtifact creates a SourceFile artifact at path.
func NewSourceArtifact(path string) *Artifact {
	return &Artifact{
		path:                   path,
		ArtifactType:           types.SourceFile,
		FileTags:               types.NewTagSet(),
		FileDependencies:       make(map[string]types.FileResource),
		ChildrenAddedByScanner: make(map[string]struct{}),
	}
}

// NewGeneratedArtifact creates a Generated artifact at path, owned by
// transformer. The caller is responsible for also adding a to
// transformer.Outputs (I1).
func NewGeneratedArtifact(path string, transformer *Transformer) *Artifact {
	return &Artifact{
		path:                   path,
		ArtifactType:           types.Generated,
		Transformer:            transformer,
		FileTags:               types.NewTagSet(),
		FileDependencies:       make(map[string]types.FileResource),
		ChildrenAddedByScanner: make(map[string]struct{}),
	}
}

func (a *Artifact) Path() string                 { return a.path }
func (a *Artifact) Kind() types.FileResourceKind { return types.ArtifactResource }
func (a *Artifact) Timestamp() (time.Time, bool) { return a.ts, a.hasTS }
func (a *Artifact) SetTimestamp(t time.Time)     { a.ts = t; a.hasTS = true }
func (a *Artifact) ClearTimestamp()              { a.hasTS = false }
func (a *Artifact) Describe() string             { return filepath.Base(a.path) }

// IsGenerated reports whether this artifact is produced by a rule. The
// file resource registry (internal/registry) type-asserts for this to
// enforce I3 across products.
func (a *Artifact) IsGenerated() bool { return a.ArtifactType == types.Generated }

// AddChild records child as a DAG child of a, maintaining I2 by also
// adding a to child's Parents.
func (a *Artifact) AddChild(child GraphNode) {
	if containsNode(a.Children, child) {
		return
	}
	a.Children = append(a.Children, child)
	addParentBackref(child, a)
}

// AddScannerChild is AddChild plus marking child as scanner-contributed
// (I5: ChildrenAddedByScanner subset of Children). child must be a file
// resource (*Artifact or *FileDependency); rule nodes are never scanner
// discoveries.
func (a *Artifact) AddScannerChild(child types.FileResource) {
	node, ok := child.(GraphNode)
	if !ok {
		return
	}
	a.AddChild(node)
	a.ChildrenAddedByScanner[child.Path()] = struct{}{}
}

func containsNode(nodes []GraphNode, target GraphNode) bool {
	for _, n := range nodes {
		if n == target {
			return true
		}
	}
	return false
}

func addParentBackref(node GraphNode, parent GraphNode) {
	switch r := node.(type) {
	case *Artifact:
		if !containsNode(r.Parents, parent) {
			r.Parents = append(r.Parents, parent)
		}
	case *FileDependency:
		if !containsNode(r.Parents, parent) {
			r.Parents = append(r.Parents, parent)
		}
	}
}

// FileDependency is the passive file-resource variant of §3: an external
// file a scanner discovered (e.g. a system header), never produced by a
// rule and owned by the Project rather than any one Product.
type FileDependency struct {
	path  string
	ts    time.Time
	hasTS bool

	Parents []GraphNode
}

// NewFileDependency creates a FileDependency at path.
func NewFileDependency(path string) *FileDependency {
	return &FileDependency{path: path}
}

func (d *FileDependency) Path() string                 { return d.path }
func (d *FileDependency) Kind() types.FileResourceKind { return types.FileDependencyResource }
func (d *FileDependency) Timestamp() (time.Time, bool) { return d.ts, d.hasTS }
func (d *FileDependency) SetTimestamp(t time.Time)     { d.ts = t; d.hasTS = true }
func (d *FileDependency) ClearTimestamp()              { d.hasTS = false }
func (d *FileDependency) Describe() string             { return filepath.Base(d.path) }

// IsGenerated is always false; FileDependency never participates in I3's
// generated-artifact conflict check.
func (d *FileDependency) IsGenerated() bool { return false }

var (
	_ types.FileResource = (*Artifact)(nil)
	_ types.FileResource = (*FileDependency)(nil)
	_ GraphNode          = (*Artifact)(nil)
	_ GraphNode          = (*FileDependency)(nil)
)
