package graph

import (
	"time"

	"github.com/kestrel-build/kestrel/internal/types"
)

// removedArtifactSentinel marks a slot in a RuleNode's "old" sets that
// referred to an artifact which no longer exists (§3 "possibly containing
// a sentinel removed marker"), so the rule-application engine (internal/
// apply) can tell "no longer present" apart from "was never declared".
type removedArtifactSentinel struct{ path string }

func (r *removedArtifactSentinel) Path() string                { return r.path }
func (r *removedArtifactSentinel) Kind() types.FileResourceKind { return types.ArtifactResource }
func (r *removedArtifactSentinel) Timestamp() (time.Time, bool) { return time.Time{}, false }
func (r *removedArtifactSentinel) SetTimestamp(time.Time)       {}
func (r *removedArtifactSentinel) ClearTimestamp()              {}

// RemovedArtifact returns a sentinel standing in for an artifact that
// used to occupy a RuleNode's old-input/old-dependency set at path but
// has since been removed from the graph.
func RemovedArtifact(path string) types.FileResource {
	return &removedArtifactSentinel{path: path}
}

// IsRemovedArtifact reports whether res is a RemovedArtifact sentinel.
func IsRemovedArtifact(res types.FileResource) bool {
	_, ok := res.(*removedArtifactSentinel)
	return ok
}

// RuleNode is one instantiation of a Rule within a product (§3): the
// engine node the scheduler (internal/scheduler) drives and the rule-
// application engine (internal/apply) re-evaluates.
type RuleNode struct {
	// Product is a weak back-reference, matching Artifact.Product.
	Product *Product
	Rule    *Rule

	OldInputArtifacts      []types.FileResource
	OldExplicitlyDependsOn []types.FileResource
	OldAuxiliaryInputs     []types.FileResource

	LastApplicationTime          time.Time
	NeedsToConsiderChangedInputs bool

	// Transformer is set once the rule has been applied at least once.
	Transformer *Transformer

	// Children/Parents mirror Artifact's DAG edges: Children are the
	// artifacts this rule node consumes as input, Parents are the
	// artifacts it has produced (via Transformer.Outputs) that in turn
	// point back at it.
	Children []GraphNode
	Parents  []GraphNode
}

// NewRuleNode creates an unapplied rule node for rule within product.
func NewRuleNode(product *Product, rule *Rule) *RuleNode {
	return &RuleNode{Product: product, Rule: rule}
}

func (n *RuleNode) Describe() string {
	if n.Rule == nil {
		return "rule:<unknown>"
	}
	return "rule:" + n.Rule.Name
}

// AddChild records child as an input this rule node consumes, maintaining
// I2 by also registering the rule node as child's parent.
func (n *RuleNode) AddChild(child GraphNode) {
	if containsNode(n.Children, child) {
		return
	}
	n.Children = append(n.Children, child)
	addParentBackref(child, n)
}

var _ GraphNode = (*RuleNode)(nil)
