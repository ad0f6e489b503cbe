package graph

// GraphNode is the bipartite DAG element of §3/I4: either an *Artifact,
// a *FileDependency, or a *RuleNode. Children/Parents edges are typed in
// terms of this interface rather than types.FileResource because a rule
// node (which is not a file resource) sits in the same DAG.
type GraphNode interface {
	graphNode()
	// Describe returns a short human-readable label, used by the
	// dump-nodes tree dumper (dump.go) and error messages.
	Describe() string
}

func (a *Artifact) graphNode() {}
func (d *FileDependency) graphNode() {}
func (n *RuleNode) graphNode() {}
