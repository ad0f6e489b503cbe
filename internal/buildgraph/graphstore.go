package buildgraph

import (
	"bytes"
	"encoding/gob"
	"time"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/persistence"
	"github.com/kestrel-build/kestrel/internal/types"
)

// StoredFileRef is one entry of a rule node's old-input/old-dependency
// set (§3's "possibly containing a sentinel removed marker"): a path plus
// whether it stood for a graph.RemovedArtifact sentinel rather than a
// live artifact.
type StoredFileRef struct {
	Path    string
	Removed bool
}

// StoredArtifact is a generated artifact's plain-data shape: enough to
// recreate it as a *graph.Artifact on the next process's freshly
// resolved product, without carrying any pointer into the old process's
// memory.
type StoredArtifact struct {
	Path          string
	FileTags      []types.FileTag
	AlwaysUpdated bool
}

// StoredTransformer is a *graph.Transformer's plain-data shape: the rule
// it came from (by name, resolved back to a live *graph.Rule by the
// reattach step), its input/output paths, its commands, and the
// fingerprint/timestamp fields §4.6 and §4.7 consult to decide whether a
// rerun is needed. Script-closure fields (PrepareScript, OutputArtifacts)
// are never stored: those are recompiled fresh from the project file on
// every resolve, the same way the live scripts themselves are.
type StoredTransformer struct {
	RuleName                 string
	InputPaths               []string
	ExplicitlyDependsOnPaths []string
	Outputs                  []StoredArtifact

	Commands []graph.CommandDescriptor

	LastCommandExecutionTime      time.Time
	LastPrepareScriptExecutionTime time.Time

	PrepareScriptNeedsChangeTracking bool
	CommandsNeedChangeTracking       bool
	MarkedForRerun                   bool
	AlwaysRun                        bool
}

// StoredRuleNode is one *graph.RuleNode's plain-data shape, keyed back to
// its live counterpart by (RuleName, Ordinal): Ordinal is the node's
// index among same-named rule nodes in product.RuleNodes, the same
// deterministic sorted-path order internal/projectdesc's multiplex
// expansion and internal/ruleorder.Instantiate both already produce, so
// it is stable across processes as long as the product's declared rules
// and matching artifacts don't change.
type StoredRuleNode struct {
	RuleName string
	Ordinal  int

	OldInputArtifacts      []StoredFileRef
	OldExplicitlyDependsOn []StoredFileRef
	OldAuxiliaryInputs     []StoredFileRef

	LastApplicationTime          time.Time
	NeedsToConsiderChangedInputs bool

	HasTransformer bool
	Transformer    StoredTransformer
}

// StoredProductGraph is one product's persisted rule-node set, each
// entry gob-encoded and interned into the pool under TagRuleNode
// individually (so the pool's per-type tags actually classify distinct
// objects, per §4.1, rather than one opaque blob holding everything).
type StoredProductGraph struct {
	Name        string
	RuleNodeIDs []types.ObjectID
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, kerrors.NewInternalError("buildgraph: value is gob-encodable", err.Error(), nil)
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return kerrors.NewCorruptError("<persist>", err)
	}
	return nil
}

// ruleName returns r's name, or "" for a nil rule (a rule node can be
// left without a Rule only in tests; production rule nodes always have
// one).
func ruleName(r *graph.Rule) string {
	if r == nil {
		return ""
	}
	return r.Name
}

// ruleNodeOrdinals assigns each node in nodes its index among the nodes
// sharing its rule's name, in nodes' own order.
func ruleNodeOrdinals(nodes []*graph.RuleNode) map[*graph.RuleNode]int {
	counts := make(map[string]int, len(nodes))
	ordinals := make(map[*graph.RuleNode]int, len(nodes))
	for _, n := range nodes {
		name := ruleName(n.Rule)
		ordinals[n] = counts[name]
		counts[name]++
	}
	return ordinals
}

func artifactPaths(artifacts []*graph.Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Path()
	}
	return out
}

func toStoredRefs(refs []types.FileResource) []StoredFileRef {
	out := make([]StoredFileRef, len(refs))
	for i, r := range refs {
		out[i] = StoredFileRef{Path: r.Path(), Removed: graph.IsRemovedArtifact(r)}
	}
	return out
}

// SaveProductGraph interns each of product's rule nodes as one pool object
// (TagRuleNode) that carries its transformer and the transformer's output
// artifacts inline, then interns the product-level index of those IDs
// (TagProduct) and returns its ObjectID, the value a
// Snapshot.ProductGraphs entry points at.
func SaveProductGraph(pool *persistence.Pool, product *graph.Product) (types.ObjectID, error) {
	ordinals := ruleNodeOrdinals(product.RuleNodes)

	ruleNodeIDs := make([]types.ObjectID, 0, len(product.RuleNodes))
	for _, n := range product.RuleNodes {
		id, err := saveRuleNode(pool, n, ordinals[n])
		if err != nil {
			return 0, err
		}
		ruleNodeIDs = append(ruleNodeIDs, id)
	}

	data, err := encodeValue(StoredProductGraph{Name: product.Name, RuleNodeIDs: ruleNodeIDs})
	if err != nil {
		return 0, err
	}
	return pool.Intern(persistence.TagProduct, data), nil
}

func saveRuleNode(pool *persistence.Pool, n *graph.RuleNode, ordinal int) (types.ObjectID, error) {
	stored := StoredRuleNode{
		RuleName:                     ruleName(n.Rule),
		Ordinal:                      ordinal,
		OldInputArtifacts:            toStoredRefs(n.OldInputArtifacts),
		OldExplicitlyDependsOn:       toStoredRefs(n.OldExplicitlyDependsOn),
		OldAuxiliaryInputs:           toStoredRefs(n.OldAuxiliaryInputs),
		LastApplicationTime:          n.LastApplicationTime,
		NeedsToConsiderChangedInputs: n.NeedsToConsiderChangedInputs,
	}
	if n.Transformer != nil {
		st, err := buildStoredTransformer(n.Transformer)
		if err != nil {
			return 0, err
		}
		stored.HasTransformer = true
		stored.Transformer = st
	}

	data, err := encodeValue(stored)
	if err != nil {
		return 0, err
	}
	return pool.Intern(persistence.TagRuleNode, data), nil
}

func buildStoredTransformer(t *graph.Transformer) (StoredTransformer, error) {
	outputs := make([]StoredArtifact, len(t.Outputs))
	for i, out := range t.Outputs {
		outputs[i] = StoredArtifact{
			Path:          out.Path(),
			FileTags:      out.FileTags.Sorted(),
			AlwaysUpdated: out.AlwaysUpdated,
		}
	}
	return StoredTransformer{
		RuleName:                         ruleName(t.Rule),
		InputPaths:                       artifactPaths(t.Inputs),
		ExplicitlyDependsOnPaths:         artifactPaths(t.ExplicitlyDependsOn),
		Outputs:                          outputs,
		Commands:                         t.Commands,
		LastCommandExecutionTime:         t.LastCommandExecutionTime,
		LastPrepareScriptExecutionTime:   t.LastPrepareScriptExecutionTime,
		PrepareScriptNeedsChangeTracking: t.PrepareScriptNeedsChangeTracking,
		CommandsNeedChangeTracking:       t.CommandsNeedChangeTracking,
		MarkedForRerun:                   t.MarkedForRerun,
		AlwaysRun:                        t.AlwaysRun,
	}, nil
}

// LoadProductGraph decodes the StoredProductGraph at id and every
// StoredRuleNode it references.
func LoadProductGraph(pool *persistence.Pool, id types.ObjectID) (StoredProductGraph, []StoredRuleNode, error) {
	data, _, err := pool.Get(id)
	if err != nil {
		return StoredProductGraph{}, nil, err
	}
	var stored StoredProductGraph
	if err := decodeValue(data, &stored); err != nil {
		return StoredProductGraph{}, nil, err
	}

	nodes := make([]StoredRuleNode, 0, len(stored.RuleNodeIDs))
	for _, nodeID := range stored.RuleNodeIDs {
		nodeData, _, err := pool.Get(nodeID)
		if err != nil {
			return StoredProductGraph{}, nil, err
		}
		var n StoredRuleNode
		if err := decodeValue(nodeData, &n); err != nil {
			return StoredProductGraph{}, nil, err
		}
		nodes = append(nodes, n)
	}
	return stored, nodes, nil
}

// Reattach restores a freshly resolved product's rule nodes to the state
// they had at the end of the previous build: each live node is matched to
// its StoredRuleNode by (RuleName, Ordinal), its old-input/old-dependency
// sets and LastApplicationTime are restored (missing artifacts become
// graph.RemovedArtifact sentinels), and, if it had a transformer, that
// transformer's output artifacts are recreated and wired in so a rule the
// engine decides not to reapply still leaves its outputs visible to
// downstream rules' ArtifactsWithTag lookups (internal/apply otherwise
// only ever creates an output when it actually reapplies the rule that
// produces it).
func Reattach(product *graph.Product, nodes []StoredRuleNode) error {
	ordinals := ruleNodeOrdinals(product.RuleNodes)
	live := make(map[string]*graph.RuleNode, len(product.RuleNodes))
	for n, ord := range ordinals {
		live[nodeKey(ruleName(n.Rule), ord)] = n
	}

	for _, stored := range nodes {
		node, ok := live[nodeKey(stored.RuleName, stored.Ordinal)]
		if !ok {
			continue // the rule was removed or renamed since the last build
		}

		node.OldInputArtifacts = resolveRefs(product, stored.OldInputArtifacts)
		node.OldExplicitlyDependsOn = resolveRefs(product, stored.OldExplicitlyDependsOn)
		node.OldAuxiliaryInputs = resolveRefs(product, stored.OldAuxiliaryInputs)
		node.LastApplicationTime = stored.LastApplicationTime
		node.NeedsToConsiderChangedInputs = stored.NeedsToConsiderChangedInputs

		if !stored.HasTransformer {
			continue
		}
		transformer, err := reattachTransformer(product, node, stored.Transformer)
		if err != nil {
			return err
		}
		node.Transformer = transformer
	}
	return nil
}

func nodeKey(ruleName string, ordinal int) string {
	return ruleName + "\x00" + itoa(ordinal)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func resolveRefs(product *graph.Product, refs []StoredFileRef) []types.FileResource {
	out := make([]types.FileResource, len(refs))
	for i, ref := range refs {
		if ref.Removed {
			out[i] = graph.RemovedArtifact(ref.Path)
			continue
		}
		if a, ok := product.Artifacts[ref.Path]; ok {
			out[i] = a
			continue
		}
		out[i] = graph.RemovedArtifact(ref.Path)
	}
	return out
}

func reattachTransformer(product *graph.Product, node *graph.RuleNode, stored StoredTransformer) (*graph.Transformer, error) {
	t := &graph.Transformer{
		Rule:                             node.Rule,
		Commands:                         stored.Commands,
		LastCommandExecutionTime:         stored.LastCommandExecutionTime,
		LastPrepareScriptExecutionTime:   stored.LastPrepareScriptExecutionTime,
		PrepareScriptNeedsChangeTracking: stored.PrepareScriptNeedsChangeTracking,
		CommandsNeedChangeTracking:       stored.CommandsNeedChangeTracking,
		MarkedForRerun:                   stored.MarkedForRerun,
		AlwaysRun:                        stored.AlwaysRun,
		PropertiesRequestedFromArtifactInPrepareScript: make(map[string][]string),
		PropertiesRequestedFromArtifactInCommands:      make(map[string][]string),
	}
	t.Inputs = lookupArtifacts(product, stored.InputPaths)
	t.ExplicitlyDependsOn = lookupArtifacts(product, stored.ExplicitlyDependsOnPaths)

	outputs := make([]*graph.Artifact, 0, len(stored.Outputs))
	for _, so := range stored.Outputs {
		out, ok := product.Artifacts[so.Path]
		if !ok {
			out = graph.NewGeneratedArtifact(so.Path, t)
			out.FileTags = types.NewTagSet(so.FileTags...)
			out.AlwaysUpdated = so.AlwaysUpdated
			if err := product.AddArtifact(out); err != nil {
				return nil, err
			}
		} else {
			out.Transformer = t
			product.RetagArtifact(out, types.NewTagSet(so.FileTags...))
			out.AlwaysUpdated = so.AlwaysUpdated
		}
		outputs = append(outputs, out)
	}
	t.Outputs = outputs
	graph.WireTransformer(t)
	return t, nil
}

func lookupArtifacts(product *graph.Product, paths []string) []*graph.Artifact {
	out := make([]*graph.Artifact, 0, len(paths))
	for _, p := range paths {
		if a, ok := product.Artifacts[p]; ok {
			out = append(out, a)
		}
	}
	return out
}
