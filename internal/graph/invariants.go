package graph

import (
	"fmt"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

// CheckAcyclic walks every artifact and rule node reachable from roots
// and reports a CycleError (I4) if the bipartite Children graph contains
// a cycle. roots is normally every source artifact and every rule node
// with no declared inputs in a product.
func CheckAcyclic(roots []GraphNode) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[GraphNode]int)
	var stack []CycleParticipantInfo

	var visit func(n GraphNode) error
	visit = func(n GraphNode) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			participants := make([]kerrors.CycleParticipant, 0, len(stack)+1)
			for _, s := range stack {
				participants = append(participants, kerrors.CycleParticipant{Description: s.Description})
			}
			participants = append(participants, kerrors.CycleParticipant{Description: n.Describe()})
			return kerrors.NewCycleError(participants)
		}

		state[n] = visiting
		stack = append(stack, CycleParticipantInfo{Description: n.Describe()})
		defer func() { stack = stack[:len(stack)-1] }()

		children := childrenOf(n)
		for _, c := range children {
			if err := visit(c); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return err
		}
	}
	return nil
}

// ProductRoots returns the root set CheckAcyclic walks for product: every
// source artifact, plus every rule node declaring no inputs of its own
// (ruleorder's rule-level cycle check runs before any rule node exists, so
// this is the only point a cycle introduced by a scanner-discovered or
// dynamically-produced edge can actually surface).
func ProductRoots(product *Product) []GraphNode {
	var roots []GraphNode
	for _, a := range product.Artifacts {
		if !a.IsGenerated() {
			roots = append(roots, a)
		}
	}
	for _, n := range product.RuleNodes {
		if n.Rule != nil && len(n.Rule.Inputs) == 0 && len(n.Rule.InputsFromDependencies) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// CycleParticipantInfo names one node visited on the current DFS path,
// used only to build a CycleError's participant list.
type CycleParticipantInfo struct {
	Description string
}

func childrenOf(n GraphNode) []GraphNode {
	switch v := n.(type) {
	case *Artifact:
		return v.Children
	case *FileDependency:
		return nil
	case *RuleNode:
		return v.Children
	default:
		return nil
	}
}

// CheckChildrenAddedByScannerSubset verifies I5 for a: every path in
// ChildrenAddedByScanner must also be a Children entry.
func CheckChildrenAddedByScannerSubset(a *Artifact) error {
	childPaths := make(map[string]struct{}, len(a.Children))
	for _, c := range a.Children {
		if fr, ok := c.(interface{ Path() string }); ok {
			childPaths[fr.Path()] = struct{}{}
		}
	}
	for path := range a.ChildrenAddedByScanner {
		if _, ok := childPaths[path]; !ok {
			return kerrors.NewInternalError("I5", fmt.Sprintf("artifact %s: scanner child %s not in children", a.Path(), path), nil)
		}
	}
	return nil
}
