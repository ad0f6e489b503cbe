package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// dumpIndentWidth matches the original Qbs NodeTreeDumper's 4-space step.
const dumpIndentWidth = 4

// RootArtifacts returns the artifacts in p that nothing else in the
// product consumes — the top-level targets a node tree dump starts from.
func (p *Product) RootArtifacts() []*Artifact {
	var roots []*Artifact
	for _, a := range p.Artifacts {
		if len(a.Parents) == 0 {
			roots = append(roots, a)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Path() < roots[j].Path() })
	return roots
}

// DumpNodeTree writes an indented tree of every product's build graph
// nodes to w, supporting the CLI's `dump-nodes` operation. It mirrors the
// original Qbs NodeTreeDumper: depth-first from each product's root
// artifacts, one node per line, re-indenting on the way back up, and
// stopping at a node it has already printed for the current product so
// sharing doesn't cause an infinite walk.
func DumpNodeTree(w io.Writer, products []*Product) error {
	for _, p := range products {
		visited := make(map[GraphNode]bool)
		for _, root := range p.RootArtifacts() {
			if err := dumpNode(w, root, 0, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpNode(w io.Writer, n GraphNode, indent int, visited map[GraphNode]bool) error {
	if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", indent), n.Describe()); err != nil {
		return err
	}
	if visited[n] {
		return nil
	}
	visited[n] = true

	for _, child := range childrenOf(n) {
		if err := dumpNode(w, child, indent+dumpIndentWidth, visited); err != nil {
			return err
		}
	}
	return nil
}
