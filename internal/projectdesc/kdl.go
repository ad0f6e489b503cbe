package projectdesc

import (
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// The helpers below mirror the teacher's internal/config/kdl_config.go and
// internal/core/propagation_config.go node-walking helpers: kdl-go hands
// back a generic document.Node tree, and every KDL-reading package in the
// teacher re-derives the same handful of argument/property accessors
// rather than fighting the library for a typed decode.

func parseKDL(content string) (*document.Document, error) {
	return kdl.Parse(strings.NewReader(content))
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func childrenNamed(n *document.Node, name string) []*document.Node {
	if n == nil {
		return nil
	}
	var out []*document.Node
	for _, c := range n.Children {
		if nodeName(c) == name {
			out = append(out, c)
		}
	}
	return out
}

func stringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstStringArg(n *document.Node) (string, bool) {
	args := stringArgs(n)
	if len(args) == 0 {
		return "", false
	}
	return args[0], true
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if n == nil || len(n.Arguments) == 0 {
		return false, false
	}
	b, ok := n.Arguments[0].Value.(bool)
	return b, ok
}

func propString(n *document.Node, key string) (string, bool) {
	if n == nil || n.Properties == nil {
		return "", false
	}
	v, ok := n.Properties[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

func propBool(n *document.Node, key string) (bool, bool) {
	if n == nil || n.Properties == nil {
		return false, false
	}
	v, ok := n.Properties[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value.(bool)
	return b, ok
}

// propStrings reads a comma-separated property value, e.g. `tags="obj,debug"`.
func propStrings(n *document.Node, key string) []string {
	s, ok := propString(n, key)
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
