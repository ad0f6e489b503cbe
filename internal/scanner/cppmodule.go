package scanner

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

// moduleQuery captures whole module/import declaration nodes rather than
// individual name fields: the exact field layout tree-sitter-cpp uses for
// C++20 modules is narrower surface area than the node types themselves,
// so the name is pulled back out of the matched text in Go instead.
const moduleQuery = `
(module_declaration) @module.decl
(import_declaration) @import.decl
`

// CppModule is the built-in C++ module scanner of §4.5: it parses a
// translation unit with tree-sitter-cpp and reports the module it
// provides (if any), whether that module is an interface unit, and the
// modules it imports.
type CppModule struct {
	parser *tree_sitter.Parser
	query  *tree_sitter.Query
}

var _ Scanner = (*CppModule)(nil)

// NewCppModule builds a module scanner with its own tree-sitter parser
// and compiled query, ready for repeated CollectDependencies calls.
func NewCppModule() (*CppModule, error) {
	parser := tree_sitter.NewParser()
	language := tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	if err := parser.SetLanguage(language); err != nil {
		return nil, err
	}
	query, queryErr := tree_sitter.NewQuery(language, moduleQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	return &CppModule{parser: parser, query: query}, nil
}

func (s *CppModule) ID() string { return "builtin.cpp.modules" }

func (s *CppModule) Key() string { return "cppmodule" }

// Recursive is false: a module import names a module, not a file this
// scanner can recurse into directly; module-to-file resolution happens
// once in the rule-application engine, not per scanned dependency.
func (s *CppModule) Recursive() bool { return false }

func (s *CppModule) CollectSearchPaths(artifact *graph.Artifact) []string { return nil }

// CollectDependencies only inspects files tagged "cpp" or "hpp"; every
// other file is skipped without invoking tree-sitter.
func (s *CppModule) CollectDependencies(file string, content []byte, fileTagsHint types.TagSet) (Result, error) {
	if !fileTagsHint.Contains("cpp") && !fileTagsHint.Contains("hpp") {
		return Result{}, nil
	}

	tree := s.parser.Parse(content, nil)
	if tree == nil {
		return Result{}, nil
	}
	defer tree.Close()

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(s.query, tree.RootNode(), content)
	captureNames := s.query.CaptureNames()

	var result Result
	for {
		match := matches.Next()
		if match == nil {
			break
		}

		for _, c := range match.Captures {
			text := string(content[c.Node.StartByte():c.Node.EndByte()])
			switch captureNames[c.Index] {
			case "module.decl":
				name, exported := parseModuleDeclText(text)
				if name != "" {
					result.ProvidesModule = name
					result.IsInterfaceModule = exported
				}
			case "import.decl":
				if name, _ := parseModuleDeclText(text); name != "" {
					result.RequiresModules = append(result.RequiresModules, name)
				}
			}
		}
	}

	return result, nil
}

// parseModuleDeclText extracts the module name from a raw `module name;`,
// `export module name;`, or `import name;` declaration's source text, and
// reports whether it carried a leading `export`.
func parseModuleDeclText(text string) (name string, exported bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "export") {
		exported = true
		trimmed = strings.TrimSpace(trimmed[len("export"):])
	}
	for _, keyword := range []string{"module", "import"} {
		if strings.HasPrefix(trimmed, keyword) {
			trimmed = strings.TrimSpace(trimmed[len(keyword):])
			break
		}
	}
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.Trim(trimmed, "\"<>")
	return trimmed, exported
}

// AreModulePropertiesCompatible always returns true: the module scanner's
// findings depend only on file content, never on module properties.
func (s *CppModule) AreModulePropertiesCompatible(a, b *graph.PropertyMap) bool { return true }
