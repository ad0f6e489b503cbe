package projectdesc

import (
	"github.com/sblinch/kdl-go/document"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

// Parse reads a project description from content (KDL source) and
// returns its parsed ProjectItem, before any graph resolution happens.
// Grounded on the teacher's LoadKDL/parseKDL split in
// internal/config/kdl_config.go: parse the document, then walk its
// top-level nodes by name.
func Parse(content string) (ProjectItem, error) {
	doc, err := parseKDL(content)
	if err != nil {
		return ProjectItem{}, kerrors.NewCorruptError("project file", err)
	}

	for _, n := range doc.Nodes {
		if nodeName(n) == "project" {
			return parseProjectNode(n), nil
		}
	}
	return ProjectItem{}, kerrors.NewConfigurationError("project", "", []string{"project { ... }"}, nil)
}

func parseProjectNode(n *document.Node) ProjectItem {
	item := ProjectItem{}
	if name, ok := firstStringArg(n); ok {
		item.Name = name
	}
	for _, pn := range childrenNamed(n, "product") {
		item.Products = append(item.Products, parseProductNode(pn))
	}
	return item
}

func parseProductNode(n *document.Node) ProductItem {
	item := ProductItem{}
	if name, ok := firstStringArg(n); ok {
		item.Name = name
	}
	if typ, ok := propString(n, "type"); ok {
		item.Type = append(item.Type, typ)
	}
	item.Dependencies = propStrings(n, "depends")

	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "group":
			item.Groups = append(item.Groups, parseGroupNode(cn))
		case "module":
			item.Modules = append(item.Modules, parseModuleNode(cn))
		case "rule":
			item.Rules = append(item.Rules, parseRuleNode(cn))
		case "depends-on":
			if name, ok := firstStringArg(cn); ok {
				item.Dependencies = append(item.Dependencies, name)
			}
		}
	}
	return item
}

func parseGroupNode(n *document.Node) GroupItem {
	item := GroupItem{}
	if name, ok := firstStringArg(n); ok {
		item.Name = name
	}
	item.Files = propStrings(n, "files")
	item.FileTags = propStrings(n, "tags")
	return item
}

func parseModuleNode(n *document.Node) ModuleItem {
	item := ModuleItem{Properties: make(map[string]string)}
	if name, ok := firstStringArg(n); ok {
		item.Name = name
	}
	for _, pn := range childrenNamed(n, "property") {
		key, ok := firstStringArg(pn)
		if !ok {
			continue
		}
		value, _ := propString(pn, "value")
		item.Properties[key] = value
	}
	return item
}

func parseRuleNode(n *document.Node) RuleItem {
	item := RuleItem{}
	if name, ok := firstStringArg(n); ok {
		item.Name = name
	}
	item.Inputs = propStrings(n, "inputs")
	item.InputsFromDependencies = propStrings(n, "inputsFromDependencies")
	item.AuxiliaryInputs = propStrings(n, "auxiliaryInputs")
	item.ExcludedInputs = propStrings(n, "excludedInputs")
	item.ExplicitlyDependsOn = propStrings(n, "explicitlyDependsOn")
	item.OutputFileTags = propStrings(n, "outputs")
	if v, ok := propBool(n, "multiplex"); ok {
		item.Multiplex = v
	}
	if v, ok := propBool(n, "requiresInputs"); ok {
		item.RequiresInputs = v
	}
	if v, ok := propBool(n, "alwaysRun"); ok {
		item.AlwaysRun = v
	}
	if key, ok := propString(n, "outputArtifactsScript"); ok {
		item.OutputArtifactsScriptKey = key
	}

	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "artifact":
			item.Artifacts = append(item.Artifacts, parseArtifactNode(cn))
		case "command":
			item.Commands = append(item.Commands, parseCommandNode(cn))
		}
	}
	return item
}

func parseArtifactNode(n *document.Node) ArtifactItem {
	item := ArtifactItem{}
	if path, ok := propString(n, "path"); ok {
		item.FilePath = path
	} else if path, ok := firstStringArg(n); ok {
		item.FilePath = path
	}
	item.FileTags = propStrings(n, "tags")
	if v, ok := propBool(n, "alwaysUpdated"); ok {
		item.AlwaysUpdated = v
	}
	return item
}

func parseCommandNode(n *document.Node) CommandItem {
	item := CommandItem{}
	if key, ok := propString(n, "script"); ok {
		item.ScriptKey = key
		item.Description, _ = propString(n, "description")
		return item
	}
	if program, ok := propString(n, "program"); ok {
		item.Program = program
	} else if program, ok := firstStringArg(n); ok {
		item.Program = program
	}
	item.Arguments = propStrings(n, "arguments")
	item.Description, _ = propString(n, "description")
	return item
}
