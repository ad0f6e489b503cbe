package projectdesc

import (
	"strings"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/command"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/script"
)

// ScriptRegistry is the escape hatch §3's evaluator description allows
// for: a rule author names a registered key (RuleItem.OutputArtifactsScriptKey /
// CommandItem.ScriptKey) instead of a literal command list when the
// declarative form can't express what the rule needs, and supplies the
// actual Go closure out of band, the same way internal/scanner.UserDefined
// takes hand-registered scanner functions rather than interpreting source.
type ScriptRegistry struct {
	outputArtifacts map[string]script.OutputArtifactsFunc
	commands        map[string]command.ScriptCommandFunc
}

// NewScriptRegistry returns an empty registry.
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{
		outputArtifacts: make(map[string]script.OutputArtifactsFunc),
		commands:        make(map[string]command.ScriptCommandFunc),
	}
}

// RegisterOutputArtifacts binds key to fn, so a dynamic rule declared
// with `outputArtifactsScript="key"` resolves to fn.
func (r *ScriptRegistry) RegisterOutputArtifacts(key string, fn script.OutputArtifactsFunc) {
	r.outputArtifacts[key] = fn
}

// RegisterCommand binds key to fn, so a `command script="key"` entry
// resolves to fn.
func (r *ScriptRegistry) RegisterCommand(key string, fn command.ScriptCommandFunc) {
	r.commands[key] = fn
}

func newCompiledRules() facade.CompiledRules {
	return facade.CompiledRules{
		Apply:    make(map[*graph.Rule]apply.CompiledRule),
		Commands: make(map[*graph.Rule]map[int]command.ScriptCommandFunc),
	}
}

// compilePrepare turns a rule's literal command list into a
// script.PrepareFunc closure plus the per-index script command bodies the
// command runner needs, matching internal/script's package doc, which
// names this package as the builder of those closures. There is no
// interpreter here, only
// {{input}}/{{output}}-style substitution against the evaluation Scope,
// resolved fresh on every call so the same compiled rule serves every
// rule node (including multiplexed clones) it is instantiated for.
func compilePrepare(items []CommandItem, registry *ScriptRegistry) (script.PrepareFunc, map[int]command.ScriptCommandFunc, error) {
	scriptFuncs := make(map[int]command.ScriptCommandFunc)
	for i, item := range items {
		if item.ScriptKey == "" {
			continue
		}
		fn, ok := registry.commands[item.ScriptKey]
		if !ok {
			return nil, nil, kerrors.NewConfigurationError("command script", item.ScriptKey, registeredCommandKeys(registry), nil)
		}
		scriptFuncs[i] = fn
	}

	items = append([]CommandItem(nil), items...)
	prepare := func(scope *script.Scope) ([]graph.CommandDescriptor, error) {
		descriptors := make([]graph.CommandDescriptor, 0, len(items))
		for _, item := range items {
			if item.ScriptKey != "" {
				descriptors = append(descriptors, graph.CommandDescriptor{
					Kind:        graph.ScriptCommandKind,
					Description: item.Description,
				})
				continue
			}
			descriptors = append(descriptors, graph.CommandDescriptor{
				Kind:        graph.ProcessCommandKind,
				Program:     substitute(item.Program, scope),
				Arguments:   substituteAll(item.Arguments, scope),
				Description: item.Description,
			})
		}
		return descriptors, nil
	}

	return prepare, scriptFuncs, nil
}

func registeredCommandKeys(r *ScriptRegistry) []string {
	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, k)
	}
	return out
}

// substituteAll applies substitute to every element of args.
func substituteAll(args []string, scope *script.Scope) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = substitute(a, scope)
	}
	return out
}

// substitute replaces the rule-evaluator's placeholders against scope:
// {{input}}/{{output}} resolve to the single current input/first output,
// {{inputs}}/{{outputs}} to every input/output path, space-joined.
func substitute(s string, scope *script.Scope) string {
	if scope == nil {
		return s
	}
	if scope.Input != nil {
		s = strings.ReplaceAll(s, "{{input}}", scope.Input.Path())
	}
	s = strings.ReplaceAll(s, "{{inputs}}", joinPaths(scope.Inputs))
	if len(scope.Outputs) > 0 {
		s = strings.ReplaceAll(s, "{{output}}", scope.Outputs[0].Path())
	}
	s = strings.ReplaceAll(s, "{{outputs}}", joinPaths(scope.Outputs))
	return s
}

func joinPaths(artifacts []*graph.Artifact) string {
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path()
	}
	return strings.Join(paths, " ")
}
