package projectdesc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/command"
	"github.com/kestrel-build/kestrel/internal/config"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/scheduler"
	"github.com/kestrel-build/kestrel/internal/script"
)

const sampleProject = `
project "app" {
    product "app" type="application" {
        group "sources" files="*.cpp" tags="cpp"
        module "cxx" {
            property "std" value="c++17"
        }
        rule "compile" inputs="cpp" outputs="obj" multiplex=true {
            artifact path="{{base}}.o" tags="obj"
            command program="g++" arguments="-c,{{input}},-o,{{output}}"
        }
        rule "link" inputs="obj" outputs="application" {
            artifact path="app" tags="application"
            command program="g++" arguments="{{inputs}},-o,{{output}}"
        }
    }
}
`

func TestParseBuildsProjectItem(t *testing.T) {
	item, err := Parse(sampleProject)
	require.NoError(t, err)
	require.Equal(t, "app", item.Name)
	require.Len(t, item.Products, 1)

	product := item.Products[0]
	require.Equal(t, "app", product.Name)
	require.Equal(t, []string{"application"}, product.Type)
	require.Len(t, product.Groups, 1)
	require.Equal(t, []string{"*.cpp"}, product.Groups[0].Files)
	require.Equal(t, []string{"cpp"}, product.Groups[0].FileTags)
	require.Len(t, product.Modules, 1)
	require.Equal(t, "c++17", product.Modules[0].Properties["std"])
	require.Len(t, product.Rules, 2)

	compile := product.Rules[0]
	require.Equal(t, "compile", compile.Name)
	require.True(t, compile.Multiplex)
	require.Equal(t, []string{"cpp"}, compile.Inputs)
	require.Equal(t, []string{"obj"}, compile.OutputFileTags)
	require.Len(t, compile.Artifacts, 1)
	require.Equal(t, "{{base}}.o", compile.Artifacts[0].FilePath)
	require.Len(t, compile.Commands, 1)
	require.Equal(t, "g++", compile.Commands[0].Program)
	require.Equal(t, []string{"-c", "{{input}}", "-o", "{{output}}"}, compile.Commands[0].Arguments)
}

func TestParseRejectsMissingProjectNode(t *testing.T) {
	_, err := Parse(`product "app" {}`)
	require.Error(t, err)
}

func writeSources(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.cpp"), []byte("int main(){}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.cpp"), []byte("void f(){}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
}

func TestResolveMatchesGroupFilesAndCarriesProperties(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	item, err := Parse(sampleProject)
	require.NoError(t, err)

	resolved, err := Resolve(dir, item, nil)
	require.NoError(t, err)

	product := resolved.Project.Products["app"]
	require.NotNil(t, product)

	mainPath := filepath.Join(dir, "main.cpp")
	artifact, ok := product.Artifacts[mainPath]
	require.True(t, ok)
	require.True(t, artifact.FileTags.Contains("cpp"))
	std, ok := artifact.Properties.Get("std")
	require.True(t, ok)
	require.Equal(t, "c++17", std)

	_, ok = product.Artifacts[filepath.Join(dir, "notes.txt")]
	require.False(t, ok)
}

func TestResolveExpandsMultiplexRulePerMatchingInput(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	item, err := Parse(sampleProject)
	require.NoError(t, err)

	resolved, err := Resolve(dir, item, nil)
	require.NoError(t, err)

	product := resolved.Project.Products["app"]

	var compileOutputs []string
	linkNodes := 0
	for _, node := range product.RuleNodes {
		switch node.Rule.Name {
		case "compile":
			require.Len(t, node.Rule.Artifacts, 1)
			compileOutputs = append(compileOutputs, node.Rule.Artifacts[0].FilePath)
		case "link":
			linkNodes++
		}
	}
	require.ElementsMatch(t, []string{"main.o", "util.o"}, compileOutputs)
	require.Equal(t, 1, linkNodes)
}

func TestResolveRejectsUnknownProductDependency(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	src := `
project "app" {
    product "app" type="application" depends="missing" {
        group "sources" files="*.cpp" tags="cpp"
        rule "link" inputs="cpp" outputs="application" {
            artifact path="app" tags="application"
            command program="g++" arguments="{{inputs}},-o,{{output}}"
        }
    }
}
`
	item, err := Parse(src)
	require.NoError(t, err)

	_, err = Resolve(dir, item, nil)
	require.Error(t, err)
}

func TestResolveRejectsUnregisteredOutputArtifactsScript(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	src := `
project "app" {
    product "app" type="application" {
        group "sources" files="*.cpp" tags="cpp"
        rule "generate" inputs="cpp" outputs="generated" outputArtifactsScript="missing-key" {
        }
    }
}
`
	item, err := Parse(src)
	require.NoError(t, err)

	_, err = Resolve(dir, item, nil)
	require.Error(t, err)
}

func TestResolveWiresRegisteredOutputArtifactsScript(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	src := `
project "app" {
    product "app" type="application" {
        group "sources" files="*.cpp" tags="cpp"
        rule "generate" inputs="cpp" outputs="application" outputArtifactsScript="gen" {
        }
    }
}
`
	item, err := Parse(src)
	require.NoError(t, err)

	registry := NewScriptRegistry()
	called := false
	registry.RegisterOutputArtifacts("gen", func(scope *script.Scope) ([]script.OutputArtifactSpec, error) {
		called = true
		return nil, nil
	})

	resolved, err := Resolve(dir, item, registry)
	require.NoError(t, err)

	product := resolved.Project.Products["app"]
	require.Len(t, product.RuleNodes, 1)
	rule := product.RuleNodes[0].Rule
	require.True(t, rule.IsDynamic())

	compiled := resolved.Rules.Apply[rule]
	require.NotNil(t, compiled.OutputArtifacts)
	_, err = compiled.OutputArtifacts(&script.Scope{})
	require.NoError(t, err)
	require.True(t, called)
}

func TestCompilePrepareSubstitutesPlaceholders(t *testing.T) {
	items := []CommandItem{
		{Program: "g++", Arguments: []string{"-c", "{{input}}", "-o", "{{output}}"}, Description: "compile"},
	}

	prepare, scriptFuncs, err := compilePrepare(items, NewScriptRegistry())
	require.NoError(t, err)
	require.Empty(t, scriptFuncs)

	input := graph.NewSourceArtifact("/src/main.cpp")
	output := graph.NewGeneratedArtifact("/build/main.o", graph.NewTransformer(&graph.Rule{Name: "compile"}))
	scope := &script.Scope{Input: input, Outputs: []*graph.Artifact{output}}

	descriptors, err := prepare(scope)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, "g++", descriptors[0].Program)
	require.Equal(t, []string{"-c", "/src/main.cpp", "-o", "/build/main.o"}, descriptors[0].Arguments)
}

func TestCompilePrepareLooksUpRegisteredScriptCommands(t *testing.T) {
	registry := NewScriptRegistry()
	var scopeSeen *script.Scope
	registry.RegisterCommand("post", func(scope *script.Scope) error {
		scopeSeen = scope
		return nil
	})

	items := []CommandItem{
		{Program: "g++", Arguments: []string{"{{input}}"}},
		{ScriptKey: "post", Description: "post-process"},
	}

	prepare, scriptFuncs, err := compilePrepare(items, registry)
	require.NoError(t, err)
	require.Len(t, scriptFuncs, 1)

	scope := &script.Scope{Input: graph.NewSourceArtifact("/src/main.cpp")}
	descriptors, err := prepare(scope)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	require.Equal(t, graph.ScriptCommandKind, descriptors[1].Kind)

	require.NoError(t, scriptFuncs[1](scope))
	require.Same(t, scope, scopeSeen)
}

func TestCompilePrepareRejectsUnknownScriptKey(t *testing.T) {
	_, _, err := compilePrepare([]CommandItem{{ScriptKey: "nope"}}, NewScriptRegistry())
	require.Error(t, err)
}

func TestFSResolverEndToEndBuildsAndRunsCommands(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir)

	projectPath := filepath.Join(dir, "app.kdl")
	require.NoError(t, os.WriteFile(projectPath, []byte(sampleProject), 0o644))
	buildDir := filepath.Join(dir, "build")

	resolver := NewFSResolver(projectPath, nil)
	project, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	rules := resolver.Rules()

	var ran []string
	host := recordingHost{invoked: &ran}
	processExec := command.NewProcessExecutor(host)
	scriptExec := command.NewScriptExecutor()
	clock := func() time.Time { return time.Unix(0, 0) }
	runner := command.NewRunner(processExec, scriptExec, clock)

	orch := &facade.BuildOrchestrator{
		Apply:     apply.NewEngine(clock),
		Runner:    runner,
		Scheduler: scheduler.New(config.DefaultBuildOptions(), 4),
		BuildDir:  func(p *graph.Product) string { return buildDir },
	}

	f := facade.New(project, "")
	err = f.Build(context.Background(), orch, nil, rules, false, nil)
	require.NoError(t, err)

	product := project.Products["app"]
	_, ok := product.Artifacts[filepath.Join(buildDir, "main.o")]
	require.True(t, ok)
	_, ok = product.Artifacts[filepath.Join(buildDir, "util.o")]
	require.True(t, ok)
	_, ok = product.Artifacts[filepath.Join(buildDir, "app")]
	require.True(t, ok)

	require.Len(t, ran, 3)
	for _, program := range ran {
		require.Equal(t, "g++", program)
	}
}

type recordingHost struct {
	invoked *[]string
}

func (h recordingHost) Run(ctx context.Context, program string, args []string, workingDir string, env []string) (command.ProcessResult, error) {
	*h.invoked = append(*h.invoked, program)
	return command.ProcessResult{ExitCode: 0}, nil
}
