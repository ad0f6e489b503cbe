package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/types"
)

func TestRecordingPropertyMapTracksAccessedKeys(t *testing.T) {
	underlying := graph.NewPropertyMap(map[string]string{"cpp.cxxLanguageVersion": "c++20"})
	r := NewRecordingPropertyMap(underlying)

	v, ok := r.Get("cpp.cxxLanguageVersion")
	require.True(t, ok)
	require.Equal(t, "c++20", v)

	_, ok = r.Get("qbs.optimization")
	require.False(t, ok)

	access := r.Access()
	require.ElementsMatch(t, []string{"cpp.cxxLanguageVersion", "qbs.optimization"}, access.Properties)
}

func TestRecordingPropertyMapTracksPerArtifactAccess(t *testing.T) {
	r := NewRecordingPropertyMap(graph.NewPropertyMap(nil))
	props := graph.NewPropertyMap(map[string]string{"cpp.defines": "NDEBUG"})

	v, ok := r.GetFromArtifact("/src/a.cpp", "cpp.defines", props)
	require.True(t, ok)
	require.Equal(t, "NDEBUG", v)

	access := r.Access()
	require.Equal(t, []string{"cpp.defines"}, access.PropertiesFromArtifact["/src/a.cpp"])
}

func TestRecordingPropertyMapTracksSideChannels(t *testing.T) {
	r := NewRecordingPropertyMap(graph.NewPropertyMap(nil))
	r.NoteImportedFile("helpers.js")
	r.NoteDependency("libfoo")
	r.NoteArtifactsMapQuery("obj")
	r.NoteExportedModuleAccess("libfoo.includePaths")

	access := r.Access()
	require.Equal(t, []string{"helpers.js"}, access.ImportedFiles)
	require.Equal(t, []string{"libfoo"}, access.Deps)
	require.Equal(t, []string{"obj"}, access.ArtifactsMapTags)
	require.Equal(t, []string{"libfoo.includePaths"}, access.ExportedModules)
}

func TestEvaluatorEvaluatePrepareReturnsCommandsAndAccess(t *testing.T) {
	e := NewEvaluator()
	scope := e.NewScope(nil, nil, nil, nil, nil, nil, graph.NewPropertyMap(map[string]string{"cpp.compilerPath": "/usr/bin/c++"}))

	fn := func(s *Scope) ([]graph.CommandDescriptor, error) {
		compiler, _ := s.Properties.Get("cpp.compilerPath")
		return []graph.CommandDescriptor{{Kind: graph.ProcessCommandKind, Program: compiler}}, nil
	}

	commands, access, err := e.EvaluatePrepare(fn, scope)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	require.Equal(t, "/usr/bin/c++", commands[0].Program)
	require.Equal(t, []string{"cpp.compilerPath"}, access.Properties)
}

func TestEvaluatorEvaluatePrepareNilScriptIsNoop(t *testing.T) {
	e := NewEvaluator()
	scope := e.NewScope(nil, nil, nil, nil, nil, nil, graph.NewPropertyMap(nil))

	commands, access, err := e.EvaluatePrepare(nil, scope)
	require.NoError(t, err)
	require.Nil(t, commands)
	require.Empty(t, access.Properties)
}

func TestEvaluatorEvaluateOutputArtifacts(t *testing.T) {
	e := NewEvaluator()
	scope := e.NewScope(nil, nil, nil, nil, nil, nil, graph.NewPropertyMap(nil))

	fn := func(s *Scope) ([]OutputArtifactSpec, error) {
		return []OutputArtifactSpec{{FilePath: "out.moc", FileTags: types.NewTagSet("hpp")}}, nil
	}

	specs, _, err := e.EvaluateOutputArtifacts(fn, scope)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "out.moc", specs[0].FilePath)
}

func TestCheckSyntaxAcceptsValidScript(t *testing.T) {
	err := CheckSyntax("prepare", types.SourceLocation{FilePath: "rules.kdl"}, "var cmd = {};")
	require.NoError(t, err)
}

func TestCheckSyntaxRejectsInvalidScript(t *testing.T) {
	err := CheckSyntax("prepare", types.SourceLocation{FilePath: "rules.kdl"}, "function (")
	require.Error(t, err)
	var scriptErr *kerrors.ScriptEvaluationError
	require.True(t, errors.As(err, &scriptErr))
}

func TestCheckSyntaxAcceptsEmptySource(t *testing.T) {
	require.NoError(t, CheckSyntax("prepare", types.SourceLocation{}, ""))
}
