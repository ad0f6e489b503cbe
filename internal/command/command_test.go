package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/script"
)

type fakeHost struct {
	lastProgram string
	lastArgs    []string
	lastDir     string
	lastEnv     []string
	result      ProcessResult
	err         error
}

func (f *fakeHost) Run(ctx context.Context, program string, args []string, workingDir string, env []string) (ProcessResult, error) {
	f.lastProgram = program
	f.lastArgs = args
	f.lastDir = workingDir
	f.lastEnv = env
	return f.result, f.err
}

func TestProcessExecutorMergesEnvironmentWithOverridesWinning(t *testing.T) {
	host := &fakeHost{}
	exec := NewProcessExecutor(host)

	_, err := exec.Run(context.Background(), "cc", []string{"-c", "main.c"}, "/build",
		map[string]string{"PATH": "/usr/bin", "CC": "gcc"},
		map[string]string{"CC": "clang"})
	require.NoError(t, err)
	require.Equal(t, "cc", host.lastProgram)
	require.Equal(t, "/build", host.lastDir)
	require.Contains(t, host.lastEnv, "CC=clang")
	require.Contains(t, host.lastEnv, "PATH=/usr/bin")
}

func TestProcessExecutorPropagatesHostError(t *testing.T) {
	host := &fakeHost{err: errors.New("spawn failed")}
	exec := NewProcessExecutor(host)
	_, err := exec.Run(context.Background(), "cc", nil, "/build", nil, nil)
	require.Error(t, err)
}

func TestScriptExecutorRunsSerializedAndRecordsAccess(t *testing.T) {
	se := NewScriptExecutor()
	props := graph.NewPropertyMap(map[string]string{"cxxFlags": "-O2"})
	scope := se.Evaluator.NewScope(nil, nil, nil, nil, nil, nil, props)

	fn := ScriptCommandFunc(func(s *script.Scope) error {
		s.Properties.Get("cxxFlags")
		return nil
	})

	access, err := se.Run(fn, scope)
	require.NoError(t, err)
	require.Contains(t, access.Properties, "cxxFlags")
}

func TestScriptExecutorNilFuncIsNoop(t *testing.T) {
	se := NewScriptExecutor()
	scope := se.Evaluator.NewScope(nil, nil, nil, nil, nil, nil, graph.NewPropertyMap(nil))
	access, err := se.Run(nil, scope)
	require.NoError(t, err)
	require.Empty(t, access.Properties)
}

func TestRunnerExecutesProcessCommandsInOrder(t *testing.T) {
	host := &fakeHost{result: ProcessResult{ExitCode: 0}}
	runner := NewRunner(NewProcessExecutor(host), NewScriptExecutor(), func() time.Time { return time.Unix(42, 0) })

	transformer := graph.NewTransformer(&graph.Rule{Name: "cxx"})
	transformer.Commands = []graph.CommandDescriptor{
		{Kind: graph.ProcessCommandKind, Program: "cc", Arguments: []string{"-c", "main.c"}},
	}

	err := runner.Run(context.Background(), transformer, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "cc", host.lastProgram)
	require.Equal(t, time.Unix(42, 0), transformer.LastCommandExecutionTime)
	require.False(t, transformer.CommandsNeedChangeTracking)
}

func TestRunnerFailsOnNonZeroExitCode(t *testing.T) {
	host := &fakeHost{result: ProcessResult{ExitCode: 1}}
	runner := NewRunner(NewProcessExecutor(host), NewScriptExecutor(), time.Now)

	transformer := graph.NewTransformer(&graph.Rule{Name: "cxx"})
	transformer.Commands = []graph.CommandDescriptor{{Kind: graph.ProcessCommandKind, Program: "cc"}}

	err := runner.Run(context.Background(), transformer, nil, nil)
	require.Error(t, err)
}

func TestRunnerSkipsNonIgnoreDryRunCommandsInDryRunMode(t *testing.T) {
	host := &fakeHost{result: ProcessResult{ExitCode: 1}}
	runner := NewRunner(NewProcessExecutor(host), NewScriptExecutor(), time.Now)
	runner.DryRun = true

	transformer := graph.NewTransformer(&graph.Rule{Name: "cxx"})
	transformer.Commands = []graph.CommandDescriptor{{Kind: graph.ProcessCommandKind, Program: "cc"}}

	err := runner.Run(context.Background(), transformer, nil, nil)
	require.NoError(t, err)
	require.Empty(t, host.lastProgram)
	require.True(t, transformer.LastCommandExecutionTime.IsZero())
}

func TestRunnerRunsIgnoreDryRunCommandsEvenInDryRunMode(t *testing.T) {
	host := &fakeHost{result: ProcessResult{ExitCode: 0}}
	runner := NewRunner(NewProcessExecutor(host), NewScriptExecutor(), time.Now)
	runner.DryRun = true

	transformer := graph.NewTransformer(&graph.Rule{Name: "stamp"})
	transformer.Commands = []graph.CommandDescriptor{{Kind: graph.ProcessCommandKind, Program: "touch", IgnoreDryRun: true}}

	err := runner.Run(context.Background(), transformer, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "touch", host.lastProgram)
}

func TestRunnerRecordsScriptCommandAccessIntoTransformer(t *testing.T) {
	host := &fakeHost{}
	se := NewScriptExecutor()
	runner := NewRunner(NewProcessExecutor(host), se, func() time.Time { return time.Unix(7, 0) })

	transformer := graph.NewTransformer(&graph.Rule{Name: "gen"})
	transformer.Commands = []graph.CommandDescriptor{{Kind: graph.ScriptCommandKind, ScriptSource: "doStuff"}}

	props := graph.NewPropertyMap(map[string]string{"outDir": "/build"})
	scope := se.Evaluator.NewScope(nil, nil, nil, nil, nil, nil, props)

	scripts := map[int]ScriptCommandFunc{
		0: func(s *script.Scope) error {
			s.Properties.Get("outDir")
			return nil
		},
	}

	err := runner.Run(context.Background(), transformer, scope, scripts)
	require.NoError(t, err)
	require.Contains(t, transformer.PropertiesRequestedInCommands, "outDir")
}

func TestRunnerHaltsOnCancelledContext(t *testing.T) {
	host := &fakeHost{}
	runner := NewRunner(NewProcessExecutor(host), NewScriptExecutor(), time.Now)

	transformer := graph.NewTransformer(&graph.Rule{Name: "cxx"})
	transformer.Commands = []graph.CommandDescriptor{{Kind: graph.ProcessCommandKind, Program: "cc"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.Run(ctx, transformer, nil, nil)
	require.Error(t, err)
	require.Empty(t, host.lastProgram)
}
