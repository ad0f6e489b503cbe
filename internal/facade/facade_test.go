package facade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/clean"
	"github.com/kestrel-build/kestrel/internal/command"
	"github.com/kestrel-build/kestrel/internal/config"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/scheduler"
	"github.com/kestrel-build/kestrel/internal/types"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newCompileProject(t *testing.T) (*graph.Project, *graph.Product) {
	t.Helper()
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")

	src := graph.NewSourceArtifact("/src/main.cpp")
	src.FileTags = types.NewTagSet("cpp")
	require.NoError(t, p.AddArtifact(src))

	compile := &graph.Rule{
		Name:           "compile",
		Inputs:         types.NewTagSet("cpp"),
		OutputFileTags: types.NewTagSet("obj"),
		Artifacts:      []graph.ArtifactBinding{{FilePath: "main.o", FileTags: types.NewTagSet("obj")}},
	}
	link := &graph.Rule{
		Name:           "link",
		Inputs:         types.NewTagSet("obj"),
		OutputFileTags: types.NewTagSet("application"),
		Artifacts:      []graph.ArtifactBinding{{FilePath: "app", FileTags: types.NewTagSet("application")}},
	}
	p.AddRuleNode(graph.NewRuleNode(p, compile))
	p.AddRuleNode(graph.NewRuleNode(p, link))
	return proj, p
}

func newOrchestrator(t *testing.T) *BuildOrchestrator {
	t.Helper()
	host := fakeHost{}
	processExec := command.NewProcessExecutor(host)
	scriptExec := command.NewScriptExecutor()
	runner := command.NewRunner(processExec, scriptExec, fixedClock(time.Unix(0, 0)))
	return &BuildOrchestrator{
		Apply:     apply.NewEngine(fixedClock(time.Unix(0, 0))),
		Runner:    runner,
		Scheduler: scheduler.New(config.DefaultBuildOptions(), 4),
		BuildDir:  func(p *graph.Product) string { return "/build" },
	}
}

type fakeHost struct{}

func (fakeHost) Run(ctx context.Context, program string, args []string, workingDir string, env []string) (command.ProcessResult, error) {
	return command.ProcessResult{ExitCode: 0}, nil
}

func TestSetupInstallsResolvedProject(t *testing.T) {
	f := New(nil, "")
	proj := graph.NewProject("app")

	var events []Event
	err := f.Setup(context.Background(), ResolverFunc(func(ctx context.Context) (*graph.Project, error) {
		return proj, nil
	}), func(e Event) { events = append(events, e) })

	require.NoError(t, err)
	require.Same(t, proj, f.Project())
	require.Equal(t, TaskStarted, events[0].Kind)
	require.Equal(t, Finished, events[len(events)-1].Kind)
	require.True(t, events[len(events)-1].Success)
}

func TestSetupPropagatesResolverError(t *testing.T) {
	f := New(nil, "")
	boom := errors.New("boom")

	err := f.Setup(context.Background(), ResolverFunc(func(ctx context.Context) (*graph.Project, error) {
		return nil, boom
	}), nil)

	require.ErrorIs(t, err, boom)
	require.Nil(t, f.Project())
}

func TestSecondJobFailsWhileOneIsInProgress(t *testing.T) {
	f := New(graph.NewProject("app"), "")

	release, err := f.lock.tryAcquire(BuildJob)
	require.NoError(t, err)
	defer release()

	err = f.Setup(context.Background(), ResolverFunc(func(ctx context.Context) (*graph.Project, error) {
		return graph.NewProject("app"), nil
	}), nil)
	require.Error(t, err)
	var inProgress *jobInProgressError
	require.ErrorAs(t, err, &inProgress)
	require.Equal(t, BuildJob, inProgress.Active)
}

func TestSetupAcquiresBuildGraphFileLock(t *testing.T) {
	dir := t.TempDir()
	bgPath := filepath.Join(dir, "app.bg")
	require.NoError(t, os.WriteFile(bgPath+".lock", []byte{}, 0o644))

	f := New(graph.NewProject("app"), bgPath)
	err := f.Setup(context.Background(), ResolverFunc(func(ctx context.Context) (*graph.Project, error) {
		return graph.NewProject("app"), nil
	}), nil)

	require.Error(t, err)
}

func TestSetupReleasesBuildGraphFileLockOnSuccess(t *testing.T) {
	dir := t.TempDir()
	bgPath := filepath.Join(dir, "app.bg")

	f := New(graph.NewProject("app"), bgPath)
	require.NoError(t, f.Setup(context.Background(), ResolverFunc(func(ctx context.Context) (*graph.Project, error) {
		return graph.NewProject("app"), nil
	}), nil))

	_, err := os.Stat(bgPath + ".lock")
	require.True(t, os.IsNotExist(err))
}

func TestBuildAppliesRulesInDependencyOrderAndRunsCommands(t *testing.T) {
	proj, p := newCompileProject(t)
	f := New(proj, "")
	orch := newOrchestrator(t)

	var events []Event
	err := f.Build(context.Background(), orch, nil, CompiledRules{}, false, func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	_, ok := p.Artifacts["/build/main.o"]
	require.True(t, ok)
	_, ok = p.Artifacts["/build/app"]
	require.True(t, ok)

	require.Equal(t, Finished, events[len(events)-1].Kind)
	require.True(t, events[len(events)-1].Success)
}

func TestBuildRejectsUnknownProductName(t *testing.T) {
	proj, _ := newCompileProject(t)
	f := New(proj, "")
	orch := newOrchestrator(t)

	err := f.Build(context.Background(), orch, []string{"nope"}, CompiledRules{}, false, nil)
	require.Error(t, err)
}

func TestBuildFailsBeforeSetup(t *testing.T) {
	f := New(nil, "")
	orch := newOrchestrator(t)

	err := f.Build(context.Background(), orch, nil, CompiledRules{}, false, nil)
	require.Error(t, err)
}

func TestCleanRemovesGeneratedArtifacts(t *testing.T) {
	dir := t.TempDir()
	objPath := filepath.Join(dir, "main.o")
	require.NoError(t, os.WriteFile(objPath, []byte("x"), 0o644))

	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	out := graph.NewGeneratedArtifact(objPath, graph.NewTransformer(&graph.Rule{Name: "compile"}))
	require.NoError(t, p.AddArtifact(out))

	f := New(proj, "")
	cleaner := clean.New(nil)

	var events []Event
	err := f.Clean(context.Background(), cleaner, dir, nil, false, func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	_, statErr := os.Stat(objPath)
	require.True(t, os.IsNotExist(statErr))
	require.NotContains(t, p.Artifacts, objPath)
}

func TestInstallCopiesFlaggedArtifacts(t *testing.T) {
	srcDir := t.TempDir()
	installRoot := t.TempDir()
	binPath := filepath.Join(srcDir, "app")
	require.NoError(t, os.WriteFile(binPath, []byte("binary"), 0o755))

	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	out := graph.NewGeneratedArtifact(binPath, graph.NewTransformer(&graph.Rule{Name: "link"}))
	out.Properties = graph.NewPropertyMap(map[string]string{"installDir": "bin"})
	require.NoError(t, p.AddArtifact(out))

	f := New(proj, "")
	installer := &Installer{InstallRoot: installRoot}

	err := f.Install(context.Background(), installer, nil, nil)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(installRoot, "bin", "app"))
	require.NoError(t, err)
	require.Equal(t, "binary", string(contents))
}

func TestInstallSkipsArtifactsWithoutInstallDir(t *testing.T) {
	srcDir := t.TempDir()
	installRoot := t.TempDir()
	binPath := filepath.Join(srcDir, "app")
	require.NoError(t, os.WriteFile(binPath, []byte("binary"), 0o755))

	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	out := graph.NewGeneratedArtifact(binPath, graph.NewTransformer(&graph.Rule{Name: "link"}))
	require.NoError(t, p.AddArtifact(out))

	f := New(proj, "")
	installer := &Installer{InstallRoot: installRoot}

	require.NoError(t, f.Install(context.Background(), installer, nil, nil))
	_, err := os.Stat(filepath.Join(installRoot, "bin", "app"))
	require.True(t, os.IsNotExist(err))
}

func TestRunEnvironmentPrependsProductOutputDirToPath(t *testing.T) {
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	out := graph.NewGeneratedArtifact("/build/app/app", graph.NewTransformer(&graph.Rule{Name: "link"}))
	out.FileTags = types.NewTagSet("application")
	require.NoError(t, p.AddArtifact(out))

	runenv := NewRunEnvironment(p, fakeHost{}, map[string]string{"PATH": "/usr/bin"})
	env := runenv.Environment()
	require.Contains(t, env["PATH"], "/build/app")
	require.Contains(t, env["PATH"], "/usr/bin")
}

func TestRunEnvironmentRunTargetUsesApplicationArtifact(t *testing.T) {
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	out := graph.NewGeneratedArtifact("/build/app/app", graph.NewTransformer(&graph.Rule{Name: "link"}))
	out.FileTags = types.NewTagSet("application")
	require.NoError(t, p.AddArtifact(out))

	var gotProgram string
	host := recordingHost{onRun: func(program string) { gotProgram = program }}
	runenv := NewRunEnvironment(p, host, nil)

	_, err := runenv.RunTarget(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, "/build/app/app", gotProgram)
}

type recordingHost struct {
	onRun func(program string)
}

func (h recordingHost) Run(ctx context.Context, program string, args []string, workingDir string, env []string) (command.ProcessResult, error) {
	if h.onRun != nil {
		h.onRun(program)
	}
	return command.ProcessResult{}, nil
}
