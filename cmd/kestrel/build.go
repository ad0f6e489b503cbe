package main

import (
	"context"
	"os"
	"time"

	stdruntime "runtime"

	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/apply"
	"github.com/kestrel-build/kestrel/internal/clean"
	"github.com/kestrel-build/kestrel/internal/command"
	"github.com/kestrel-build/kestrel/internal/facade"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/logging"
	"github.com/kestrel-build/kestrel/internal/scanner"
	"github.com/kestrel-build/kestrel/internal/scheduler"
)

var buildCommand = &cli.Command{
	Name:      "build",
	Usage:     "resolve (if needed) and build the named products, or all of them",
	ArgsUsage: "[product...]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "install",
			Usage: "install artifacts to --install-root after a successful build",
		},
		&cli.StringFlag{
			Name:  "install-root",
			Usage: "destination root directory for --install",
			Value: "install",
		},
		&cli.BoolFlag{
			Name:  "remove-stale-artifacts",
			Usage: "remove generated artifacts no longer produced by the current build graph",
		},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		ctx, cancel := cancelOnSignal()
		defer cancel()
		_, err = runBuild(ctx, rt, c.Args().Slice())
		return err
	},
}

// runBuild resolves the project via runSetup, compiles an orchestrator from
// the resolver's compiled scripts, and runs the build job. It is also
// reused by `run`/`shell`, which need a built product's output before they
// can spawn anything. When rt.BuildOptions.InstallArtifacts or
// .RemoveStaleArtifacts is set, it also runs those as part of the same
// invocation (qbs's --install-root-on-build-by-default behavior), and it
// always re-persists the build graph once the build finishes so the
// LastApplicationTime/transformer state the build just produced survives
// to the next invocation.
func runBuild(ctx context.Context, rt *runtime, products []string) (*graph.Project, error) {
	f, resolver, err := runSetup(ctx, rt)
	if err != nil {
		return nil, err
	}
	project := f.Project()

	engine := apply.NewEngine(time.Now)
	engine.ScanSession = buildScanSession(project)
	if len(rt.BuildOptions.ChangedFiles) > 0 {
		engine.ChangedFiles = toSet(rt.BuildOptions.ChangedFiles)
	}
	if len(rt.BuildOptions.FilesToConsider) > 0 {
		engine.FilesToConsider = toSet(rt.BuildOptions.FilesToConsider)
	}

	orch := &facade.BuildOrchestrator{
		Apply:     engine,
		Runner:    buildRunner(),
		Scheduler: scheduler.New(rt.BuildOptions, stdruntime.NumCPU()),
		BuildDir:  func(p *graph.Product) string { return rt.BuildDir },
	}

	if err := f.Build(ctx, orch, products, resolver.Rules(), rt.BuildOptions.KeepGoing, logListener("build")); err != nil {
		return nil, err
	}
	project = f.Project()

	if rt.BuildOptions.RemoveStaleArtifacts && len(rt.staleArtifacts) > 0 {
		cleaner := clean.New(clean.NewOSFileSystem())
		result := cleaner.RemoveStaleArtifacts(rt.staleArtifacts, rt.BuildDir, rt.BuildOptions.KeepGoing)
		if result.Err != nil {
			return nil, result.Err
		}
	}

	if rt.BuildOptions.InstallArtifacts {
		installer := &facade.Installer{InstallRoot: rt.InstallRoot}
		if err := f.Install(ctx, installer, products, logListener("install")); err != nil {
			return nil, err
		}
	}

	if err := saveGraph(rt, project); err != nil {
		return nil, err
	}
	return project, nil
}

// buildScanSession wires §4.5's dependency scanner into the build: the
// built-in C/C++ #include scanner, backed by a fresh per-invocation result
// cache and a resolver that checks the real filesystem for paths the graph
// doesn't already know about.
func buildScanSession(project *graph.Project) *scanner.Session {
	resolver := scanner.NewResolver(project, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
	return scanner.NewSession(
		[]scanner.Scanner{&scanner.CInclude{}},
		scanner.NewRawScanResults(),
		resolver,
		os.ReadFile,
	)
}

func toSet(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out
}

func buildRunner() *command.Runner {
	process := command.NewProcessExecutor(command.NewExecProcessHost())
	scriptExec := command.NewScriptExecutor()
	return command.NewRunner(process, scriptExec, time.Now)
}

func logListener(job string) facade.Listener {
	return func(e facade.Event) {
		switch e.Kind {
		case facade.TotalEffortChanged:
			logging.Infof("%s: %d step(s) to run", job, e.Total)
		case facade.TaskProgress:
			logging.Debugf("%s: %d/%d", job, e.Done, e.Total)
		case facade.Finished:
			if !e.Success {
				logging.Errorf("%s failed: %v", job, e.Err)
			}
		}
	}
}

// ensureResolved resolves rt's project file into a fresh *facade.Facade.
// Every read-only command (clean, install, dump-nodes) resolves on demand
// rather than trusting a stale in-memory project, since each CLI
// invocation is its own process: the persisted buildgraph.Snapshot is
// what carries change-tracking state between invocations, not the
// in-process *graph.Project.
func ensureResolved(ctx context.Context, rt *runtime) (*facade.Facade, *graph.Project, error) {
	f, _, err := runSetup(ctx, rt)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Project(), nil
}
