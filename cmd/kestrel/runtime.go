// Command kestrel is the CLI surface of §6: resolve, build, clean,
// install, run, shell, status, and dump-nodes, each wired to
// internal/facade through internal/projectdesc, internal/buildgraph,
// and internal/config, the way cmd/lci/main.go wires urfave/cli/v2
// commands to internal/indexing and internal/config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/urfave/cli/v2"

	"github.com/kestrel-build/kestrel/internal/config"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/logging"
	"github.com/kestrel-build/kestrel/internal/projectdesc"
)

// cancelOnSignal returns a context cancelled on SIGINT/SIGTERM, so a
// build job observes §7's Cancelled kind instead of being torn down by
// the runtime mid-command (§6's cancel contract, S6). The returned
// cancel func releases the signal handler and must be deferred by every
// command action.
func cancelOnSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// runtime bundles the settings, paths, and build options every
// subcommand derives from the global flags, computed once per
// invocation.
type runtime struct {
	ProjectFile  string
	BuildRoot    string
	SettingsDir  string
	Settings     config.Settings
	Profile      config.Profile
	ProfileName  string
	BuildOptions config.BuildOptions

	ProjectID     string
	BuildDir      string
	BuildGraphPath string
	ConfigSnapshot []byte
	InstallRoot    string

	// staleArtifacts is populated by runSetup with the output paths a
	// prior build produced that the freshly resolved graph no longer
	// does, for runBuild's --remove-stale-artifacts to act on.
	staleArtifacts []string

	// resolveStart/resolveEnd are the current resolve's timing, kept so
	// a later saveGraph call (after a build finishes) persists the same
	// §4.7 full-resolve reference times runSetup established rather than
	// drifting them forward on every save.
	resolveStart, resolveEnd time.Time
}

// newRuntime reads --settings-dir, resolves the named (or default)
// profile, and derives the project-scoped build directory and
// build-graph path (§6: "<buildDir>/<projectId>.bg", "buildDir =
// <buildRoot>/<projectId>").
func newRuntime(c *cli.Context) (*runtime, error) {
	level, err := logging.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, kerrors.NewConfigurationError("log-level", c.String("log-level"), []string{"error", "warning", "info", "debug", "trace"}, err)
	}
	logging.SetLevel(level)
	logging.SetShowElapsedTime(c.Bool("log-time"))

	projectFile, err := filepath.Abs(c.String("file"))
	if err != nil {
		return nil, kerrors.NewIOError("resolve path", c.String("file"), err)
	}
	buildRoot, err := filepath.Abs(c.String("build-directory"))
	if err != nil {
		return nil, kerrors.NewIOError("resolve path", c.String("build-directory"), err)
	}
	settingsDir, err := filepath.Abs(c.String("settings-dir"))
	if err != nil {
		return nil, kerrors.NewIOError("resolve path", c.String("settings-dir"), err)
	}

	settings, err := config.LoadSettings(settingsDir)
	if err != nil {
		return nil, err
	}
	profileName := c.String("profile")
	profile, err := settings.ResolveProfile(profileName)
	if err != nil {
		return nil, err
	}

	opts := config.DefaultBuildOptions()
	opts.DryRun = c.Bool("dry-run")
	opts.KeepGoing = c.Bool("keep-going")
	opts.LogElapsedTime = c.Bool("log-time")
	opts.MaxJobCount = c.Int("jobs")
	opts.ForceTimestampCheck = c.Bool("force-probe-execution")
	if c.Bool("show-command-lines") {
		opts.CommandEchoMode = config.EchoCommandLine
	}
	opts.ChangedFiles = absPaths(c.StringSlice("changed-files"))
	opts.FilesToConsider = absPaths(c.StringSlice("files-to-consider"))
	opts.ActiveFileTagsOnly = !c.Bool("all-file-tags")
	opts.InstallArtifacts = c.Bool("install")
	opts.RemoveStaleArtifacts = c.Bool("remove-stale-artifacts")

	configSnapshot := configSnapshotBytes(projectFile, profileName, profile)
	projectID := fmt.Sprintf("%016x", xxhash.Sum64(configSnapshot))
	buildDir := filepath.Join(buildRoot, projectID)

	return &runtime{
		ProjectFile:    projectFile,
		BuildRoot:      buildRoot,
		SettingsDir:    settingsDir,
		Settings:       settings,
		Profile:        profile,
		ProfileName:    profileName,
		BuildOptions:   opts,
		ProjectID:      projectID,
		BuildDir:       buildDir,
		BuildGraphPath: filepath.Join(buildDir, projectID+".bg"),
		ConfigSnapshot: configSnapshot,
		InstallRoot:    c.String("install-root"),
	}, nil
}

// absPaths resolves every path in paths to an absolute path, so entries
// in config.BuildOptions.ChangedFiles/FilesToConsider compare equal to
// the absolute artifact paths the graph stores regardless of the
// working directory the CLI was invoked from. A path that can't be
// resolved is kept as-is rather than dropped.
func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			out = append(out, p)
			continue
		}
		out = append(out, abs)
	}
	return out
}

// configSnapshotBytes deterministically encodes the inputs §4.7 treats
// as "the build configuration": the project file's path, the active
// profile's name, and its resolved properties (sorted for determinism).
// Its hash is both the projectId (§6) and the value buildgraph.Save/Load
// compare to detect a configuration change.
func configSnapshotBytes(projectFile, profileName string, profile config.Profile) []byte {
	keys := make([]string, 0, len(profile.Properties))
	for k := range profile.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte(projectFile + "\x00" + profileName)
	for _, k := range keys {
		buf = append(buf, '\x00')
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, profile.Properties[k]...)
	}
	return buf
}

// scriptRegistry is empty for every built-in kestrel invocation: the CLI
// has no way to register host Go closures from a project file alone, so
// every project it loads must be purely declarative. Embedders linking
// internal/projectdesc directly are the ones who populate a registry.
func newResolver(rt *runtime) *projectdesc.FSResolver {
	resolver := projectdesc.NewFSResolver(rt.ProjectFile, projectdesc.NewScriptRegistry())
	resolver.AllFileTags = !rt.BuildOptions.ActiveFileTagsOnly
	return resolver
}

// fatal prints err the way cmd/lci/main.go reports a top-level failure
// and returns the exit code §6 assigns to its kind.
func fatal(err error) int {
	fmt.Fprintln(os.Stderr, "kestrel: "+err.Error())
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *kerrors.ConfigurationError:
		return 2
	case *kerrors.CancelledError:
		return 3
	default:
		return 1
	}
}
