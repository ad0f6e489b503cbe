package facade

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-build/kestrel/internal/command"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
)

// RunEnvironment is the façade's support type for the `run` and `shell`
// CLI verbs (§6): it computes the environment a product's built output
// needs at runtime and spawns either the product's own executable or an
// interactive shell inside it. Grounded on the original implementation's
// RunEnvironment (runenvironment.cpp), reduced to this module's scope:
// only the PATH-prepending part of the original's environment assembly
// applies here, since kestrel has no module-property search-path system
// of its own to walk.
type RunEnvironment struct {
	Product *graph.Product
	Process command.ProcessHost
	BaseEnv map[string]string
	PathVar string // defaults to "PATH"
}

// NewRunEnvironment returns a RunEnvironment for product, using host for
// process spawning (nil defaults to the real OS host).
func NewRunEnvironment(product *graph.Product, host command.ProcessHost, baseEnv map[string]string) *RunEnvironment {
	if host == nil {
		host = command.NewExecProcessHost()
	}
	return &RunEnvironment{Product: product, Process: host, BaseEnv: baseEnv, PathVar: "PATH"}
}

// Environment returns the merged environment a run/shell command should
// see: BaseEnv with PathVar prepended by every directory in the product
// that contains a generated, executable-tagged artifact.
func (r *RunEnvironment) Environment() map[string]string {
	pathVar := r.PathVar
	if pathVar == "" {
		pathVar = "PATH"
	}

	dirs := r.outputDirs()
	env := make(map[string]string, len(r.BaseEnv)+1)
	for k, v := range r.BaseEnv {
		env[k] = v
	}

	existing := env[pathVar]
	if existing == "" {
		existing = os.Getenv(pathVar)
	}
	parts := append(dirs, existing)
	env[pathVar] = strings.Join(nonEmpty(parts), string(os.PathListSeparator))
	return env
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *RunEnvironment) outputDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, a := range r.Product.Artifacts {
		if !a.IsGenerated() || !a.FileTags.Contains("application") {
			continue
		}
		dir := filepath.Dir(a.Path())
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// targetBinary returns the product's single "application"-tagged output,
// the target runTarget spawns when the CLI's `run` verb is given no
// explicit binary path.
func (r *RunEnvironment) targetBinary() (string, error) {
	candidates := r.Product.ArtifactsWithTag("application")
	if len(candidates) == 0 {
		return "", kerrors.NewConfigurationError("run target", r.Product.Name, nil, nil)
	}
	return candidates[0].Path(), nil
}

// RunTarget spawns the product's built executable (or targetBin, if
// given) with arguments, under the merged run environment.
func (r *RunEnvironment) RunTarget(ctx context.Context, targetBin string, arguments []string) (command.ProcessResult, error) {
	if targetBin == "" {
		bin, err := r.targetBinary()
		if err != nil {
			return command.ProcessResult{}, err
		}
		targetBin = bin
	}
	return r.Process.Run(ctx, targetBin, arguments, filepath.Dir(targetBin), envSlice(r.Environment()))
}

// RunShell spawns an interactive shell with the run environment applied,
// so the user can invoke the product's output by name (§6's `shell`
// verb). An empty shellProgram falls back to $SHELL, then to /bin/sh.
func (r *RunEnvironment) RunShell(ctx context.Context, shellProgram, workingDir string) (command.ProcessResult, error) {
	if shellProgram == "" {
		shellProgram = os.Getenv("SHELL")
	}
	if shellProgram == "" {
		shellProgram = "/bin/sh"
	}
	return r.Process.Run(ctx, shellProgram, nil, workingDir, envSlice(r.Environment()))
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
