package command

import (
	"context"
	"fmt"
	"os"
	"time"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/script"
	"github.com/kestrel-build/kestrel/internal/types"
)

// Runner executes a transformer's ordered command list, dispatching each
// descriptor to the process or script executor by its Kind, and folds
// script accesses back into the transformer's *InCommands change-
// tracking fields.
type Runner struct {
	Process         *ProcessExecutor
	Script          *ScriptExecutor
	Now             func() time.Time
	BaseEnvironment map[string]string
	DryRun          bool

	// Stat resolves an output artifact's on-disk modification time once a
	// command run finishes, so the timestamp internal/apply's
	// needsReapplication compares against reflects the file Run itself
	// just produced rather than whatever was cached (or absent) before
	// this run started.
	Stat func(path string) (time.Time, error)
}

// NewRunner wires a Runner from its two executors, stat'ing the real
// filesystem for output timestamps.
func NewRunner(process *ProcessExecutor, scriptExec *ScriptExecutor, now func() time.Time) *Runner {
	return &Runner{Process: process, Script: scriptExec, Now: now, Stat: statFile}
}

func statFile(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Run executes every command of transformer in order against scope,
// looking up each script command's compiled body in scripts by index.
// A non-ignoreDryRun command is skipped entirely when Runner.DryRun is
// set, per §4.8's dry-run semantics.
func (r *Runner) Run(ctx context.Context, transformer *graph.Transformer, scope *script.Scope, scripts map[int]ScriptCommandFunc) error {
	for i, cmd := range transformer.Commands {
		if r.DryRun && !cmd.IgnoreDryRun {
			continue
		}
		if err := ctx.Err(); err != nil {
			return kerrors.NewCancelledError(err.Error())
		}

		switch cmd.Kind {
		case graph.ProcessCommandKind:
			result, err := r.Process.Run(ctx, cmd.Program, cmd.Arguments, cmd.WorkingDirectory, r.BaseEnvironment, cmd.Environment)
			if err != nil {
				return kerrors.NewIOError("exec", cmd.Program, err)
			}
			if result.ExitCode != 0 {
				return kerrors.NewInternalError("command", fmt.Sprintf("%s exited with status %d", cmd.Program, result.ExitCode), nil)
			}

		case graph.ScriptCommandKind:
			access, err := r.Script.Run(scripts[i], scope)
			if err != nil {
				return kerrors.NewScriptEvaluationError("command", types.SourceLocation{}, nil, err)
			}
			transformer.PropertiesRequestedInCommands = mergeUnique(transformer.PropertiesRequestedInCommands, access.Properties)
			transformer.ImportedFilesUsedInCommands = mergeUnique(transformer.ImportedFilesUsedInCommands, access.ImportedFiles)
			transformer.DepsRequestedInCommands = mergeUnique(transformer.DepsRequestedInCommands, access.Deps)
			transformer.ArtifactsMapRequestedInCommands = mergeUnique(transformer.ArtifactsMapRequestedInCommands, access.ArtifactsMapTags)
			transformer.ExportedModulesAccessedInCommands = mergeUnique(transformer.ExportedModulesAccessedInCommands, access.ExportedModules)
			for artifact, keys := range access.PropertiesFromArtifact {
				if transformer.PropertiesRequestedFromArtifactInCommands == nil {
					transformer.PropertiesRequestedFromArtifactInCommands = make(map[string][]string)
				}
				transformer.PropertiesRequestedFromArtifactInCommands[artifact] = mergeUnique(transformer.PropertiesRequestedFromArtifactInCommands[artifact], keys)
			}
		}
	}

	if !r.DryRun {
		transformer.LastCommandExecutionTime = r.Now()
		transformer.CommandsNeedChangeTracking = false
		r.stampOutputs(transformer)
	}
	return nil
}

// stampOutputs refreshes every output artifact's cached timestamp from
// disk after a real (non-dry-run) command run, so the next invocation's
// needsReapplication sees the command's own effect rather than a stale or
// absent timestamp left over from before the run.
func (r *Runner) stampOutputs(transformer *graph.Transformer) {
	if r.Stat == nil {
		return
	}
	for _, a := range transformer.Outputs {
		ts, err := r.Stat(a.Path())
		if err != nil {
			continue
		}
		a.SetTimestamp(ts)
	}
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
