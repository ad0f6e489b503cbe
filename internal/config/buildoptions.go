// Package config holds the two pieces of ambient configuration the build
// engine needs that are not part of the resolved project: BuildOptions
// (§4.8, the knobs the executor reads for one build invocation) and the
// on-disk settings/profile overlay (§1.3 of SPEC_FULL.md) analogous to the
// teacher's .lci.kdl.
package config

import "github.com/kestrel-build/kestrel/internal/types"

// CommandEchoMode controls how the executor reports commands as they run
// (§4.8's commandEchoMode recognized option).
type CommandEchoMode string

const (
	// EchoSummary prints one short line per command (default).
	EchoSummary CommandEchoMode = "summary"
	// EchoCommandLine prints the full command line, honoring the CLI's
	// --show-command-lines flag (§6).
	EchoCommandLine CommandEchoMode = "command-line"
	// EchoNone suppresses per-command reporting entirely.
	EchoNone CommandEchoMode = "none"
)

// BuildOptions is the recognized option set of §4.8, passed to the
// executor for a single setup/build/clean/install invocation.
type BuildOptions struct {
	DryRun               bool
	KeepGoing            bool
	LogElapsedTime       bool
	MaxJobCount          int
	CommandEchoMode      CommandEchoMode
	ForceTimestampCheck  bool
	ChangedFiles         []string
	FilesToConsider      []string
	ActiveFileTagsOnly   bool
	InstallArtifacts     bool
	RemoveStaleArtifacts bool
	JobLimitsPerPool     map[types.JobPool]int
}

// DefaultBuildOptions returns the options a bare `kestrel build` uses.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxJobCount:        0, // 0 => auto-detect (NumCPU), resolved by the scheduler
		CommandEchoMode:    EchoSummary,
		ActiveFileTagsOnly: true,
		JobLimitsPerPool:   map[types.JobPool]int{},
	}
}

// EffectiveJobLimit returns the configured limit for pool, or fallback
// (normally MaxJobCount) when the pool has no specific limit.
func (o BuildOptions) EffectiveJobLimit(pool types.JobPool, fallback int) int {
	if pool == types.DefaultJobPool {
		return fallback
	}
	if limit, ok := o.JobLimitsPerPool[pool]; ok && limit > 0 {
		return limit
	}
	return fallback
}
