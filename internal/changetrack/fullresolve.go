// Package changetrack implements the change-tracking and rescue logic of
// §4.7: the full-resolve trigger checks run at setup, per-product
// unchanged/file-list-changed/changed classification with transitive
// propagation, rescuable artifact data capture/reattachment, and the
// transformer up-to-date check consulted before the scheduler re-runs a
// rule's commands.
package changetrack

import (
	"time"

	"github.com/kestrel-build/kestrel/internal/registry"
)

// ProbeSnapshot is the live replay values to compare against a stored
// registry.ProbeStore — one entry per probe actually performed during
// this resolve.
type ProbeSnapshot struct {
	CanonicalPaths map[string]string
	Exists         map[string]bool
	DirEntries     map[string][]string
	LastModified   map[string]time.Time
}

// ProbesDiffer reports whether replaying live against stored surfaces any
// difference, per §4.7's "any stored ... probe result differs when
// replayed".
func ProbesDiffer(stored *registry.ProbeStore, live ProbeSnapshot) bool {
	if stored == nil {
		return false
	}
	for raw, v := range live.CanonicalPaths {
		if stored.CanonicalPathDiffers(raw, v) {
			return true
		}
	}
	for path, v := range live.Exists {
		if stored.ExistsDiffers(path, v) {
			return true
		}
	}
	for dir, v := range live.DirEntries {
		if stored.DirEntriesDiffer(dir, v) {
			return true
		}
	}
	for path, v := range live.LastModified {
		if stored.LastModifiedDiffers(path, v) {
			return true
		}
	}
	return false
}

// ProductResolveCheck is the per-product input to the full-resolve
// trigger: whether its defining file, wildcard source set, or
// previously-missing files changed since the last start-resolve.
type ProductResolveCheck struct {
	Name                       string
	DefiningFileModTime        time.Time
	WildcardSources            []string
	StoredWildcardSources      []string
	Removed                    bool
	PreviouslyMissingNowExists bool
}

// forcesFullResolve reports whether this product alone requires a full
// re-resolve rather than just a per-product rebuild.
func (c ProductResolveCheck) forcesFullResolve(lastStartResolveTime time.Time) bool {
	if c.Removed {
		return true
	}
	if c.DefiningFileModTime.After(lastStartResolveTime) {
		return true
	}
	if !equalStringSets(c.WildcardSources, c.StoredWildcardSources) {
		return true
	}
	if c.PreviouslyMissingNowExists {
		return true
	}
	return false
}

// BuildSystemFile is an imported script file or module-provider output
// consulted against the reference time appropriate to its origin.
type BuildSystemFile struct {
	Path              string
	ModTime           time.Time
	ProviderGenerated bool
}

func (f BuildSystemFile) isNewerThan(lastEndResolveTime, lastStartResolveTime time.Time) bool {
	ref := lastStartResolveTime
	if f.ProviderGenerated {
		ref = lastEndResolveTime
	}
	return f.ModTime.After(ref)
}

// FullResolveCheck bundles every trigger input of §4.7.
type FullResolveCheck struct {
	StoredConfigHash, CurrentConfigHash   uint64
	StoredEnvironment, CurrentEnvironment map[string]string
	IgnoreEnvKeys                         map[string]struct{}

	Probes     *registry.ProbeStore
	LiveProbes ProbeSnapshot

	ForceProbeExecution bool
	AnyProbeExists       bool

	Products              []ProductResolveCheck
	LastStartResolveTime  time.Time
	LastEndResolveTime    time.Time
	BuildSystemFiles      []BuildSystemFile
}

// NeedsFullResolve evaluates every trigger in §4.7's list, returning the
// first one that fires and a short reason string for logging.
func (c FullResolveCheck) NeedsFullResolve() (bool, string) {
	if c.StoredConfigHash != c.CurrentConfigHash {
		return true, "build configuration changed"
	}
	if environmentDiffers(c.StoredEnvironment, c.CurrentEnvironment, c.IgnoreEnvKeys) {
		return true, "environment changed"
	}
	if ProbesDiffer(c.Probes, c.LiveProbes) {
		return true, "a replayed probe result changed"
	}
	if c.ForceProbeExecution && c.AnyProbeExists {
		return true, "probe execution forced"
	}
	for _, p := range c.Products {
		if p.forcesFullResolve(c.LastStartResolveTime) {
			return true, "product " + p.Name + " requires a full resolve"
		}
	}
	for _, f := range c.BuildSystemFiles {
		if f.isNewerThan(c.LastEndResolveTime, c.LastStartResolveTime) {
			return true, "build system file " + f.Path + " changed"
		}
	}
	return false, ""
}

func environmentDiffers(stored, current map[string]string, ignore map[string]struct{}) bool {
	for k, v := range stored {
		if _, skip := ignore[k]; skip {
			continue
		}
		if current[k] != v {
			return true
		}
	}
	for k, v := range current {
		if _, skip := ignore[k]; skip {
			continue
		}
		if _, ok := stored[k]; !ok && v != "" {
			return true
		}
	}
	return false
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
