package buildgraph

import (
	"time"

	"github.com/kestrel-build/kestrel/internal/changetrack"
	"github.com/kestrel-build/kestrel/internal/registry"
	"github.com/kestrel-build/kestrel/internal/types"
)

// SchemaVersion is bumped whenever Snapshot's shape changes in a way
// that makes an older persisted file unreadable. persistence.Pool
// compares it against the running binary's version on Load, reporting a
// SchemaMismatchError rather than attempting to decode mismatched bytes.
const SchemaVersion uint32 = 1

// StoredProduct is one product's change-tracking state as of the last
// successful setup, matched back up against a changetrack.ProductResolveCheck
// built from the live project on the next run.
type StoredProduct struct {
	Name                string
	DefiningFileModTime time.Time
	WildcardSources     []string
}

// Snapshot is everything persisted between builds to drive §4.7's
// full-resolve trigger and per-transformer up-to-date checks: it holds
// no command closures or graph topology, only the plain data those
// decisions are made from.
type Snapshot struct {
	Environment          map[string]string
	Probes               registry.ProbeSnapshot
	Products              []StoredProduct
	LastStartResolveTime time.Time
	LastEndResolveTime    time.Time
	BuildSystemFiles      []changetrack.BuildSystemFile

	// Dependencies holds one changetrack.DependencySnapshot per
	// transformer, keyed by its primary output artifact's absolute
	// path (stable across resolves as long as the rule's output
	// binding doesn't change).
	Dependencies map[string]changetrack.DependencySnapshot

	// ProductGraphs holds the pool object ID of each product's
	// StoredProductGraph (rule nodes, transformers, output artifacts),
	// populated by SaveWithGraph and consumed by LoadProductGraph/
	// Reattach to restore §4.6 state across process invocations.
	ProductGraphs map[string]types.ObjectID
}

// FullResolveCheck assembles a changetrack.FullResolveCheck comparing s
// (the snapshot loaded from the build-graph file, or the zero value if
// none existed) against the live values gathered during the current
// setup job, ready for NeedsFullResolve.
func (s Snapshot) FullResolveCheck(
	storedConfigHash, currentConfigHash uint64,
	currentEnvironment map[string]string,
	ignoreEnvKeys map[string]struct{},
	liveProbes changetrack.ProbeSnapshot,
	forceProbeExecution bool,
	products []changetrack.ProductResolveCheck,
) changetrack.FullResolveCheck {
	return changetrack.FullResolveCheck{
		StoredConfigHash:      storedConfigHash,
		CurrentConfigHash:     currentConfigHash,
		StoredEnvironment:     s.Environment,
		CurrentEnvironment:    currentEnvironment,
		IgnoreEnvKeys:         ignoreEnvKeys,
		Probes:                registry.NewProbeStoreFromSnapshot(s.Probes),
		LiveProbes:            liveProbes,
		ForceProbeExecution:   forceProbeExecution,
		AnyProbeExists:        len(s.Probes.Exists) > 0 || len(s.Probes.CanonicalPath) > 0 || len(s.Probes.DirEntries) > 0 || len(s.Probes.LastModified) > 0,
		Products:              products,
		LastStartResolveTime:  s.LastStartResolveTime,
		LastEndResolveTime:    s.LastEndResolveTime,
		BuildSystemFiles:      s.BuildSystemFiles,
	}
}

// UpToDate reports whether the transformer whose primary output is
// outputPath has an unchanged dependency snapshot, per current.
func (s Snapshot) UpToDate(outputPath string, current changetrack.DependencySnapshot) bool {
	stored, ok := s.Dependencies[outputPath]
	if !ok {
		return false
	}
	return changetrack.UpToDate(stored, current)
}
