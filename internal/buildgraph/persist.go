package buildgraph

import (
	"bytes"
	"encoding/gob"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/persistence"
	"github.com/kestrel-build/kestrel/internal/types"
)

// Save gob-encodes snap and writes it to path as a persistence.Pool file
// stamped with configSnapshot, so a later Load can detect a configuration
// change before it even looks at the snapshot's contents. It is the
// single-object form of SaveWithGraph, for callers (and tests) that only
// need §4.7's scalar change-tracking state, not a full rule-node/
// transformer/artifact graph.
func Save(path string, snap Snapshot, configSnapshot []byte) error {
	pool := persistence.NewPool(SchemaVersion, configSnapshot)
	if err := internSnapshot(pool, snap); err != nil {
		return err
	}
	return pool.SaveFile(path)
}

// SaveWithGraph is Save plus, for every product in project, interning its
// rule nodes (one TagRuleNode object each, with the transformer and its
// output artifacts inline) and a TagProduct index of them via
// SaveProductGraph, recorded in snap.ProductGraphs
// so the next process's Reattach can restore §4.6's OldInputArtifacts/
// LastApplicationTime/Transformer state across the process boundary
// (a fresh *graph.Project is resolved from scratch on every invocation,
// so nothing survives unless it comes back out of this file).
func SaveWithGraph(path string, snap Snapshot, project *graph.Project, configSnapshot []byte) error {
	pool := persistence.NewPool(SchemaVersion, configSnapshot)

	if project != nil {
		snap.ProductGraphs = make(map[string]types.ObjectID, len(project.Products))
		for name, product := range project.Products {
			id, err := SaveProductGraph(pool, product)
			if err != nil {
				return err
			}
			snap.ProductGraphs[name] = id
		}
	}

	if err := internSnapshot(pool, snap); err != nil {
		return err
	}
	return pool.SaveFile(path)
}

func internSnapshot(pool *persistence.Pool, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	pool.Intern(persistence.TagProject, data)
	return nil
}

// snapshotID returns the pool object a build-graph file stores its
// Snapshot under. Save/SaveWithGraph always intern the snapshot last
// (after any per-product graph objects), so it is always the
// highest-numbered record rather than a fixed ID.
func snapshotID(pool *persistence.Pool) types.ObjectID {
	return types.ObjectID(pool.Len())
}

// Load reads the build-graph file at path, validating it against
// configSnapshot. A missing file surfaces as errors.NoBuildGraphError, a
// configuration or schema mismatch as errors.SchemaMismatchError, and a
// truncated or unreadable file as errors.CorruptError — all produced by
// internal/persistence.LoadFile, not duplicated here.
func Load(path string, configSnapshot []byte) (Snapshot, error) {
	snap, _, err := LoadWithGraph(path, configSnapshot)
	return snap, err
}

// LoadWithGraph is Load plus the underlying pool, so a caller can also
// pull each product's StoredRuleNode set back out via LoadProductGraph
// (keyed by snap.ProductGraphs) and Reattach it onto a freshly resolved
// project.
func LoadWithGraph(path string, configSnapshot []byte) (Snapshot, *persistence.Pool, error) {
	pool, err := persistence.LoadFile(path, SchemaVersion, configSnapshot)
	if err != nil {
		return Snapshot{}, nil, err
	}
	data, _, err := pool.Get(snapshotID(pool))
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap, err := decode(path, data)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, pool, nil
}

func encode(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, kerrors.NewInternalError("buildgraph: snapshot is gob-encodable", err.Error(), nil)
	}
	return buf.Bytes(), nil
}

func decode(path string, data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return Snapshot{}, kerrors.NewCorruptError(path, err)
	}
	return snap, nil
}
