package registry

import (
	"sync"
	"time"
)

// ProbeStore records the four kinds of filesystem query the change
// tracker replays on reload (§4.2, §4.6): canonical-path resolution,
// existence checks, directory enumerations, and last-modified queries.
// Each Record call remembers the outcome; a later build creates a fresh
// ProbeStore from live results and compares it against the one loaded
// from the persisted graph to decide whether a full re-resolve is needed.
type ProbeStore struct {
	mu sync.RWMutex

	canonicalPath map[string]string
	exists        map[string]bool
	dirEntries    map[string][]string
	lastModified  map[string]time.Time
}

// NewProbeStore returns an empty probe store.
func NewProbeStore() *ProbeStore {
	return &ProbeStore{
		canonicalPath: make(map[string]string),
		exists:        make(map[string]bool),
		dirEntries:    make(map[string][]string),
		lastModified:  make(map[string]time.Time),
	}
}

// RecordCanonicalPath remembers that raw canonicalized to canonical.
func (p *ProbeStore) RecordCanonicalPath(raw, canonical string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canonicalPath[raw] = canonical
}

// CanonicalPath returns the recorded canonicalization of raw, if any.
func (p *ProbeStore) CanonicalPath(raw string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.canonicalPath[raw]
	return v, ok
}

// RecordExists remembers whether path existed at probe time.
func (p *ProbeStore) RecordExists(path string, exists bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exists[path] = exists
}

// Exists returns the recorded existence probe for path, if any.
func (p *ProbeStore) Exists(path string) (bool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.exists[path]
	return v, ok
}

// RecordDirEntries remembers dir's entry names at enumeration time. The
// slice is copied and sorted by the caller before recording so replay
// comparisons are order-independent.
func (p *ProbeStore) RecordDirEntries(dir string, entries []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirEntries[dir] = append([]string(nil), entries...)
}

// DirEntries returns the recorded enumeration of dir, if any.
func (p *ProbeStore) DirEntries(dir string) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.dirEntries[dir]
	return append([]string(nil), v...), ok
}

// RecordLastModified remembers path's modification time at probe time.
func (p *ProbeStore) RecordLastModified(path string, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastModified[path] = t
}

// LastModified returns the recorded modification time for path, if any.
func (p *ProbeStore) LastModified(path string) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.lastModified[path]
	return v, ok
}

// CanonicalPathDiffers reports whether raw has a recorded canonicalization
// that differs from live. A raw path with no recorded probe is not a
// difference — it is new, not changed.
func (p *ProbeStore) CanonicalPathDiffers(raw, live string) bool {
	stored, ok := p.CanonicalPath(raw)
	return ok && stored != live
}

// ExistsDiffers reports whether path's recorded existence probe differs
// from live.
func (p *ProbeStore) ExistsDiffers(path string, live bool) bool {
	stored, ok := p.Exists(path)
	return ok && stored != live
}

// DirEntriesDiffer reports whether dir's recorded enumeration differs from
// live. Both slices are assumed pre-sorted by the caller.
func (p *ProbeStore) DirEntriesDiffer(dir string, live []string) bool {
	stored, ok := p.DirEntries(dir)
	if !ok {
		return false
	}
	if len(stored) != len(live) {
		return true
	}
	for i := range stored {
		if stored[i] != live[i] {
			return true
		}
	}
	return false
}

// LastModifiedDiffers reports whether path's recorded last-modified probe
// differs from live.
func (p *ProbeStore) LastModifiedDiffers(path string, live time.Time) bool {
	stored, ok := p.LastModified(path)
	return ok && !stored.Equal(live)
}

// ProbeSnapshot is a gob-friendly copy of a ProbeStore's contents, for
// persisting replay data across a build (§4.1, §4.7).
type ProbeSnapshot struct {
	CanonicalPath map[string]string
	Exists        map[string]bool
	DirEntries    map[string][]string
	LastModified  map[string]time.Time
}

// Snapshot copies p's contents out for persistence.
func (p *ProbeStore) Snapshot() ProbeSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := ProbeSnapshot{
		CanonicalPath: make(map[string]string, len(p.canonicalPath)),
		Exists:        make(map[string]bool, len(p.exists)),
		DirEntries:    make(map[string][]string, len(p.dirEntries)),
		LastModified:  make(map[string]time.Time, len(p.lastModified)),
	}
	for k, v := range p.canonicalPath {
		snap.CanonicalPath[k] = v
	}
	for k, v := range p.exists {
		snap.Exists[k] = v
	}
	for k, v := range p.dirEntries {
		snap.DirEntries[k] = append([]string(nil), v...)
	}
	for k, v := range p.lastModified {
		snap.LastModified[k] = v
	}
	return snap
}

// NewProbeStoreFromSnapshot rebuilds a ProbeStore from a previously
// captured ProbeSnapshot, e.g. one decoded from the persisted build graph.
func NewProbeStoreFromSnapshot(snap ProbeSnapshot) *ProbeStore {
	p := NewProbeStore()
	for k, v := range snap.CanonicalPath {
		p.canonicalPath[k] = v
	}
	for k, v := range snap.Exists {
		p.exists[k] = v
	}
	for k, v := range snap.DirEntries {
		p.dirEntries[k] = append([]string(nil), v...)
	}
	for k, v := range snap.LastModified {
		p.lastModified[k] = v
	}
	return p
}
