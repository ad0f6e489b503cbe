package scanner

import (
	"sync"

	"github.com/kestrel-build/kestrel/internal/graph"
)

// cacheEntry pairs a stored Result with the property map it was produced
// under, so a lookup can re-check AreModulePropertiesCompatible before
// accepting the cached value.
type cacheEntry struct {
	properties *graph.PropertyMap
	result     Result
}

// RawScanResults is the per-file scanner result cache of §4.5, keyed by
// (scanner.id, file, properties class). Reuse across builds requires
// Scanner.AreModulePropertiesCompatible to accept the stored properties
// against the newly requested ones, not just an equal fingerprint, since
// two fingerprints can differ on properties the scanner never reads.
type RawScanResults struct {
	mu      sync.Mutex
	entries map[rawKey]cacheEntry
}

type rawKey struct {
	scannerID   string
	file        string
	fingerprint uint64
}

// NewRawScanResults returns an empty cache.
func NewRawScanResults() *RawScanResults {
	return &RawScanResults{entries: make(map[rawKey]cacheEntry)}
}

// Lookup returns a cached result for (s, file, properties) if one exists
// and s considers its stored properties compatible with properties.
func (c *RawScanResults) Lookup(s Scanner, file string, properties *graph.PropertyMap) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rawKey{scannerID: s.ID(), file: file, fingerprint: properties.Fingerprint()}
	if entry, ok := c.entries[key]; ok && s.AreModulePropertiesCompatible(entry.properties, properties) {
		return entry.result, true
	}
	// An entry stored under another fingerprint is still reusable when the
	// two maps differ only on properties s never reads.
	for k, entry := range c.entries {
		if k.scannerID == key.scannerID && k.file == file && s.AreModulePropertiesCompatible(entry.properties, properties) {
			return entry.result, true
		}
	}
	return Result{}, false
}

// Store records result for (s, file, properties), replacing any prior
// entry under the same key.
func (c *RawScanResults) Store(s Scanner, file string, properties *graph.PropertyMap, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rawKey{scannerID: s.ID(), file: file, fingerprint: properties.Fingerprint()}
	c.entries[key] = cacheEntry{properties: properties, result: result}
}

// Invalidate drops every cached entry for file, across all scanners. Used
// when a rescan is forced regardless of property compatibility.
func (c *RawScanResults) Invalidate(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.file == file {
			delete(c.entries, key)
		}
	}
}
