package graph

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// PropertyMap is the resolved, flattened set of module properties visible
// to one artifact (§3 "properties (reference to an interned module-
// property map)"). Property maps are interned by content: two artifacts
// with identical property values share one *PropertyMap, the way the
// persistence pool (internal/persistence) interns any other object, so
// equality is an identity check and the map can be used as a cheap
// dependency-scanner cache key (§4.5).
type PropertyMap struct {
	Values       map[string]string
	fingerprint  uint64
	fingerprinted bool
}

// NewPropertyMap builds a PropertyMap from values. The map is copied so
// later mutation of the caller's map does not change an already-interned
// PropertyMap's identity.
func NewPropertyMap(values map[string]string) *PropertyMap {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &PropertyMap{Values: copied}
}

// Fingerprint returns a content hash of the property map, stable across
// calls and independent of Go's map iteration order. It is used as the
// per-file scanner cache key of §4.5: a file's scan result can be reused
// across builds as long as its effective properties fingerprint the same.
func (p *PropertyMap) Fingerprint() uint64 {
	if p.fingerprinted {
		return p.fingerprint
	}
	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, p.Values[k])
	}
	p.fingerprint = h.Sum64()
	p.fingerprinted = true
	return p.fingerprint
}

// Get returns a property value and whether it was present.
func (p *PropertyMap) Get(key string) (string, bool) {
	v, ok := p.Values[key]
	return v, ok
}

// PropertyInterner deduplicates PropertyMap values by fingerprint so
// artifacts with identical properties share one instance, matching the
// "interned module-property map" reference of §3.
type PropertyInterner struct {
	byFingerprint map[uint64]*PropertyMap
}

// NewPropertyInterner returns an empty interner.
func NewPropertyInterner() *PropertyInterner {
	return &PropertyInterner{byFingerprint: make(map[uint64]*PropertyMap)}
}

// Intern returns the canonical *PropertyMap for values: either a
// previously-interned map with the same fingerprint, or a freshly stored
// one.
func (pi *PropertyInterner) Intern(values map[string]string) *PropertyMap {
	candidate := NewPropertyMap(values)
	fp := candidate.Fingerprint()
	if existing, ok := pi.byFingerprint[fp]; ok {
		return existing
	}
	pi.byFingerprint[fp] = candidate
	return candidate
}
