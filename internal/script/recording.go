package script

import (
	"sort"

	"github.com/kestrel-build/kestrel/internal/graph"
)

// RecordingPropertyMap wraps a *graph.PropertyMap and records every key
// read through Get, so the engine can capture "the full set of property
// accesses performed during evaluation" into the transformer (§4.6)
// without a real scripting runtime's property-trap machinery.
type RecordingPropertyMap struct {
	underlying        *graph.PropertyMap
	accessed          map[string]struct{}
	artifactAccessed  map[string]map[string]struct{}
	importedFiles     map[string]struct{}
	deps              map[string]struct{}
	artifactsMapTags  map[string]struct{}
	exportedModules   map[string]struct{}
}

// NewRecordingPropertyMap wraps underlying for one script evaluation.
func NewRecordingPropertyMap(underlying *graph.PropertyMap) *RecordingPropertyMap {
	return &RecordingPropertyMap{
		underlying:       underlying,
		accessed:         make(map[string]struct{}),
		artifactAccessed: make(map[string]map[string]struct{}),
		importedFiles:    make(map[string]struct{}),
		deps:             make(map[string]struct{}),
		artifactsMapTags: make(map[string]struct{}),
		exportedModules:  make(map[string]struct{}),
	}
}

// Get reads key from the underlying property map, recording the access.
func (r *RecordingPropertyMap) Get(key string) (string, bool) {
	r.accessed[key] = struct{}{}
	if r.underlying == nil {
		return "", false
	}
	return r.underlying.Get(key)
}

// GetFromArtifact reads key from artifactPath's own property map,
// recording a per-artifact access (Transformer's
// PropertiesRequestedFromArtifactIn* fields).
func (r *RecordingPropertyMap) GetFromArtifact(artifactPath, key string, properties *graph.PropertyMap) (string, bool) {
	keys, ok := r.artifactAccessed[artifactPath]
	if !ok {
		keys = make(map[string]struct{})
		r.artifactAccessed[artifactPath] = keys
	}
	keys[key] = struct{}{}
	if properties == nil {
		return "", false
	}
	return properties.Get(key)
}

// NoteImportedFile records that a script imported path.
func (r *RecordingPropertyMap) NoteImportedFile(path string) { r.importedFiles[path] = struct{}{} }

// NoteDependency records that a script referenced a named dependency
// product (to check its exported modules are unchanged per §4.7).
func (r *RecordingPropertyMap) NoteDependency(name string) { r.deps[name] = struct{}{} }

// NoteArtifactsMapQuery records that a script queried the product's
// artifacts-map for tag.
func (r *RecordingPropertyMap) NoteArtifactsMapQuery(tag string) { r.artifactsMapTags[tag] = struct{}{} }

// NoteExportedModuleAccess records that a script read dependency
// product's exported module exportName.
func (r *RecordingPropertyMap) NoteExportedModuleAccess(exportName string) {
	r.exportedModules[exportName] = struct{}{}
}

// Access returns the accumulated record, with deterministic ordering.
func (r *RecordingPropertyMap) Access() Access {
	a := Access{
		Properties:             sortedKeys(r.accessed),
		PropertiesFromArtifact: make(map[string][]string, len(r.artifactAccessed)),
		ImportedFiles:          sortedKeys(r.importedFiles),
		Deps:                   sortedKeys(r.deps),
		ArtifactsMapTags:       sortedKeys(r.artifactsMapTags),
		ExportedModules:        sortedKeys(r.exportedModules),
	}
	for path, keys := range r.artifactAccessed {
		a.PropertiesFromArtifact[path] = sortedKeys(keys)
	}
	return a
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
