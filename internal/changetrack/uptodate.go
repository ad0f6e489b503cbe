package changetrack

// DependencySnapshot captures everything a transformer's prepare/command
// scripts read the last time they ran, so a later resolve can tell
// whether re-running them is unnecessary. It mirrors §4.7's four
// dependency kinds: property values, imported script files, dependency
// products' exported modules, and artifacts-map query results.
type DependencySnapshot struct {
	PropertyValues          map[string]string
	ArtifactPropertyValues  map[string]map[string]string
	ImportedFileHashes      map[string]uint64
	DependencyExportedModules map[string]map[string]string
	ArtifactsMapResults     map[string][]string
}

// UpToDate reports whether every recorded dependency of stored still
// holds against current. Any mismatch — a changed property value, a
// changed imported file, a dependency product that vanished or changed
// its exported modules, or a changed artifacts-map query result — means
// the transformer is stale and its commands need re-running.
func UpToDate(stored, current DependencySnapshot) bool {
	for k, v := range stored.PropertyValues {
		if current.PropertyValues[k] != v {
			return false
		}
	}
	for path, keys := range stored.ArtifactPropertyValues {
		curKeys := current.ArtifactPropertyValues[path]
		for k, v := range keys {
			if curKeys[k] != v {
				return false
			}
		}
	}
	for file, hash := range stored.ImportedFileHashes {
		curHash, ok := current.ImportedFileHashes[file]
		if !ok || curHash != hash {
			return false
		}
	}
	for dep, mods := range stored.DependencyExportedModules {
		curMods, ok := current.DependencyExportedModules[dep]
		if !ok {
			return false
		}
		for k, v := range mods {
			if curMods[k] != v {
				return false
			}
		}
	}
	for tag, paths := range stored.ArtifactsMapResults {
		if !equalStringSlice(paths, current.ArtifactsMapResults[tag]) {
			return false
		}
	}
	return true
}

func equalStringSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
