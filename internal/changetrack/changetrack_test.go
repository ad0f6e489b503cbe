package changetrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/graph"
	"github.com/kestrel-build/kestrel/internal/registry"
	"github.com/kestrel-build/kestrel/internal/types"
)

func TestNeedsFullResolveOnConfigurationChange(t *testing.T) {
	c := FullResolveCheck{StoredConfigHash: 1, CurrentConfigHash: 2}
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Equal(t, "build configuration changed", reason)
}

func TestNeedsFullResolveOnEnvironmentChangeIgnoresListedKeys(t *testing.T) {
	c := FullResolveCheck{
		StoredEnvironment:  map[string]string{"PATH": "/a", "PWD": "/x"},
		CurrentEnvironment: map[string]string{"PATH": "/a", "PWD": "/y"},
		IgnoreEnvKeys:      map[string]struct{}{"PWD": {}},
	}
	needs, _ := c.NeedsFullResolve()
	require.False(t, needs)

	c.IgnoreEnvKeys = nil
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Equal(t, "environment changed", reason)
}

func TestNeedsFullResolveOnProbeReplayMismatch(t *testing.T) {
	store := registry.NewProbeStore()
	store.RecordExists("/src/gen.h", false)

	c := FullResolveCheck{
		Probes:     store,
		LiveProbes: ProbeSnapshot{Exists: map[string]bool{"/src/gen.h": true}},
	}
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Equal(t, "a replayed probe result changed", reason)
}

func TestNeedsFullResolveIgnoresUnrecordedProbes(t *testing.T) {
	store := registry.NewProbeStore()
	c := FullResolveCheck{
		Probes:     store,
		LiveProbes: ProbeSnapshot{Exists: map[string]bool{"/src/new.h": true}},
	}
	needs, _ := c.NeedsFullResolve()
	require.False(t, needs)
}

func TestNeedsFullResolveOnForcedProbeExecution(t *testing.T) {
	c := FullResolveCheck{ForceProbeExecution: true, AnyProbeExists: true}
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Equal(t, "probe execution forced", reason)

	c.AnyProbeExists = false
	needs, _ = c.NeedsFullResolve()
	require.False(t, needs)
}

func TestNeedsFullResolveOnProductRemoved(t *testing.T) {
	c := FullResolveCheck{Products: []ProductResolveCheck{{Name: "lib", Removed: true}}}
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Contains(t, reason, "lib")
}

func TestNeedsFullResolveOnDefiningFileNewerThanLastStart(t *testing.T) {
	lastStart := time.Unix(100, 0)
	c := FullResolveCheck{
		LastStartResolveTime: lastStart,
		Products: []ProductResolveCheck{{
			Name:                "app",
			DefiningFileModTime: time.Unix(200, 0),
		}},
	}
	needs, _ := c.NeedsFullResolve()
	require.True(t, needs)
}

func TestNeedsFullResolveOnWildcardSourceSetDiff(t *testing.T) {
	c := FullResolveCheck{
		Products: []ProductResolveCheck{{
			Name:                  "app",
			WildcardSources:       []string{"a.cpp", "b.cpp"},
			StoredWildcardSources: []string{"a.cpp"},
		}},
	}
	needs, _ := c.NeedsFullResolve()
	require.True(t, needs)
}

func TestNeedsFullResolveOnBuildSystemFileNewerThanReferenceTime(t *testing.T) {
	lastStart := time.Unix(100, 0)
	lastEnd := time.Unix(150, 0)
	c := FullResolveCheck{
		LastStartResolveTime: lastStart,
		LastEndResolveTime:   lastEnd,
		BuildSystemFiles: []BuildSystemFile{
			{Path: "project.kdl", ModTime: time.Unix(120, 0)},
		},
	}
	needs, reason := c.NeedsFullResolve()
	require.True(t, needs)
	require.Contains(t, reason, "project.kdl")

	// A provider-generated file is checked against lastEndResolveTime,
	// not lastStartResolveTime.
	c.BuildSystemFiles[0].ProviderGenerated = true
	c.BuildSystemFiles[0].ModTime = time.Unix(120, 0)
	needs, _ = c.NeedsFullResolve()
	require.False(t, needs)
}

func TestNeedsFullResolveFalseWhenNothingChanged(t *testing.T) {
	c := FullResolveCheck{
		StoredConfigHash:   1,
		CurrentConfigHash:  1,
		StoredEnvironment:  map[string]string{"PATH": "/a"},
		CurrentEnvironment: map[string]string{"PATH": "/a"},
	}
	needs, reason := c.NeedsFullResolve()
	require.False(t, needs)
	require.Empty(t, reason)
}

func TestClassifyProductsBasicCases(t *testing.T) {
	diffs := []ProductDiff{
		{Name: "a", RuleSetChanged: true},
		{Name: "b", SourceSetChanged: true},
		{Name: "c"},
	}
	status := ClassifyProducts(diffs)
	require.Equal(t, Changed, status["a"])
	require.Equal(t, FileListChanged, status["b"])
	require.Equal(t, Unchanged, status["c"])
}

func TestClassifyProductsPropagatesChangedTransitively(t *testing.T) {
	diffs := []ProductDiff{
		{Name: "core", RuleSetChanged: true},
		{Name: "lib", Dependencies: []string{"core"}},
		{Name: "app", Dependencies: []string{"lib"}},
		{Name: "unrelated"},
	}
	status := ClassifyProducts(diffs)
	require.Equal(t, Changed, status["core"])
	require.Equal(t, Changed, status["lib"])
	require.Equal(t, Changed, status["app"])
	require.Equal(t, Unchanged, status["unrelated"])
}

func TestCaptureRescuableAndReattach(t *testing.T) {
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")

	transformer := graph.NewTransformer(&graph.Rule{Name: "cxx"})
	out := graph.NewGeneratedArtifact("/build/main.o", transformer)
	out.FileTags = types.NewTagSet("obj")
	out.Properties = graph.NewPropertyMap(map[string]string{"cxxFlags": "-O2"})
	out.SetTimestamp(time.Unix(500, 0))
	require.NoError(t, p.AddArtifact(out))

	rescued := CaptureRescuable(p)
	require.Contains(t, rescued, "/build/main.o")
	require.True(t, rescued["/build/main.o"].HasTimestamp)

	// simulate re-resolve: a fresh product with a fresh artifact at the
	// same path but no timestamp or properties yet.
	proj2 := graph.NewProject("app")
	p2 := proj2.AddProduct("app")
	fresh := graph.NewGeneratedArtifact("/build/main.o", graph.NewTransformer(&graph.Rule{Name: "cxx"}))
	require.NoError(t, p2.AddArtifact(fresh))

	Reattach(rescued, p2)

	ts, ok := fresh.Timestamp()
	require.True(t, ok)
	require.Equal(t, time.Unix(500, 0), ts)
	require.NotNil(t, fresh.Properties)
}

func TestCaptureRescuableSkipsSourceArtifacts(t *testing.T) {
	proj := graph.NewProject("app")
	p := proj.AddProduct("app")
	src := graph.NewSourceArtifact("/src/main.cpp")
	require.NoError(t, p.AddArtifact(src))

	rescued := CaptureRescuable(p)
	require.Empty(t, rescued)
}

func TestUpToDateDetectsPropertyValueChange(t *testing.T) {
	stored := DependencySnapshot{PropertyValues: map[string]string{"cxxFlags": "-O2"}}
	current := DependencySnapshot{PropertyValues: map[string]string{"cxxFlags": "-O3"}}
	require.False(t, UpToDate(stored, current))

	current.PropertyValues["cxxFlags"] = "-O2"
	require.True(t, UpToDate(stored, current))
}

func TestUpToDateDetectsImportedFileChange(t *testing.T) {
	stored := DependencySnapshot{ImportedFileHashes: map[string]uint64{"helpers.js": 42}}
	current := DependencySnapshot{ImportedFileHashes: map[string]uint64{"helpers.js": 43}}
	require.False(t, UpToDate(stored, current))
}

func TestUpToDateDetectsMissingImportedFile(t *testing.T) {
	stored := DependencySnapshot{ImportedFileHashes: map[string]uint64{"helpers.js": 42}}
	current := DependencySnapshot{}
	require.False(t, UpToDate(stored, current))
}

func TestUpToDateDetectsVanishedDependencyProduct(t *testing.T) {
	stored := DependencySnapshot{DependencyExportedModules: map[string]map[string]string{"core": {"version": "1"}}}
	current := DependencySnapshot{}
	require.False(t, UpToDate(stored, current))
}

func TestUpToDateDetectsExportedModuleChange(t *testing.T) {
	stored := DependencySnapshot{DependencyExportedModules: map[string]map[string]string{"core": {"version": "1"}}}
	current := DependencySnapshot{DependencyExportedModules: map[string]map[string]string{"core": {"version": "2"}}}
	require.False(t, UpToDate(stored, current))
}

func TestUpToDateDetectsArtifactsMapResultChange(t *testing.T) {
	stored := DependencySnapshot{ArtifactsMapResults: map[string][]string{"header": {"a.h", "b.h"}}}
	current := DependencySnapshot{ArtifactsMapResults: map[string][]string{"header": {"a.h"}}}
	require.False(t, UpToDate(stored, current))
}

func TestUpToDateTrueWhenNothingRecordedChanged(t *testing.T) {
	stored := DependencySnapshot{
		PropertyValues:            map[string]string{"a": "1"},
		ArtifactPropertyValues:    map[string]map[string]string{"x.h": {"tag": "v"}},
		ImportedFileHashes:        map[string]uint64{"f.js": 1},
		DependencyExportedModules: map[string]map[string]string{"core": {"v": "1"}},
		ArtifactsMapResults:       map[string][]string{"header": {"a.h"}},
	}
	current := stored
	require.True(t, UpToDate(stored, current))
}
