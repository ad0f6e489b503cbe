package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/types"
)

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, 1, s.Version)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings()
	s.DefaultProfile = "release"
	s.Profiles["release"] = Profile{Properties: map[string]string{"qbs.optimization": "fast"}}

	require.NoError(t, Save(dir, s))

	loaded, err := LoadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, "release", loaded.DefaultProfile)
	require.Equal(t, "fast", loaded.Profiles["release"].Properties["qbs.optimization"])
}

func TestResolveProfileSuggestsNearestOnTypo(t *testing.T) {
	s := DefaultSettings()
	s.Profiles["release"] = Profile{}

	_, err := s.ResolveProfile("relese")
	require.Error(t, err)
	require.Contains(t, err.Error(), "release")
}

func TestResolveProfileEmptyUsesDefault(t *testing.T) {
	s := DefaultSettings()
	s.DefaultProfile = "release"
	s.Profiles["release"] = Profile{Properties: map[string]string{"x": "y"}}

	p, err := s.ResolveProfile("")
	require.NoError(t, err)
	require.Equal(t, "y", p.Properties["x"])
}

func TestIsEnvIgnored(t *testing.T) {
	s := DefaultSettings()
	require.True(t, s.IsEnvIgnored("PWD"))
	require.False(t, s.IsEnvIgnored("PATH"))
}

func TestEffectiveJobLimit(t *testing.T) {
	opts := DefaultBuildOptions()
	opts.JobLimitsPerPool[types.JobPool("link")] = 1

	require.Equal(t, 8, opts.EffectiveJobLimit(types.DefaultJobPool, 8))
	require.Equal(t, 1, opts.EffectiveJobLimit("link", 8))
	require.Equal(t, 8, opts.EffectiveJobLimit("compile", 8))
}

func TestValidateSettingsRejectsWrongType(t *testing.T) {
	// A settings file hand-edited with the wrong type for the version
	// field fails to load.
	dir := t.TempDir()
	badPath := filepath.Join(dir, SettingsFileName)
	require.NoError(t, os.WriteFile(badPath, []byte("version = \"not-a-number\"\n"), 0o644))

	_, err := LoadSettings(dir)
	require.Error(t, err)
}
