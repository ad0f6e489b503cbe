package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

// Settings is the on-disk, project-independent overlay read from
// --settings-dir (§6). It plays the role the teacher's .lci.kdl plays for
// index tuning: a place for the environment ignore-list the change
// tracker needs (§4.7) and named build profiles, without polluting the
// project description itself.
type Settings struct {
	Version int `toml:"version"`

	// EnvIgnoreList lists environment variable names excluded from the
	// environment-snapshot comparison that triggers a full re-resolve
	// (§4.7: "environment (excluding a configurable ignore-list) differs").
	EnvIgnoreList []string `toml:"env_ignore_list"`

	// Profiles maps a profile name to its property overrides, the
	// build-configuration tree the resolver consults (§6).
	Profiles map[string]Profile `toml:"profiles"`

	// DefaultProfile names the profile used when none is given on the
	// command line.
	DefaultProfile string `toml:"default_profile"`
}

// Profile is one named build configuration: a flat set of property
// overrides layered onto the project description's defaults.
type Profile struct {
	Properties map[string]string `toml:"properties"`
}

// DefaultSettings returns an empty, valid Settings value.
func DefaultSettings() Settings {
	return Settings{
		Version:       1,
		EnvIgnoreList: []string{"PWD", "OLDPWD", "SHLVL", "_"},
		Profiles:      map[string]Profile{},
	}
}

// SettingsFileName is the file LoadSettings looks for inside
// --settings-dir.
const SettingsFileName = "settings.toml"

// LoadSettings reads <dir>/settings.toml, falling back to defaults when
// the directory has no settings file at all (a fresh --settings-dir is
// not an error).
func LoadSettings(dir string) (Settings, error) {
	settings := DefaultSettings()
	path := filepath.Join(dir, SettingsFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return Settings{}, kerrors.NewIOError("read", path, err)
	}

	if err := toml.Unmarshal(data, &settings); err != nil {
		return Settings{}, kerrors.NewConfigurationError("settings", path, nil, err)
	}

	if err := ValidateSettings(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes settings back to <dir>/settings.toml, creating dir if
// necessary.
func Save(dir string, settings Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kerrors.NewIOError("mkdir", dir, err)
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	path := filepath.Join(dir, SettingsFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return kerrors.NewIOError("write", path, err)
	}
	return nil
}

// ResolveProfile looks up name, falling back to DefaultProfile when name
// is empty, and returns a ConfigurationError with a suggestion (§1.2 of
// SPEC_FULL.md) when neither exists.
func (s Settings) ResolveProfile(name string) (Profile, error) {
	if name == "" {
		name = s.DefaultProfile
	}
	if name == "" {
		return Profile{}, nil
	}
	if p, ok := s.Profiles[name]; ok {
		return p, nil
	}
	known := make([]string, 0, len(s.Profiles))
	for n := range s.Profiles {
		known = append(known, n)
	}
	return Profile{}, kerrors.NewConfigurationError("profile", name, known, fmt.Errorf("unknown profile"))
}

// IsEnvIgnored reports whether key should be excluded from environment
// comparisons (§4.7).
func (s Settings) IsEnvIgnored(key string) bool {
	for _, ignored := range s.EnvIgnoreList {
		if ignored == key {
			return true
		}
	}
	return false
}
