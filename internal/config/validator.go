package config

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

// settingsSchema mirrors the Settings struct's shape. ValidateSettings
// checks a Settings value's generic map form against it, in the spirit of
// the teacher's internal/config/validator.go range checks.
var settingsSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"version": {Type: "integer"},
		"env_ignore_list": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
		"default_profile": {Type: "string"},
		"profiles": {
			Type: "object",
			AdditionalProperties: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"properties": {
						Type:                 "object",
						AdditionalProperties: &jsonschema.Schema{Type: "string"},
					},
				},
			},
		},
	},
	Required: []string{"version"},
}

var resolvedSettingsSchema *jsonschema.Resolved

func resolvedSchema() (*jsonschema.Resolved, error) {
	if resolvedSettingsSchema != nil {
		return resolvedSettingsSchema, nil
	}
	resolved, err := settingsSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve settings schema: %w", err)
	}
	resolvedSettingsSchema = resolved
	return resolved, nil
}

// ValidateSettings checks s against settingsSchema by round-tripping it
// through its generic map form. The map is built from s's typed fields,
// so a value of the wrong type in settings.toml is rejected when the file
// is decoded into Settings, not by this check.
func ValidateSettings(s Settings) error {
	resolved, err := resolvedSchema()
	if err != nil {
		return err
	}

	instance := map[string]any{
		"version":         s.Version,
		"env_ignore_list": s.EnvIgnoreList,
		"default_profile": s.DefaultProfile,
	}
	profiles := make(map[string]any, len(s.Profiles))
	for name, p := range s.Profiles {
		props := make(map[string]any, len(p.Properties))
		for k, v := range p.Properties {
			props[k] = v
		}
		profiles[name] = map[string]any{"properties": props}
	}
	instance["profiles"] = profiles

	if err := resolved.Validate(instance); err != nil {
		return kerrors.NewConfigurationError("settings", "settings.toml", nil, err)
	}
	return nil
}
