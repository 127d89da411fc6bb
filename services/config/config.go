// Package config resolves supervisor settings from named profiles and JSON
// override documents. An override only names the fields it changes; the
// rest keep the values of the base configuration.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"bmscode-go/services/supervisor"
)

// ProfileLookup allows overriding how profiles are resolved.
var ProfileLookup = func(name string) ([]byte, bool) {
	b, ok := embeddedProfiles[name]
	return b, ok
}

// Profiles lists the embedded profile names.
func Profiles() []string {
	names := make([]string, 0, len(embeddedProfiles))
	for n := range embeddedProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply decodes a JSON override onto base and validates the result.
// Unknown keys are rejected so a misspelt threshold cannot pass silently.
func Apply(base supervisor.Config, raw []byte) (supervisor.Config, error) {
	cfg := base
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return base, fmt.Errorf("decode override: %w", err)
	}
	if dec.More() {
		return base, fmt.Errorf("decode override: trailing data")
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load returns the default configuration with the named profile applied.
func Load(profile string) (supervisor.Config, error) {
	raw, ok := ProfileLookup(profile)
	if !ok {
		return supervisor.Config{}, fmt.Errorf("no profile %q", profile)
	}
	return Apply(supervisor.DefaultConfig(), raw)
}
