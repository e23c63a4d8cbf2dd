package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"slopos/itests"
)

// Manifest is itest's suite list, loaded from itests.yaml instead of a
// hardcoded switch over suite names, so adding a scenario suite to a
// run is data, not code. Grounded on tinyrange-cc's config-driven test
// tooling (its examples/*/spec.yaml-style suite descriptions).
type Manifest struct {
	Suites []string `yaml:"suites"`
}

// defaultManifest names every built-in suite, used when no
// itests.yaml is present.
func defaultManifest() Manifest {
	return Manifest{Suites: append([]string(nil), itests.SuiteNames...)}
}

// loadManifest reads and validates a suite manifest. A missing file at
// the default path falls back to defaultManifest rather than erroring,
// since most invocations don't need to curate the suite list.
func loadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == "itests.yaml" {
			return defaultManifest(), nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Suites) == 0 {
		return Manifest{}, fmt.Errorf("manifest %s names no suites", path)
	}
	for _, name := range m.Suites {
		if _, ok := itests.Suites[name]; !ok {
			return Manifest{}, fmt.Errorf("manifest %s names unknown suite %q", path, name)
		}
	}
	return m, nil
}
