// Package scenario loads and runs YAML end-to-end scenarios against a
// running loyaltynft service and its contract twin.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a named sequence of requests with assertions.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Setup       Setup  `yaml:"setup"`
	Steps       []Step `yaml:"steps"`
}

// Setup resets and seeds services before the steps run. Services are
// named as in the runner's targets.
type Setup struct {
	Reset []string          `yaml:"reset"`
	Seed  map[string]string `yaml:"seed"`
}

// Step is a single request/assert pair. Capture stores values from the
// JSON response as variables for later steps, keyed by variable name.
type Step struct {
	Name    string            `yaml:"name"`
	Request Request           `yaml:"request"`
	Assert  Assert            `yaml:"assert"`
	Capture map[string]string `yaml:"capture"`
}

// Request is sent to Service's base URL joined with Path, or to URL when
// set.
type Request struct {
	Method  string            `yaml:"method"`
	Service string            `yaml:"service"`
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

// Assert holds the expected results of a step. BodyJSON keys are paths
// such as "record.loyaltyLevel" or "[0].id".
type Assert struct {
	Status       int               `yaml:"status"`
	BodyContains string            `yaml:"body_contains"`
	BodyJSON     map[string]string `yaml:"body_json"`
}

// LoadScenario parses a single YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported scenario format %q (expected .yaml or .yml)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	for i, st := range s.Steps {
		if st.Request.URL == "" && st.Request.Service == "" {
			return nil, fmt.Errorf("scenario %s: step %d: service or url is required", path, i+1)
		}
	}
	return &s, nil
}

// Load reads path as a single scenario, or every .yaml and .yml file in it
// when path is a directory.
func Load(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		return []*Scenario{s}, nil
	}
	return LoadDir(path)
}

// LoadDir loads all .yaml and .yml scenario files from a directory.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	return scenarios, nil
}
