// Package validate checks task output and the assembled project: syntax
// sweeps per role, profile-driven build and test runs, and healthchecks.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// profileYAMLName is the preferred project profile filename.
	profileYAMLName = "project_profile.yaml"
	// profileJSONName is the fallback project profile filename.
	profileJSONName = "project_profile.json"
	// defaultHealthcheckTimeout applies when the profile omits one.
	defaultHealthcheckTimeout = 30
)

// commandList accepts either a single command string or a list of them.
type commandList []string

// UnmarshalYAML decodes a scalar or sequence into the command list.
func (c *commandList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*c = nil
		if strings.TrimSpace(single) != "" {
			*c = commandList{single}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*c = nil
		for _, item := range items {
			if strings.TrimSpace(item) != "" {
				*c = append(*c, item)
			}
		}
		return nil
	default:
		return fmt.Errorf("commands must be a string or list")
	}
}

// UnmarshalJSON decodes a string or array into the command list.
func (c *commandList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*c = nil
		for _, item := range items {
			if strings.TrimSpace(item) != "" {
				*c = append(*c, item)
			}
		}
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return errors.New("commands must be a string or list")
	}
	*c = nil
	if strings.TrimSpace(single) != "" {
		*c = commandList{single}
	}
	return nil
}

// Healthcheck describes how to probe the running project.
type Healthcheck struct {
	Type    string `yaml:"type" json:"type"`
	Value   string `yaml:"value" json:"value"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// UnmarshalYAML accepts either a mapping or a bare URL string.
func (h *Healthcheck) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var url string
		if err := value.Decode(&url); err != nil {
			return err
		}
		*h = Healthcheck{Type: "url", Value: url, Timeout: defaultHealthcheckTimeout}
		return nil
	}

	type plain Healthcheck
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*h = Healthcheck(decoded)
	h.applyDefaults()
	return nil
}

// UnmarshalJSON accepts either an object or a bare URL string.
func (h *Healthcheck) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		*h = Healthcheck{Type: "url", Value: url, Timeout: defaultHealthcheckTimeout}
		return nil
	}

	type plain Healthcheck
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*h = Healthcheck(decoded)
	h.applyDefaults()
	return nil
}

func (h *Healthcheck) applyDefaults() {
	if strings.TrimSpace(h.Type) == "" {
		h.Type = "url"
	}
	if h.Timeout <= 0 {
		h.Timeout = defaultHealthcheckTimeout
	}
}

// Profile models project_profile.yaml, which declares how the generated
// project is built, tested, run, and probed.
type Profile struct {
	BuildCommands commandList  `yaml:"build_commands" json:"build_commands"`
	TestCommands  commandList  `yaml:"test_commands" json:"test_commands"`
	RunCommands   commandList  `yaml:"run_commands" json:"run_commands"`
	Healthcheck   *Healthcheck `yaml:"healthcheck" json:"healthcheck"`
	SmokeChecks   commandList  `yaml:"smoke_checks" json:"smoke_checks"`
}

// IsService reports whether the project runs as a service, meaning it has
// both run commands and a healthcheck.
func (p *Profile) IsService() bool {
	return p != nil && len(p.RunCommands) > 0 && p.Healthcheck != nil
}

// HasProfile reports whether a project profile exists in the repository.
func HasProfile(repoRoot string) bool {
	for _, name := range []string{profileYAMLName, profileJSONName} {
		if _, err := os.Stat(filepath.Join(repoRoot, name)); err == nil {
			return true
		}
	}
	return false
}

// LoadProfile reads the project profile, preferring YAML over JSON. A
// missing profile returns nil without an error.
func LoadProfile(repoRoot string) (*Profile, error) {
	yamlPath := filepath.Join(repoRoot, profileYAMLName)
	if data, err := os.ReadFile(yamlPath); err == nil {
		var profile Profile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
		return &profile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", yamlPath, err)
	}

	jsonPath := filepath.Join(repoRoot, profileJSONName)
	if data, err := os.ReadFile(jsonPath); err == nil {
		var profile Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", jsonPath, err)
		}
		return &profile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", jsonPath, err)
	}

	return nil, nil
}
