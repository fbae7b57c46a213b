package collab

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hollowbranch/stagehand/internal/templates"
)

const (
	// rolesFileName is the repo-relative role definition file.
	rolesFileName = "_stagehand/roles.yaml"
	// rolesDirName holds optional per-role prompt preambles.
	rolesDirName = "_stagehand/roles"

	// PlannerRole names the collaborator that drafts and decomposes work.
	PlannerRole = "planner"
	// ReviewerRole names the collaborator that reviews documents and code.
	ReviewerRole = "reviewer"
)

// Built-in CLI names.
const (
	CLICodex  = "codex"
	CLIClaude = "claude"
	CLIGemini = "gemini"
)

// RoleSpec configures how one collaborator role is invoked.
type RoleSpec struct {
	CLI         string   `yaml:"cli,omitempty"`
	Command     []string `yaml:"command,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// RoleSet maps collaborator roles to invocation settings.
type RoleSet struct {
	DefaultCLI string              `yaml:"default_cli"`
	Roles      map[string]RoleSpec `yaml:"roles"`
}

// BuiltInCommand returns the command template for a built-in CLI.
func BuiltInCommand(cli string) ([]string, bool) {
	switch cli {
	case CLICodex:
		return []string{"codex", "exec", "--sandbox=workspace-write", "{prompt_path}"}, true
	case CLIClaude:
		return []string{"claude", "--print", "{prompt_path}"}, true
	case CLIGemini:
		return []string{"gemini", "{prompt_path}"}, true
	default:
		return nil, false
	}
}

// IsValidCLI returns true if the CLI name is a known built-in.
func IsValidCLI(cli string) bool {
	_, ok := BuiltInCommand(cli)
	return ok
}

// DefaultRoleSet returns the role definitions used when no roles file exists.
func DefaultRoleSet() RoleSet {
	return RoleSet{
		DefaultCLI: CLIClaude,
		Roles: map[string]RoleSpec{
			PlannerRole:  {Description: "Drafts specifications and decomposes plans into tasks."},
			ReviewerRole: {Description: "Reviews documents and implementations."},
			"db":         {Description: "Schema and data layer work."},
			"logic":      {Description: "Application and business logic work."},
			"ui":         {Description: "Interface and presentation work."},
			"deploy":     {Description: "Release and deployment work."},
		},
	}
}

// LoadRoles reads role definitions from the repository, falling back to the
// built-in defaults when no roles file exists.
func LoadRoles(repoRoot string) (RoleSet, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return RoleSet{}, errors.New("repo root is required")
	}
	path := filepath.Join(repoRoot, filepath.FromSlash(rolesFileName))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRoleSet(), nil
		}
		return RoleSet{}, fmt.Errorf("read roles file %s: %w", path, err)
	}
	var set RoleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return RoleSet{}, fmt.Errorf("parse roles file %s: %w", path, err)
	}
	if strings.TrimSpace(set.DefaultCLI) == "" {
		set.DefaultCLI = CLIClaude
	}
	if !IsValidCLI(set.DefaultCLI) {
		return RoleSet{}, fmt.Errorf("unknown default cli %q", set.DefaultCLI)
	}
	for role, spec := range set.Roles {
		if spec.CLI != "" && !IsValidCLI(spec.CLI) {
			return RoleSet{}, fmt.Errorf("unknown cli %q for role %q", spec.CLI, role)
		}
	}
	return set, nil
}

// WriteDefaultRoles seeds the roles file and per-role prompt stubs for a
// fresh repository. Existing files are never overwritten.
func WriteDefaultRoles(repoRoot string, defaultCLI string) error {
	if strings.TrimSpace(repoRoot) == "" {
		return errors.New("repo root is required")
	}
	cli := strings.TrimSpace(defaultCLI)
	if cli == "" {
		cli = CLIClaude
	}
	if !IsValidCLI(cli) {
		return fmt.Errorf("unknown default cli %q", cli)
	}

	set := DefaultRoleSet()
	set.DefaultCLI = cli

	path := filepath.Join(repoRoot, filepath.FromSlash(rolesFileName))
	if _, err := os.Stat(path); err == nil {
		return writeRolePromptStubs(repoRoot, set)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat roles file %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create roles directory: %w", err)
	}
	data, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write roles file %s: %w", path, err)
	}
	return writeRolePromptStubs(repoRoot, set)
}

// writeRolePromptStubs creates one prompt preamble stub per role.
func writeRolePromptStubs(repoRoot string, set RoleSet) error {
	dir := filepath.Join(repoRoot, filepath.FromSlash(rolesDirName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create role prompts directory: %w", err)
	}
	names := make([]string, 0, len(set.Roles))
	for role := range set.Roles {
		names = append(names, role)
	}
	sort.Strings(names)
	for _, role := range names {
		path := filepath.Join(dir, role+".md")
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat role prompt %s: %w", path, err)
		}
		content, ok := templates.RolePreamble(role)
		if !ok {
			content = []byte(fmt.Sprintf("# Role: %s\n\n%s\n", role, set.Roles[role].Description))
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write role prompt %s: %w", path, err)
		}
	}
	return nil
}

// CommandFor selects the command template for the supplied role: the role's
// explicit command first, then its CLI, then the set default.
func (set RoleSet) CommandFor(role string) ([]string, error) {
	spec := set.Roles[role]
	if len(spec.Command) > 0 {
		return cloneStrings(spec.Command), nil
	}
	cli := spec.CLI
	if cli == "" {
		cli = set.DefaultCLI
	}
	if cli == "" {
		cli = CLIClaude
	}
	command, ok := BuiltInCommand(cli)
	if !ok {
		return nil, fmt.Errorf("unknown cli %q for role %q", cli, role)
	}
	return cloneStrings(command), nil
}

// ResolveCommand resolves the command for a role and fills template tokens.
func ResolveCommand(set RoleSet, role string, promptPath string, repoRoot string) ([]string, error) {
	if strings.TrimSpace(role) == "" {
		return nil, errors.New("role is required")
	}
	if strings.TrimSpace(promptPath) == "" {
		return nil, errors.New("prompt path is required")
	}
	template, err := set.CommandFor(role)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, len(template))
	replacedPrompt := false
	for i, token := range template {
		if strings.Contains(token, "{prompt_path}") {
			replacedPrompt = true
		}
		token = strings.ReplaceAll(token, "{prompt_path}", promptPath)
		token = strings.ReplaceAll(token, "{repo_root}", repoRoot)
		token = strings.ReplaceAll(token, "{role}", role)
		resolved[i] = token
	}
	if !replacedPrompt {
		return nil, fmt.Errorf("command for role %q must include {prompt_path}", role)
	}
	return resolved, nil
}

// rolePrompt loads the optional prompt preamble for a role.
func rolePrompt(repoRoot string, role string) (string, error) {
	path := filepath.Join(repoRoot, filepath.FromSlash(rolesDirName), role+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read role prompt %s: %w", path, err)
	}
	return string(data), nil
}

// cloneStrings copies a string slice to avoid shared references.
func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}
