// Package config provides configuration loading helpers.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	userConfigDirName = ".config"
	configFileName    = "config.json"
	repoConfigDirName = "_stagehand"
	envPrefix         = "STAGEHAND_"
)

// Load resolves configuration in order of increasing precedence: documented
// defaults, user defaults (~/.config/stagehand/config.json), repo overrides
// (_stagehand/config.json), then STAGEHAND_-prefixed environment variables.
// Command-line flags are applied by the caller after Load returns.
func Load(repoRoot string, warn func(string)) (Config, error) {
	k := koanf.New(".")

	userPath, err := userConfigPath()
	if err != nil {
		return Config{}, err
	}
	if err := loadFileLayer(k, userPath, "user defaults"); err != nil {
		return Config{}, err
	}

	if repoRoot != "" {
		repoPath := filepath.Join(repoRoot, repoConfigDirName, configFileName)
		if err := loadFileLayer(k, repoPath, "repo overrides"); err != nil {
			return Config{}, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return Config{}, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return ApplyDefaults(cfg, warn), nil
}

// userConfigPath resolves the user defaults path for config.json.
func userConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, userConfigDirName, "stagehand", configFileName), nil
}

// loadFileLayer merges one JSON config file into the accumulated tree.
// Missing files are skipped so every layer stays optional.
func loadFileLayer(k *koanf.Koanf, path string, label string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s config %s: %w", label, path, err)
	}
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return fmt.Errorf("load %s config %s: %w", label, path, err)
	}
	return nil
}

// envKeyToPath maps STAGEHAND_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore splits the section so field names keep theirs.
func envKeyToPath(name string) string {
	trimmed := strings.TrimPrefix(name, envPrefix)
	lower := strings.ToLower(trimmed)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
