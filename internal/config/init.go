// Package config provides configuration initialization helpers.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// repoLayout defines the directory tree stagehand init creates.
// Each entry is created with a .keep file so Git persists the tree.
var repoLayout = []string{
	"_stagehand",
	"_stagehand/features",
	"_stagehand/roles",
	filepath.Join("_stagehand", "_local-state"),
	filepath.Join("_stagehand", "_local-state", "logs"),
	filepath.Join("_stagehand", "_local-state", "prompts"),
	filepath.Join("_stagehand", "_local-state", "artifacts"),
	filepath.Join("_stagehand", "_local-state", "artifacts", "validation"),
}

// InitOptions configures init-time behaviors such as verbose logging.
type InitOptions struct {
	Verbose bool
	Writer  io.Writer
}

func (opts InitOptions) logf(format string, args ...interface{}) {
	if !opts.Verbose {
		return
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	fmt.Fprintf(writer, format+"\n", args...)
}

// InitRepoConfig creates the repository config directory and writes the
// documented defaults if no config file exists yet. Existing files are
// never overwritten.
func InitRepoConfig(repoRoot string, opts InitOptions) error {
	if repoRoot == "" {
		return fmt.Errorf("repo root cannot be empty")
	}

	configDir := filepath.Join(repoRoot, repoConfigDirName)
	configPath := filepath.Join(configDir, configFileName)

	if err := ensureDir(configDir, opts); err != nil {
		return fmt.Errorf("create config directory %s: %w", configDir, err)
	}

	exists, err := pathExists(configPath)
	if err != nil {
		return fmt.Errorf("check config file %s: %w", configPath, err)
	}
	if exists {
		return nil
	}

	configData, err := json.MarshalIndent(Defaults(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(configPath, configData, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", configPath, err)
	}
	opts.logf("created file %s", repoRelativePath(repoRoot, configPath))

	return nil
}

// InitFullLayout creates the complete _stagehand directory structure and
// default files. It is idempotent and will not overwrite existing files.
func InitFullLayout(repoRoot string, opts InitOptions) error {
	if repoRoot == "" {
		return fmt.Errorf("repo root cannot be empty")
	}

	for _, dir := range repoLayout {
		dirPath := filepath.Join(repoRoot, dir)
		if err := ensureDir(dirPath, opts); err != nil {
			return fmt.Errorf("create directory %s: %w", dirPath, err)
		}
		keepPath := filepath.Join(dirPath, ".keep")
		if err := ensureKeepFile(keepPath, opts); err != nil {
			return fmt.Errorf("create .keep file %s: %w", keepPath, err)
		}
	}

	if err := InitRepoConfig(repoRoot, opts); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	if err := ensureGitignore(repoRoot, opts); err != nil {
		return fmt.Errorf("create gitignore: %w", err)
	}

	return nil
}

// ensureGitignore keeps run-local state out of version control.
func ensureGitignore(repoRoot string, opts InitOptions) error {
	stateDir := filepath.Join(repoRoot, "_stagehand")
	if err := ensureDir(stateDir, opts); err != nil {
		return fmt.Errorf("create stagehand dir %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, ".gitignore")
	exists, err := pathExists(path)
	if err != nil {
		return fmt.Errorf("stat gitignore %s: %w", path, err)
	}
	if exists {
		return nil
	}
	content := "_local-state/*\n!_local-state/.keep\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write gitignore %s: %w", path, err)
	}
	opts.logf("created file %s", repoRelativePath(repoRoot, path))
	return nil
}

func ensureDir(path string, opts InitOptions) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists but is not a directory", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	opts.logf("created directory %s", path)
	return nil
}

func ensureKeepFile(path string, opts InitOptions) error {
	exists, err := pathExists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		return err
	}
	opts.logf("created file %s", path)
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func repoRelativePath(repoRoot, target string) string {
	rel, err := filepath.Rel(repoRoot, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
