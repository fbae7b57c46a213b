// Package repo resolves the repository root a stagehand command operates on.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// stagehandDirName marks an initialized stagehand repository.
	stagehandDirName = "_stagehand"
	// gitDirName marks a git repository root.
	gitDirName = ".git"
)

// ErrRootNotFound is returned when no repository root can be discovered.
var ErrRootNotFound = errors.New("no repository root found")

// DiscoverRootFromCWD resolves the repository root from the current working
// directory.
func DiscoverRootFromCWD() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return DiscoverRoot(cwd)
}

// DiscoverRoot walks upward from start and returns the nearest directory
// containing a _stagehand layout. When none exists the nearest git root wins,
// so a first run lands its state at the repository top level.
func DiscoverRoot(start string) (string, error) {
	if start == "" {
		return "", fmt.Errorf("%w: provide a start directory or run inside a repo", ErrRootNotFound)
	}

	absStart, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %s: %w", start, err)
	}
	absStart, err = filepath.EvalSymlinks(absStart)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks for %s: %w", absStart, err)
	}
	info, err := os.Stat(absStart)
	if err != nil {
		return "", fmt.Errorf("stat start path %s: %w", absStart, err)
	}

	current := absStart
	if !info.IsDir() {
		current = filepath.Dir(absStart)
	}

	gitRoot := ""
	for {
		found, err := hasEntry(current, stagehandDirName)
		if err != nil {
			return "", err
		}
		if found {
			return current, nil
		}
		if gitRoot == "" {
			found, err := hasEntry(current, gitDirName)
			if err != nil {
				return "", err
			}
			if found {
				gitRoot = current
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	if gitRoot != "" {
		return gitRoot, nil
	}
	return "", fmt.Errorf("%w from %s; run stagehand init or pass --repo", ErrRootNotFound, absStart)
}

// hasEntry reports whether the directory contains the named entry. A .git
// file counts because linked worktrees store one in place of the directory.
func hasEntry(dir string, name string) (bool, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir() || info.Mode().IsRegular(), nil
}
