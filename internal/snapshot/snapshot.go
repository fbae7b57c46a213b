// Package snapshot captures content hashes of the working tree so steps can
// detect which files changed between turns without re-reading everything.
package snapshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// skipDirs names directories excluded from snapshots.
var skipDirs = map[string]struct{}{
	".git":         {},
	"_stagehand":   {},
	"node_modules": {},
	"vendor":       {},
}

// Scan walks the repository and returns git blob hashes keyed by path
// relative to the root, using forward slashes.
func Scan(repoRoot string) (map[string]string, error) {
	snapshot := make(map[string]string)

	err := filepath.WalkDir(repoRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if _, skip := skipDirs[entry.Name()]; skip && path != repoRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(repoRoot, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		snapshot[filepath.ToSlash(rel)] = plumbing.ComputeHash(plumbing.BlobObject, data).String()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan working tree: %w", err)
	}
	return snapshot, nil
}

// WorktreeChanges returns the paths git reports as modified, added, or
// untracked, sorted. A root that is not a git repository reports no changes.
func WorktreeChanges(repoRoot string) ([]string, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}

	var changed []string
	for path, fileStatus := range status {
		if fileStatus.Worktree == git.Unmodified && fileStatus.Staging == git.Unmodified {
			continue
		}
		changed = append(changed, path)
	}
	sort.Strings(changed)
	return changed, nil
}

// Diff compares two snapshots and returns added, modified, and removed
// paths, each sorted.
func Diff(previous map[string]string, current map[string]string) (added []string, modified []string, removed []string) {
	for path, hash := range current {
		before, ok := previous[path]
		switch {
		case !ok:
			added = append(added, path)
		case before != hash:
			modified = append(modified, path)
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)
	return added, modified, removed
}
