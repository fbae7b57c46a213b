// Tests for repository root discovery.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDiscoverRootFromNestedDir verifies nested paths resolve to the
// enclosing stagehand layout.
func TestDiscoverRootFromNestedDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, stagehandDirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", nested, err)
	}

	got, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	want := canonicalPath(t, root)
	if got != want {
		t.Fatalf("repo root = %s, want %s", got, want)
	}
}

// TestDiscoverRootFallsBackToGit verifies an uninitialized repository
// resolves to its git root.
func TestDiscoverRootFallsBackToGit(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, gitDirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(root, "pkg", "inner")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", nested, err)
	}

	got, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	want := canonicalPath(t, root)
	if got != want {
		t.Fatalf("repo root = %s, want %s", got, want)
	}
}

// TestDiscoverRootPrefersStagehandLayout verifies an initialized subproject
// wins over an enclosing git root.
func TestDiscoverRootPrefersStagehandLayout(t *testing.T) {
	outer := t.TempDir()
	if err := os.MkdirAll(filepath.Join(outer, gitDirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	service := filepath.Join(outer, "service")
	if err := os.MkdirAll(filepath.Join(service, stagehandDirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(service, "internal")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", nested, err)
	}

	got, err := DiscoverRoot(nested)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	want := canonicalPath(t, service)
	if got != want {
		t.Fatalf("repo root = %s, want %s", got, want)
	}
}

// TestDiscoverRootWithGitFile verifies a .git file marks a linked worktree
// root.
func TestDiscoverRootWithGitFile(t *testing.T) {
	root := t.TempDir()
	gitFile := filepath.Join(root, gitDirName)
	if err := os.WriteFile(gitFile, []byte("gitdir: /tmp/nowhere\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", gitFile, err)
	}

	got, err := DiscoverRoot(root)
	if err != nil {
		t.Fatalf("discover root: %v", err)
	}
	want := canonicalPath(t, root)
	if got != want {
		t.Fatalf("repo root = %s, want %s", got, want)
	}
}

// TestDiscoverRootMissingRepo verifies a clear error is returned outside any
// repository.
func TestDiscoverRootMissingRepo(t *testing.T) {
	dir := t.TempDir()

	_, err := DiscoverRoot(dir)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("expected ErrRootNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "--repo") {
		t.Fatalf("expected guidance to pass --repo, got %q", err.Error())
	}
}

// canonicalPath resolves symlinks to provide a stable comparison path.
func canonicalPath(t *testing.T, path string) string {
	t.Helper()

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("eval symlinks %s: %v", path, err)
	}
	return resolved
}
