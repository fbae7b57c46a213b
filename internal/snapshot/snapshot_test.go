package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root string, rel string, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

// TestScanHashesFiles verifies the snapshot keys by relative path and skips
// excluded directories.
func TestScanHashesFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "web/index.html", "<html></html>\n")
	writeFile(t, root, "_stagehand/_local-state/state.json", "{}\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")

	snapshot, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("Scan() returned %d entries, want 2: %v", len(snapshot), snapshot)
	}
	if snapshot["main.go"] == "" {
		t.Fatal("Scan() missing hash for main.go")
	}
	if snapshot["web/index.html"] == "" {
		t.Fatal("Scan() missing hash for web/index.html")
	}
}

// TestScanStableHashes verifies identical content hashes identically.
func TestScanStableHashes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same\n")
	writeFile(t, root, "b.txt", "same\n")

	snapshot, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if snapshot["a.txt"] != snapshot["b.txt"] {
		t.Fatalf("Scan() hashes differ for identical content: %q vs %q", snapshot["a.txt"], snapshot["b.txt"])
	}
}

// TestWorktreeChangesOutsideRepo verifies plain directories report no
// changes rather than an error.
func TestWorktreeChangesOutsideRepo(t *testing.T) {
	changed, err := WorktreeChanges(t.TempDir())
	if err != nil {
		t.Fatalf("WorktreeChanges() error = %v", err)
	}
	if changed != nil {
		t.Fatalf("WorktreeChanges() = %v, want nil", changed)
	}
}

// TestDiff verifies added, modified, and removed paths are reported sorted.
func TestDiff(t *testing.T) {
	previous := map[string]string{
		"kept.go":    "h1",
		"changed.go": "h2",
		"gone.go":    "h3",
	}
	current := map[string]string{
		"kept.go":    "h1",
		"changed.go": "h2b",
		"new.go":     "h4",
	}

	added, modified, removed := Diff(previous, current)
	if len(added) != 1 || added[0] != "new.go" {
		t.Fatalf("Diff() added = %v, want [new.go]", added)
	}
	if len(modified) != 1 || modified[0] != "changed.go" {
		t.Fatalf("Diff() modified = %v, want [changed.go]", modified)
	}
	if len(removed) != 1 || removed[0] != "gone.go" {
		t.Fatalf("Diff() removed = %v, want [gone.go]", removed)
	}
}
