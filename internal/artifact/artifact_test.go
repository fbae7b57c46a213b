package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestSaveCommandLogWritesHeaderAndOutput verifies log artifacts carry the
// command header and captured output.
func TestSaveCommandLogWritesHeaderAndOutput(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	rel, err := SaveCommandLog(root, "build", "go build ./...", "ok", at)
	if err != nil {
		t.Fatalf("SaveCommandLog() error = %v", err)
	}
	want := filepath.Join(validationDirName, "build_20260314T092653.log")
	if rel != want {
		t.Fatalf("SaveCommandLog() path = %q, want %q", rel, want)
	}

	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "# command: go build ./...") {
		t.Fatalf("log missing command header: %q", content)
	}
	if !strings.HasSuffix(content, "ok\n") {
		t.Fatalf("log missing output: %q", content)
	}
}

// TestSaveCommandLogRequiresType verifies empty log types are rejected.
func TestSaveCommandLogRequiresType(t *testing.T) {
	if _, err := SaveCommandLog(t.TempDir(), "  ", "true", "", time.Now()); err == nil {
		t.Fatal("SaveCommandLog() expected error for blank log type")
	}
}

// TestCountByType verifies artifact tallies group by type prefix.
func TestCountByType(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if _, err := SaveCommandLog(root, "build", "go build ./...", "ok", at); err != nil {
		t.Fatalf("SaveCommandLog() error = %v", err)
	}
	if _, err := SaveCommandLog(root, "test", "go test ./...", "ok", at.Add(time.Second)); err != nil {
		t.Fatalf("SaveCommandLog() error = %v", err)
	}
	if _, err := SaveCommandLog(root, "test", "go test ./...", "ok", at.Add(2*time.Second)); err != nil {
		t.Fatalf("SaveCommandLog() error = %v", err)
	}

	counts, err := CountByType(root)
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if counts["build"] != 1 || counts["test"] != 2 {
		t.Fatalf("CountByType() = %v, want build=1 test=2", counts)
	}
}

// TestCountByTypeMissingDir verifies a repo without artifacts yields empty
// counts rather than an error.
func TestCountByTypeMissingDir(t *testing.T) {
	counts, err := CountByType(t.TempDir())
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("CountByType() = %v, want empty", counts)
	}
}

// TestAppendRunLogAccumulates verifies run log lines stack up in one file
// and stay out of the per-type tallies.
func TestAppendRunLogAccumulates(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if err := AppendRunLog(root, "validation", "starting checks", at); err != nil {
		t.Fatalf("AppendRunLog() error = %v", err)
	}
	if err := AppendRunLog(root, "validation", "checks passed", at.Add(time.Minute)); err != nil {
		t.Fatalf("AppendRunLog() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(Dir(root), "validation.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Count(string(data), "\n")
	if lines != 2 {
		t.Fatalf("run log has %d lines, want 2: %q", lines, string(data))
	}

	counts, err := CountByType(root)
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("CountByType() = %v, want run logs excluded", counts)
	}
}

// TestWriteSummary verifies the summary file lands in the artifact dir.
func TestWriteSummary(t *testing.T) {
	root := t.TempDir()
	summary := Summary{
		FeatureID: "feat-1",
		Passed:    true,
		Phases:    map[string]string{"build": "passed", "test": "passed"},
		Logs:      []string{"build_20260314T090000.log"},
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if err := WriteSummary(root, summary); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(Dir(root), summaryFileName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"feature_id": "feat-1"`) {
		t.Fatalf("summary missing feature id: %q", string(data))
	}

	loaded, found, err := LoadSummary(root)
	if err != nil {
		t.Fatalf("LoadSummary() error = %v", err)
	}
	if !found {
		t.Fatal("LoadSummary() did not find written summary")
	}
	if loaded.FeatureID != "feat-1" || !loaded.Passed {
		t.Fatalf("LoadSummary() = %+v", loaded)
	}
}

// TestLoadSummaryMissing verifies a repo without a summary reports absent.
func TestLoadSummaryMissing(t *testing.T) {
	_, found, err := LoadSummary(t.TempDir())
	if err != nil {
		t.Fatalf("LoadSummary() error = %v", err)
	}
	if found {
		t.Fatal("LoadSummary() reported a summary that does not exist")
	}
}
