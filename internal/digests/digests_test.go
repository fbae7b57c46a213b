package digests

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hollowbranch/stagehand/internal/specdoc"
)

func writeDoc(t *testing.T, root string, kind specdoc.Kind, content string) {
	t.Helper()
	if err := specdoc.Write(root, "checkout", kind, content); err != nil {
		t.Fatalf("Write(%s) error = %v", kind, err)
	}
}

// TestComputeCoversApprovedDocuments verifies only the frozen document set is
// fingerprinted.
func TestComputeCoversApprovedDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, specdoc.KindSpec, "# Spec\n")
	writeDoc(t, root, specdoc.KindClarifications, "#1: use OAuth\n")
	writeDoc(t, root, specdoc.KindPlan, "# Plan\n")

	got, err := Compute(root, "checkout")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Compute() returned %d entries, want 2: %v", len(got), got)
	}
	for _, name := range []string{"spec.md", "clarifications.md"} {
		digest, ok := got[name]
		if !ok {
			t.Fatalf("Compute() missing %s", name)
		}
		if !strings.HasPrefix(digest, "sha256:") {
			t.Fatalf("digest for %s = %q, want sha256 prefix", name, digest)
		}
	}
	if _, ok := got["plan.md"]; ok {
		t.Fatal("Compute() fingerprinted plan.md, which is execution-owned")
	}
}

// TestDetectReportsChangedAndRemovedDocs verifies edits and deletions after
// approval surface as drift.
func TestDetectReportsChangedAndRemovedDocs(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, specdoc.KindSpec, "# Spec v1\n")
	writeDoc(t, root, specdoc.KindClarifications, "#1: use OAuth\n")

	stored, err := Compute(root, "checkout")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	writeDoc(t, root, specdoc.KindSpec, "# Spec v2\n")
	clarPath := filepath.Join(specdoc.FeatureDir(root, "checkout"), "clarifications.md")
	if err := os.Remove(clarPath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	drift, err := Detect(root, "checkout", stored)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !drift.HasDrift {
		t.Fatal("Detect() reported no drift after edits")
	}
	if len(drift.Details) != 2 {
		t.Fatalf("Detect() details = %v, want 2 entries", drift.Details)
	}
	if drift.Details[0] != "clarifications.md was removed after approval" {
		t.Fatalf("details[0] = %q", drift.Details[0])
	}
	if drift.Details[1] != "spec.md changed after approval" {
		t.Fatalf("details[1] = %q", drift.Details[1])
	}
	if !strings.Contains(drift.Message, "approved documents drifted") {
		t.Fatalf("message = %q", drift.Message)
	}
}

// TestDetectUnchangedDocuments verifies a quiet repository reports no drift.
func TestDetectUnchangedDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, specdoc.KindSpec, "# Spec\n")

	stored, err := Compute(root, "checkout")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	drift, err := Detect(root, "checkout", stored)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if drift.HasDrift {
		t.Fatalf("Detect() reported drift: %v", drift.Details)
	}
}
