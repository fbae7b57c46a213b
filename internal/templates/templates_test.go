// Package templates tests embedded template loading and validation.
package templates

import (
	"bytes"
	"errors"
	"io/fs"
	"testing"
)

// TestReadRequiredTemplates ensures required templates are embedded and ASCII.
func TestReadRequiredTemplates(t *testing.T) {
	for _, name := range Required() {
		data, err := Read(name)
		if err != nil {
			t.Fatalf("expected template %s to load: %v", name, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			t.Fatalf("expected template %s to be non-empty", name)
		}
		if !isASCII(data) {
			t.Fatalf("expected template %s to be ASCII", name)
		}
	}
}

// TestRolePreambleFallsBackForCustomRoles verifies unknown roles report false.
func TestRolePreambleFallsBackForCustomRoles(t *testing.T) {
	if _, ok := RolePreamble("planner"); !ok {
		t.Fatal("expected built-in planner preamble")
	}
	if _, ok := RolePreamble("sre"); ok {
		t.Fatal("expected no preamble for a custom role")
	}
}

// TestReadMissingTemplate returns a not-found error for unknown templates.
func TestReadMissingTemplate(t *testing.T) {
	_, err := Read("roles/missing.md")
	if err == nil {
		t.Fatal("expected error for missing template")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

// TestReadInvalidName rejects invalid lookup keys.
func TestReadInvalidName(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"/roles/planner.md",
		"roles//planner.md",
		"roles/../roles/planner.md",
		"roles/./planner.md",
		"roles\\planner.md",
		"other/planner.md",
	}
	for _, name := range cases {
		if _, err := Read(name); err == nil {
			t.Fatalf("expected error for invalid name %q", name)
		}
	}
}

// isASCII reports whether all bytes are valid ASCII characters.
func isASCII(data []byte) bool {
	for _, b := range data {
		if b > 0x7f {
			return false
		}
	}
	return true
}
