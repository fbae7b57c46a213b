// Package digests fingerprints approved feature documents so later steps can
// tell when they change mid-run.
package digests

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hollowbranch/stagehand/internal/specdoc"
)

// approvedKinds are the documents frozen by specification approval. Plan and
// task documents are execution-owned and keep changing afterward.
var approvedKinds = []specdoc.Kind{
	specdoc.KindSpec,
	specdoc.KindClarifications,
}

// Compute builds sha256 digests of the feature's approved documents, keyed
// by filename. Missing documents are omitted.
func Compute(repoRoot string, featureID string) (map[string]string, error) {
	if repoRoot == "" {
		return nil, fmt.Errorf("repo root is required")
	}
	if featureID == "" {
		return nil, fmt.Errorf("feature id is required")
	}

	dir := specdoc.FeatureDir(repoRoot, featureID)
	entries := map[string]string{}
	for _, kind := range approvedKinds {
		name := specdoc.Filename(kind)
		digest, err := digestFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if digest == "" {
			continue
		}
		entries[name] = digest
	}
	return entries, nil
}

// digestFile returns a sha256 digest for the file or an empty string if it
// is missing.
func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", sum), nil
}
