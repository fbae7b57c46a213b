package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	traceDirMode  = 0o755
	traceFileMode = 0o644
)

// WriteFile persists the ledger as indented JSON at the supplied path.
func WriteFile(path string, ledger Ledger) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("trace path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), traceDirMode); err != nil {
		return fmt.Errorf("create trace directory %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trace ledger: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, traceFileMode); err != nil {
		return fmt.Errorf("write trace ledger %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a persisted ledger when present.
func LoadFile(path string) (Ledger, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ledger{}, false, nil
		}
		return Ledger{}, false, fmt.Errorf("read trace ledger %s: %w", path, err)
	}
	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return Ledger{}, false, fmt.Errorf("decode trace ledger %s: %w", path, err)
	}
	return ledger, true, nil
}

// RenderReport builds the human-readable mirror of the ledger.
func RenderReport(ledger Ledger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Verification Report: %s\n\n", ledger.FeatureID)

	counts := ledger.CountByStatus()
	fmt.Fprintf(&b, "Requirements: %d total, %d pass, %d fail, %d unknown\n\n",
		len(ledger.Records), counts[StatusPass], counts[StatusFail], counts[StatusUnknown])

	for _, record := range ledger.Records {
		fmt.Fprintf(&b, "## %s [%s]\n", record.RequirementID, record.Status)
		if len(record.ImplementationFiles) > 0 {
			fmt.Fprintf(&b, "- Implementation: %s\n", strings.Join(record.ImplementationFiles, ", "))
		}
		if record.VerificationMethod != "" {
			fmt.Fprintf(&b, "- Verified by: %s\n", record.VerificationMethod)
		}
		if record.Evidence != "" {
			fmt.Fprintf(&b, "- Evidence: %s\n", record.Evidence)
		}
		for _, path := range record.EvidencePaths {
			fmt.Fprintf(&b, "- Evidence file: %s\n", path)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WriteReport persists the human-readable mirror next to the ledger.
func WriteReport(path string, ledger Ledger) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("report path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), traceDirMode); err != nil {
		return fmt.Errorf("create report directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(RenderReport(ledger)), traceFileMode); err != nil {
		return fmt.Errorf("write verification report %s: %w", path, err)
	}
	return nil
}
