// Package trace maintains the requirement trace ledger: a machine-readable
// record per requirement linking implementation files, verification method,
// and evidence, plus the human-readable mirror generated from it.
package trace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record statuses. Unknown records block completion.
const (
	// StatusPass marks a requirement verified with evidence.
	StatusPass = "pass"
	// StatusFail marks a requirement that failed verification.
	StatusFail = "fail"
	// StatusUnknown marks a requirement not yet verified.
	StatusUnknown = "unknown"
)

// Record links one requirement id to its implementation and verification.
type Record struct {
	RequirementID       string   `json:"requirement_id"`
	ImplementationFiles []string `json:"implementation_files,omitempty"`
	VerificationMethod  string   `json:"verification_method,omitempty"`
	Evidence            string   `json:"evidence,omitempty"`
	EvidencePaths       []string `json:"evidence_paths,omitempty"`
	Status              string   `json:"status"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Ledger is the ordered collection of trace records for one feature.
type Ledger struct {
	FeatureID string   `json:"feature_id"`
	Records   []Record `json:"records"`
}

// NewLedger builds an empty ledger seeded with unknown records for the
// supplied requirement ids.
func NewLedger(featureID string, requirementIDs []string, now time.Time) Ledger {
	ledger := Ledger{FeatureID: featureID}
	for _, id := range requirementIDs {
		ledger.Records = append(ledger.Records, Record{
			RequirementID: id,
			Status:        StatusUnknown,
			UpdatedAt:     now.UTC(),
		})
	}
	return ledger
}

// Upsert replaces the record for the requirement id or appends a new one.
func (l *Ledger) Upsert(record Record) error {
	if strings.TrimSpace(record.RequirementID) == "" {
		return errors.New("trace record requirement id is required")
	}
	switch record.Status {
	case StatusPass, StatusFail, StatusUnknown:
	default:
		return fmt.Errorf("trace record %s: unknown status %q", record.RequirementID, record.Status)
	}
	for i, existing := range l.Records {
		if existing.RequirementID == record.RequirementID {
			l.Records[i] = record
			return nil
		}
	}
	l.Records = append(l.Records, record)
	return nil
}

// ByRequirement returns the record for the requirement id when present.
func (l Ledger) ByRequirement(id string) (Record, bool) {
	for _, record := range l.Records {
		if record.RequirementID == id {
			return record, true
		}
	}
	return Record{}, false
}

// CountByStatus tallies records per status.
func (l Ledger) CountByStatus() map[string]int {
	counts := make(map[string]int, 3)
	for _, record := range l.Records {
		counts[record.Status]++
	}
	return counts
}

// RequirementIDs returns every recorded requirement id in sorted order.
func (l Ledger) RequirementIDs() []string {
	ids := make([]string, 0, len(l.Records))
	for _, record := range l.Records {
		ids = append(ids, record.RequirementID)
	}
	sort.Strings(ids)
	return ids
}
