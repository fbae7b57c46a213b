// Package ledger defines the question, decision, evidence, and acceptance
// records that gate pipeline progression.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hollowbranch/stagehand/internal/phase"
)

// QuestionStatus labels the lifecycle of a clarification question.
type QuestionStatus string

const (
	// QuestionOpen marks a question still awaiting an answer.
	QuestionOpen QuestionStatus = "open"
	// QuestionAnswered marks a question resolved by the user.
	QuestionAnswered QuestionStatus = "answered"
)

// DecisionStatus labels the lifecycle of a decision point.
type DecisionStatus string

const (
	// DecisionOpen marks a decision still blocking progression.
	DecisionOpen DecisionStatus = "open"
	// DecisionResolved marks a decision answered by an operator.
	DecisionResolved DecisionStatus = "resolved"
)

// OpenQuestion is a clarification raised during drafting or review. Any open
// instance blocks reviewer approval and the transition into execution.
type OpenQuestion struct {
	ID       string         `json:"id"`
	Question string         `json:"question"`
	Options  []string       `json:"options,omitempty"`
	Status   QuestionStatus `json:"status"`
	Answer   string         `json:"answer,omitempty"`
}

// NewOpenQuestion constructs an open question, generating an id when absent.
func NewOpenQuestion(id string, question string) (OpenQuestion, error) {
	if strings.TrimSpace(question) == "" {
		return OpenQuestion{}, errors.New("question text is required")
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return OpenQuestion{ID: id, Question: question, Status: QuestionOpen}, nil
}

// DecisionPoint is a synthesized blocking question raised when a retry
// budget is exhausted. Any open instance blocks the reviewer step.
// Resolution holds the option the operator chose once Status is resolved.
type DecisionPoint struct {
	ID          string         `json:"id"`
	Phase       phase.Phase    `json:"phase"`
	Stage       phase.Stage    `json:"stage"`
	Description string         `json:"description"`
	Options     []string       `json:"options"`
	Context     string         `json:"context,omitempty"`
	Status      DecisionStatus `json:"status"`
	Resolution  string         `json:"resolution,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewDecisionPoint constructs an open decision point at the supplied moment.
func NewDecisionPoint(p phase.Phase, stage phase.Stage, description string, options []string, context string, at time.Time) (DecisionPoint, error) {
	if strings.TrimSpace(description) == "" {
		return DecisionPoint{}, errors.New("decision description is required")
	}
	if len(options) == 0 {
		return DecisionPoint{}, errors.New("decision options are required")
	}
	return DecisionPoint{
		ID:          uuid.NewString(),
		Phase:       p,
		Stage:       stage,
		Description: description,
		Options:     append([]string(nil), options...),
		Context:     context,
		Status:      DecisionOpen,
		CreatedAt:   at.UTC(),
	}, nil
}

// Resolve marks the decision with the operator's chosen option. The choice
// must be one of the offered options.
func (d DecisionPoint) Resolve(option string) (DecisionPoint, error) {
	option = strings.TrimSpace(option)
	for _, candidate := range d.Options {
		if candidate == option {
			d.Status = DecisionResolved
			d.Resolution = option
			return d, nil
		}
	}
	return DecisionPoint{}, fmt.Errorf("decision %s: option %q is not offered", d.ID, option)
}

// Evidence records an artifact or status proving a requirement or task was
// executed and validated. Entries are appended or updated by id, never
// deleted within a run.
type Evidence struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	RequirementID string     `json:"requirement_id,omitempty"`
	Command       string     `json:"command,omitempty"`
	OutputPath    string     `json:"output_path,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// NewEvidence constructs an evidence record, generating an id when absent.
func NewEvidence(id string, evidenceType string, status string, at time.Time) (Evidence, error) {
	if strings.TrimSpace(evidenceType) == "" {
		return Evidence{}, errors.New("evidence type is required")
	}
	if strings.TrimSpace(status) == "" {
		return Evidence{}, fmt.Errorf("evidence %s: status is required", id)
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return Evidence{ID: id, Type: evidenceType, Status: status, CreatedAt: at.UTC()}, nil
}

// AcceptanceCriterion is one testable requirement extracted from the
// specification documents.
type AcceptanceCriterion struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}
