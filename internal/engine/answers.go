package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hollowbranch/stagehand/internal/answers"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
)

// runAnswers collects user answers from the clarifications document and
// resolves the matching open questions. The run stays parked until the
// document carries content.
func (e *Engine) runAnswers(ctx context.Context, current state.State) Outcome {
	_ = ctx

	content, err := specdoc.Read(e.repoRoot, current.FeatureID, specdoc.KindClarifications)
	if err != nil {
		return e.recoverable(current, stepAnswers, fmt.Errorf("read clarifications: %w", err), "")
	}
	if strings.TrimSpace(content) == "" {
		return Blocked(waitingForAnswers(e.repoRoot, current.FeatureID))
	}

	parsed, err := answers.Parse(content, current.OpenQuestions)
	if err != nil {
		if errors.Is(err, answers.ErrNoOpenQuestions) {
			return Advance(state.Delta{
				Messages: []state.Message{e.message(stepAnswers, "user", "no open questions remain")},
			})
		}
		return e.recoverable(current, stepAnswers, fmt.Errorf("parse clarifications: %w", err), "")
	}

	resolved := answers.Resolve(current.OpenQuestions, parsed)
	delta := state.Delta{
		OpenQuestions: resolved,
		Messages: []state.Message{
			e.message(stepAnswers, "user", fmt.Sprintf("%d answer(s) recorded", len(resolved))),
		},
	}

	remaining := mergedOpenQuestions(current.OpenQuestions, resolved)
	e.writeDocument(current.FeatureID, specdoc.KindQuestions, renderQuestions(remaining))
	e.emitf("answers: %d question(s) resolved for %s", len(resolved), current.FeatureID)
	return Advance(delta)
}

// waitingForAnswers names the document the user must fill in.
func waitingForAnswers(repoRoot string, featureID string) string {
	path := filepath.Join(specdoc.FeatureDir(repoRoot, featureID), specdoc.Filename(specdoc.KindClarifications))
	return fmt.Sprintf("open questions need answers; write them to %s", path)
}
