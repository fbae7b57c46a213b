// Package answers maps user replies onto open clarification questions.
package answers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/hollowbranch/stagehand/internal/ledger"
)

// ErrNoOpenQuestions reports a reply arriving with nothing left to answer.
var ErrNoOpenQuestions = errors.New("no open questions to answer")

// ErrUnmatched reports a reply that names no question and cannot be
// attributed to a single open one.
var ErrUnmatched = errors.New(`could not match answer to any open question; prefix answers with a question number (e.g. "#1: answer")`)

// Answer pairs one question id with the user's reply text.
type Answer struct {
	QuestionID string
	Text       string
}

// numberedLineRegex matches a line introducing an answer by question number,
// in the forms "#1: text", "question 1. text", or "q1 text".
var numberedLineRegex = regexp2.MustCompile(`^\s*(?:#|question\s*|q\s*)(\d+)\s*[:.]?\s*(.*)$`, regexp2.IgnoreCase)

// Parse maps a user reply onto the open questions, in their listed order.
// Replies may answer several questions with one numbered line each; a reply
// without numbers resolves only when exactly one question remains open.
func Parse(message string, questions []ledger.OpenQuestion) ([]Answer, error) {
	open := openOnly(questions)
	if len(open) == 0 {
		return nil, ErrNoOpenQuestions
	}

	segments, err := splitNumbered(message)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			return nil, ErrUnmatched
		}
		if len(open) == 1 {
			return []Answer{{QuestionID: open[0].ID, Text: trimmed}}, nil
		}
		return nil, ErrUnmatched
	}

	byNumber := make(map[int]string, len(segments))
	var order []int
	for _, segment := range segments {
		if segment.number < 1 || segment.number > len(open) {
			return nil, fmt.Errorf("answer references question %d but %d are open", segment.number, len(open))
		}
		if strings.TrimSpace(segment.text) == "" {
			return nil, fmt.Errorf("answer for question %d is empty", segment.number)
		}
		if _, seen := byNumber[segment.number]; !seen {
			order = append(order, segment.number)
		}
		byNumber[segment.number] = strings.TrimSpace(segment.text)
	}

	answers := make([]Answer, 0, len(order))
	for _, number := range order {
		answers = append(answers, Answer{
			QuestionID: open[number-1].ID,
			Text:       byNumber[number],
		})
	}
	return answers, nil
}

// Resolve returns copies of the matched questions with their answers
// recorded and status flipped to answered. Unmatched questions are omitted.
func Resolve(questions []ledger.OpenQuestion, answers []Answer) []ledger.OpenQuestion {
	byID := make(map[string]string, len(answers))
	for _, answer := range answers {
		byID[answer.QuestionID] = answer.Text
	}

	var resolved []ledger.OpenQuestion
	for _, question := range questions {
		text, ok := byID[question.ID]
		if !ok {
			continue
		}
		updated := question
		updated.Options = append([]string(nil), question.Options...)
		updated.Status = ledger.QuestionAnswered
		updated.Answer = text
		resolved = append(resolved, updated)
	}
	return resolved
}

// segment is one numbered answer block within a reply.
type segment struct {
	number int
	text   string
}

// openOnly filters questions to those still awaiting answers.
func openOnly(questions []ledger.OpenQuestion) []ledger.OpenQuestion {
	var open []ledger.OpenQuestion
	for _, question := range questions {
		if question.Status == ledger.QuestionOpen {
			open = append(open, question)
		}
	}
	return open
}

// splitNumbered slices a reply into numbered answer segments. Lines that do
// not start a new segment continue the previous one.
func splitNumbered(message string) ([]segment, error) {
	var segments []segment
	current := -1

	for _, line := range strings.Split(message, "\n") {
		match, err := numberedLineRegex.FindStringMatch(line)
		if err != nil {
			return nil, fmt.Errorf("match answer line: %w", err)
		}
		if match != nil {
			number, err := strconv.Atoi(match.GroupByNumber(1).String())
			if err != nil {
				return nil, fmt.Errorf("parse question number: %w", err)
			}
			segments = append(segments, segment{number: number, text: match.GroupByNumber(2).String()})
			current = len(segments) - 1
			continue
		}
		if current >= 0 {
			segments[current].text += "\n" + line
		}
	}
	return segments, nil
}
