package answers

import (
	"errors"
	"testing"

	"github.com/hollowbranch/stagehand/internal/ledger"
)

func openQuestions(texts ...string) []ledger.OpenQuestion {
	questions := make([]ledger.OpenQuestion, 0, len(texts))
	for i, text := range texts {
		questions = append(questions, ledger.OpenQuestion{
			ID:       string(rune('a' + i)),
			Question: text,
			Status:   ledger.QuestionOpen,
		})
	}
	return questions
}

// TestParseNumberedAnswers verifies numbered replies map to questions by
// their position among the open ones.
func TestParseNumberedAnswers(t *testing.T) {
	questions := openQuestions("Which database?", "Which auth provider?")

	answers, err := Parse("#2: use oauth\n#1: postgres", questions)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("Parse() returned %d answers, want 2", len(answers))
	}
	if answers[0].QuestionID != "b" || answers[0].Text != "use oauth" {
		t.Fatalf("Parse()[0] = %+v, want question b answered %q", answers[0], "use oauth")
	}
	if answers[1].QuestionID != "a" || answers[1].Text != "postgres" {
		t.Fatalf("Parse()[1] = %+v, want question a answered %q", answers[1], "postgres")
	}
}

// TestParseNumberVariants verifies the accepted question reference forms.
func TestParseNumberVariants(t *testing.T) {
	questions := openQuestions("Which database?")

	for _, input := range []string{"#1: postgres", "Question 1: postgres", "q1. postgres"} {
		answers, err := Parse(input, questions)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", input, err)
		}
		if len(answers) != 1 || answers[0].Text != "postgres" {
			t.Fatalf("Parse(%q) = %+v, want one answer %q", input, answers, "postgres")
		}
	}
}

// TestParseMultilineAnswer verifies continuation lines stay with their
// numbered segment.
func TestParseMultilineAnswer(t *testing.T) {
	questions := openQuestions("Which database?")

	answers, err := Parse("#1: postgres\nwith read replicas", questions)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if answers[0].Text != "postgres\nwith read replicas" {
		t.Fatalf("Parse() text = %q", answers[0].Text)
	}
}

// TestParseSingleOpenQuestionFallback verifies an unnumbered reply resolves
// the only open question.
func TestParseSingleOpenQuestionFallback(t *testing.T) {
	questions := openQuestions("Which database?")

	answers, err := Parse("postgres with read replicas", questions)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(answers) != 1 || answers[0].QuestionID != "a" {
		t.Fatalf("Parse() = %+v, want single answer for question a", answers)
	}
}

// TestParseAmbiguousReply verifies an unnumbered reply with several open
// questions is rejected.
func TestParseAmbiguousReply(t *testing.T) {
	questions := openQuestions("Which database?", "Which auth provider?")

	if _, err := Parse("postgres", questions); !errors.Is(err, ErrUnmatched) {
		t.Fatalf("Parse() error = %v, want ErrUnmatched", err)
	}
}

// TestParseOutOfRangeNumber verifies references beyond the open list fail.
func TestParseOutOfRangeNumber(t *testing.T) {
	questions := openQuestions("Which database?")

	if _, err := Parse("#3: postgres", questions); err == nil {
		t.Fatal("Parse() expected error for out of range question number")
	}
}

// TestParseSkipsAnsweredQuestions verifies numbering counts only open
// questions.
func TestParseSkipsAnsweredQuestions(t *testing.T) {
	questions := openQuestions("Which database?", "Which auth provider?")
	questions[0].Status = ledger.QuestionAnswered

	answers, err := Parse("#1: use oauth", questions)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if answers[0].QuestionID != "b" {
		t.Fatalf("Parse() answered %q, want question b", answers[0].QuestionID)
	}
}

// TestParseNoOpenQuestions verifies replies without open questions fail.
func TestParseNoOpenQuestions(t *testing.T) {
	if _, err := Parse("postgres", nil); !errors.Is(err, ErrNoOpenQuestions) {
		t.Fatalf("Parse() error = %v, want ErrNoOpenQuestions", err)
	}
}

// TestResolve verifies matched questions flip to answered with their text.
func TestResolve(t *testing.T) {
	questions := openQuestions("Which database?", "Which auth provider?")

	resolved := Resolve(questions, []Answer{{QuestionID: "b", Text: "use oauth"}})
	if len(resolved) != 1 {
		t.Fatalf("Resolve() returned %d questions, want 1", len(resolved))
	}
	if resolved[0].Status != ledger.QuestionAnswered || resolved[0].Answer != "use oauth" {
		t.Fatalf("Resolve()[0] = %+v, want answered with text", resolved[0])
	}
	if questions[1].Status != ledger.QuestionOpen {
		t.Fatal("Resolve() mutated the input slice")
	}
}
