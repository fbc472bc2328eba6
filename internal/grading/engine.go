package grading

import (
	"context"
)

// Question types supported by the engine.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeMultipleSelect = "multiple_select"
	TypeFillBlank      = "fill_blank"
	TypeEssay          = "essay"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type            string
	Points          float64
	CorrectOptions  []string // option IDs flagged correct (choice types)
	AcceptedAnswers []string // accepted text answers (fill_blank)
}

// Response is a student's answer to a single question.
type Response struct {
	Selected []string // option IDs (choice types)
	Text     string   // free text (fill_blank, essay)
}

// Result is the outcome of grading a single question response.
// Correct is nil when the question cannot be auto-graded.
type Result struct {
	Correct     *bool
	Points      float64 // points awarded automatically
	MaxPoints   float64 // the question's max points
	NeedsManual bool    // true if instructor review is required
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true}, nil
	}
	return s.Grade(ctx, q, resp)
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeMultipleChoice: choiceSingleStrategy{},
			TypeTrueFalse:      choiceSingleStrategy{},
			TypeMultipleSelect: choiceMultiStrategy{},
			TypeFillBlank:      fillBlankStrategy{},
			TypeEssay:          essayStrategy{},
		},
	}
}

// --- Strategies ---

// choiceSingleStrategy awards full points iff exactly one option is selected
// and it is flagged correct. No partial credit.
type choiceSingleStrategy struct{}

func (choiceSingleStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	ok := len(resp.Selected) == 1 && contains(q.CorrectOptions, resp.Selected[0])
	res.Correct = &ok
	if ok {
		res.Points = q.Points
	}
	return res, nil
}

// choiceMultiStrategy awards full points iff the selected set exactly equals
// the correct set. A strict subset or any extra selection scores zero.
type choiceMultiStrategy struct{}

func (choiceMultiStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	ok := setEqual(toSet(resp.Selected), toSet(q.CorrectOptions))
	res.Correct = &ok
	if ok {
		res.Points = q.Points
	}
	return res, nil
}

// fillBlankStrategy matches the trimmed, lower-cased answer against the
// accepted list. Exact match only.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	answer := normalize(resp.Text)
	ok := false
	for _, accepted := range q.AcceptedAnswers {
		if answer != "" && answer == normalize(accepted) {
			ok = true
			break
		}
	}
	res.Correct = &ok
	if ok {
		res.Points = q.Points
	}
	return res, nil
}

// essayStrategy never auto-grades.
type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, q Q, _ Response) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true}, nil
}

// helpers

func contains(arr []string, s string) bool {
	for _, v := range arr {
		if v == s {
			return true
		}
	}
	return false
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
