// Package scoring grades answers against a question bank and converts answers
// between their full and persisted forms. Everything here is pure.
package scoring

import (
	"strings"

	"classroom-quiz-service/internal/domain"
	"github.com/shopspring/decimal"
)

// QuestionResult is the verdict for one question of the bank.
type QuestionResult struct {
	QuestionID int  `json:"questionId"`
	Correct    bool `json:"correct"`
}

// Result summarizes a scored answer set.
type Result struct {
	Score          int              `json:"score"`
	TotalQuestions int              `json:"totalQuestions"`
	Percentage     float64          `json:"percentage"`
	Questions      []QuestionResult `json:"questions"`
}

// Score grades answers (question id -> answer) against the bank. Questions
// without an answer count as incorrect.
func Score(bank []domain.Question, answers map[int]domain.Answer) Result {
	res := Result{
		TotalQuestions: len(bank),
		Questions:      make([]QuestionResult, 0, len(bank)),
	}
	for _, q := range bank {
		correct := IsCorrect(q, answers[q.ID])
		if correct {
			res.Score++
		}
		res.Questions = append(res.Questions, QuestionResult{QuestionID: q.ID, Correct: correct})
	}
	res.Percentage = Percentage(res.Score, res.TotalQuestions)
	return res
}

// IsCorrect decides a single answer by question type.
func IsCorrect(q domain.Question, answer domain.Answer) bool {
	if answer.IsZero() {
		return false
	}
	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		return answer.Equal(q.CorrectAnswer)
	case domain.FillInTheBlank:
		if answer.Kind != domain.AnswerText {
			return false
		}
		given := normalize(answer.Text)
		for _, accepted := range q.CorrectAnswer.Alternatives() {
			if normalize(accepted) == given {
				return true
			}
		}
		return false
	}
	return false
}

// Percentage is score/total*100 rounded to two decimals, 0 for an empty bank.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(score)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	f, _ := pct.Float64()
	return f
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
