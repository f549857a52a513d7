package app

import (
	"context"

	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/scoring"
)

// AttemptResult is a submitted attempt with its per-question breakdown.
type AttemptResult struct {
	Attempt     domain.Attempt        `json:"attempt"`
	ShowResults bool                  `json:"showResults"`
	Questions   []domain.AnswerDetail `json:"questions,omitempty"`
}

// GetReconstructedResult expands the stored answers of a submitted attempt
// against the current question bank.
func (s *QuizService) GetReconstructedResult(ctx context.Context, attemptID string) (AttemptResult, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if attempt.Status != domain.AttemptSubmitted {
		return AttemptResult{}, domain.Declined(domain.ReasonAttemptInProgress, "attempt has not been submitted")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptResult{}, err
	}
	return AttemptResult{
		Attempt:     attempt,
		ShowResults: quiz.ShowResults,
		Questions:   scoring.Expand(quiz.Questions, attempt.UserAnswers),
	}, nil
}

// GetStudentResult is GetReconstructedResult as the member sees it: the
// breakdown is withheld unless the quiz shows results.
func (s *QuizService) GetStudentResult(ctx context.Context, attemptID string) (AttemptResult, error) {
	res, err := s.GetReconstructedResult(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if !res.ShowResults {
		res.Questions = nil
		res.Attempt.UserAnswers = nil
	}
	return res, nil
}
