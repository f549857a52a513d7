package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/scoring"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CorrectionResult reports a bulk question correction.
type CorrectionResult struct {
	Correction    domain.QuestionCorrection `json:"correction"`
	AffectedCount int                       `json:"affectedCount"`
	FailedIDs     []string                  `json:"failedAttemptIds,omitempty"`
}

// ApplyQuestionCorrection awards bonusPoints to every submitted attempt of the
// quiz, at most once per question. Each attempt is corrected in its own
// transaction; a failure on one attempt does not undo the others. Calling it
// again for a question whose correction did not reach every attempt finishes
// the remaining attempts with the original correction.
func (s *QuizService) ApplyQuestionCorrection(ctx context.Context, quizID string, questionID, bonusPoints int, reason, actor string) (CorrectionResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return CorrectionResult{}, err
	}
	if _, ok := quiz.Question(questionID); !ok {
		return CorrectionResult{}, domain.Declined(domain.ReasonUnknownQuestion, "question %d is not part of the quiz", questionID)
	}
	if bonusPoints <= 0 {
		return CorrectionResult{}, domain.Declined(domain.ReasonOutOfRange, "bonus points must be positive")
	}

	unlock, err := s.locker.Lock(ctx, quizLockKey(quizID))
	if err != nil {
		return CorrectionResult{}, fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	correction := domain.QuestionCorrection{
		ID:          uuid.NewString(),
		QuizID:      quizID,
		QuestionID:  questionID,
		BonusPoints: bonusPoints,
		Reason:      reason,
		AppliedAt:   s.now(),
		AppliedBy:   actor,
	}
	// A correction row already present means an earlier run stopped before
	// every attempt was corrected; resume it with the recorded correction.
	resuming := false
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		err := tx.InsertQuestionCorrection(ctx, correction)
		if !errors.Is(err, domain.ErrDuplicateCorrection) {
			return err
		}
		existing, ok, err := tx.FindQuestionCorrection(ctx, quizID, questionID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrDuplicateCorrection
		}
		correction, resuming = existing, true
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateCorrection) {
		return CorrectionResult{}, domain.Declined(domain.ReasonDuplicate, "question %d was already corrected", questionID)
	}
	if err != nil {
		return CorrectionResult{}, err
	}

	ids, err := s.store.ListSubmittedAttemptIDs(ctx, quizID)
	if err != nil {
		return CorrectionResult{}, fmt.Errorf("list submitted attempts: %w", err)
	}

	result := CorrectionResult{Correction: correction}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.CorrectionWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			applied, err := s.correctAttempt(gctx, id, correction)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("question correction %s: attempt %s: %v", correction.ID, id, err)
				result.FailedIDs = append(result.FailedIDs, id)
				return nil
			}
			if applied {
				result.AffectedCount++
			}
			return nil
		})
	}
	_ = g.Wait()
	if resuming && result.AffectedCount == 0 && len(result.FailedIDs) == 0 {
		return CorrectionResult{}, domain.Declined(domain.ReasonDuplicate, "question %d was already corrected", questionID)
	}
	return result, nil
}

func (s *QuizService) correctAttempt(ctx context.Context, attemptID string, correction domain.QuestionCorrection) (bool, error) {
	applied := false
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptSubmitted {
			return nil
		}
		if attempt.SubmittedAt != nil && attempt.SubmittedAt.After(correction.AppliedAt) {
			return nil
		}
		done, err := tx.HasCorrectionModification(ctx, attempt.ID, correction.ID)
		if err != nil || done {
			return err
		}
		newScore := attempt.Score + correction.BonusPoints
		if newScore > attempt.TotalQuestions {
			newScore = attempt.TotalQuestions
		}
		if err := tx.InsertScoreModification(ctx, domain.ScoreModification{
			ID:                   uuid.NewString(),
			AttemptID:            attempt.ID,
			OriginalScore:        attempt.Score,
			NewScore:             newScore,
			Reason:               correction.Reason,
			ModifiedAt:           correction.AppliedAt,
			ModifiedBy:           correction.AppliedBy,
			QuestionCorrectionID: correction.ID,
		}); err != nil {
			return err
		}
		attempt.Score = newScore
		attempt.Percentage = scoring.Percentage(newScore, attempt.TotalQuestions)
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// ModifyScore sets a submitted attempt's score by hand, recording the previous
// value first.
func (s *QuizService) ModifyScore(ctx context.Context, attemptID string, newScore int, reason, actor string) (domain.Attempt, error) {
	var updated domain.Attempt
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		attempt, err := tx.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptSubmitted {
			return domain.Declined(domain.ReasonAttemptInProgress, "attempt has not been submitted")
		}
		if newScore < 0 || newScore > attempt.TotalQuestions {
			return domain.Declined(domain.ReasonOutOfRange, "score must be between 0 and %d", attempt.TotalQuestions)
		}
		if err := tx.InsertScoreModification(ctx, domain.ScoreModification{
			ID:            uuid.NewString(),
			AttemptID:     attempt.ID,
			OriginalScore: attempt.Score,
			NewScore:      newScore,
			Reason:        reason,
			ModifiedAt:    s.now(),
			ModifiedBy:    actor,
		}); err != nil {
			return err
		}
		attempt.Score = newScore
		attempt.Percentage = scoring.Percentage(newScore, attempt.TotalQuestions)
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}
		updated = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return updated, nil
}

// ListScoreModifications returns an attempt's score history, oldest first.
func (s *QuizService) ListScoreModifications(ctx context.Context, attemptID string) ([]domain.ScoreModification, error) {
	if _, err := s.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.store.ListScoreModifications(ctx, attemptID)
}
