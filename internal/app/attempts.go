package app

import (
	"context"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/scoring"
	"github.com/google/uuid"
)

// StartResult is what a member receives when starting or resuming a quiz.
type StartResult struct {
	Attempt          domain.Attempt    `json:"attempt"`
	Questions        []domain.Question `json:"questions"`
	QuestionOrder    []int             `json:"questionOrder"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Resuming         bool              `json:"resuming"`
}

// SubmitResult summarizes a submitted attempt.
type SubmitResult struct {
	AttemptID      string  `json:"attemptId"`
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	Percentage     float64 `json:"percentage"`
	AutoSubmitted  bool    `json:"autoSubmitted"`
}

// StartAttempt opens (or resumes) the member's attempt on a quiz. A member
// whose previous attempt was submitted needs an unused retake grant.
func (s *QuizService) StartAttempt(ctx context.Context, quizID, memberID string) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, attemptLockKey(quizID, memberID))
	if err != nil {
		return StartResult{}, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	now := s.now()
	if now.Before(quiz.StartTime) {
		return StartResult{}, domain.Declined(domain.ReasonNotStarted, "quiz opens at %s", quiz.StartTime.Format(time.RFC3339))
	}
	if now.After(quiz.EndTime) {
		return StartResult{}, domain.Declined(domain.ReasonDeadlinePassed, "quiz closed at %s", quiz.EndTime.Format(time.RFC3339))
	}

	var result StartResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, ok, err := tx.FindInProgress(ctx, quizID, memberID)
		if err != nil {
			return err
		}
		if ok {
			result = s.startResult(quiz, existing, now, true)
			return nil
		}

		submitted, err := tx.HasSubmitted(ctx, quizID, memberID)
		if err != nil {
			return err
		}
		var grantID string
		if submitted {
			grant, ok, err := tx.ConsumeGrant(ctx, quizID, memberID, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.Declined(domain.ReasonAlreadyCompleted, "quiz already completed")
			}
			grantID = grant.ID
		}

		// A declined start rolls back the grant consumption above.
		if quiz.EndTime.Sub(now) < s.opts.MinStartWindow {
			return domain.Declined(domain.ReasonInsufficientTime, "not enough time remaining")
		}

		attempt := domain.Attempt{
			ID:             uuid.NewString(),
			QuizID:         quizID,
			MemberID:       memberID,
			Status:         domain.AttemptInProgress,
			StartedAt:      now,
			TotalQuestions: len(quiz.Questions),
			RetakeGrantID:  grantID,
		}
		if s.opts.PersistShuffle {
			attempt.QuestionOrder = s.questionOrder(quiz)
		}
		if err := tx.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
		result = s.startResult(quiz, attempt, now, false)
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	return result, nil
}

// SubmitAttempt scores and closes the member's in-progress attempt. A submit
// arriving after the quiz end time is recorded as auto-submitted whatever the
// client reported.
func (s *QuizService) SubmitAttempt(ctx context.Context, quizID, memberID string, answers map[int]domain.Answer, clientTimedOut bool) (SubmitResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, attemptLockKey(quizID, memberID))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("lock attempt: %w", err)
	}
	defer unlock()

	now := s.now()
	var result SubmitResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		attempt, ok, err := tx.FindInProgress(ctx, quizID, memberID)
		if err != nil {
			return err
		}
		if !ok {
			submitted, err := tx.HasSubmitted(ctx, quizID, memberID)
			if err != nil {
				return err
			}
			if submitted {
				return domain.Declined(domain.ReasonAlreadySubmitted, "attempt already submitted")
			}
			return domain.Declined(domain.ReasonNoAttempt, "no attempt in progress")
		}

		known := scoring.FilterToBank(quiz.Questions, answers)
		scored := scoring.Score(quiz.Questions, known)
		submittedAt := now

		attempt.Status = domain.AttemptSubmitted
		attempt.SubmittedAt = &submittedAt
		attempt.Score = scored.Score
		attempt.Percentage = scored.Percentage
		attempt.UserAnswers = scoring.Compact(known)
		attempt.AutoSubmitted = clientTimedOut || now.After(quiz.EndTime)
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}

		result = SubmitResult{
			AttemptID:      attempt.ID,
			Score:          scored.Score,
			TotalQuestions: scored.TotalQuestions,
			Percentage:     scored.Percentage,
			AutoSubmitted:  attempt.AutoSubmitted,
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return result, nil
}

func (s *QuizService) startResult(quiz domain.Quiz, attempt domain.Attempt, now time.Time, resuming bool) StartResult {
	order := attempt.QuestionOrder
	if len(order) == 0 {
		order = s.questionOrder(quiz)
	}
	questions, order := orderedQuestions(quiz, order)

	remaining := attempt.Deadline(quiz).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return StartResult{
		Attempt:          attempt,
		Questions:        questions,
		QuestionOrder:    order,
		RemainingSeconds: int(remaining / time.Second),
		Resuming:         resuming,
	}
}

func (s *QuizService) questionOrder(quiz domain.Quiz) []int {
	order := make([]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		order[i] = q.ID
	}
	if quiz.ShuffleQuestions {
		s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

// orderedQuestions lays out redacted questions following order. Ids no longer
// in the bank are skipped; questions added after the order was fixed go last.
func orderedQuestions(quiz domain.Quiz, order []int) ([]domain.Question, []int) {
	byID := make(map[int]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		byID[q.ID] = q
	}
	questions := make([]domain.Question, 0, len(quiz.Questions))
	effective := make([]int, 0, len(quiz.Questions))
	placed := make(map[int]struct{}, len(order))
	for _, id := range order {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		questions = append(questions, q.Redacted())
		effective = append(effective, id)
	}
	for _, q := range quiz.Questions {
		if _, ok := placed[q.ID]; !ok {
			questions = append(questions, q.Redacted())
			effective = append(effective, q.ID)
		}
	}
	return questions, effective
}
