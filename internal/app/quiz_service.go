package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"classroom-quiz-service/internal/domain"
)

// QuizService contains the attempt, retake and correction use cases. It does
// no authorization: callers have already established who is acting.
type QuizService struct {
	store   Store
	quizzes QuizRepository
	locker  Locker
	opts    Options
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewQuizService(store Store, quizzes QuizRepository, locker Locker, opts Options) *QuizService {
	return NewQuizServiceWithClock(store, quizzes, locker, opts, time.Now)
}

// NewQuizServiceWithClock is used by tests for deterministic timestamps.
func NewQuizServiceWithClock(store Store, quizzes QuizRepository, locker Locker, opts Options, now func() time.Time) *QuizService {
	if opts.MinStartWindow <= 0 {
		opts.MinStartWindow = time.Minute
	}
	if opts.CorrectionWorkers <= 0 {
		opts.CorrectionWorkers = 1
	}
	return &QuizService{
		store:   store,
		quizzes: quizzes,
		locker:  locker,
		opts:    opts,
		now:     now,
		shuffle: rand.Shuffle,
	}
}

// PutQuiz validates a quiz definition and replaces any stored version,
// question bank included, in one write.
func (s *QuizService) PutQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}
	unlock, err := s.locker.Lock(ctx, quizLockKey(quiz.ID))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	quiz.UpdatedAt = s.now()
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	if err := s.quizzes.Invalidate(ctx, quiz.ID); err != nil {
		return domain.Quiz{}, fmt.Errorf("invalidate quiz cache: %w", err)
	}
	return quiz, nil
}

// GetQuiz returns the full quiz definition, answers included.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// DeleteQuiz removes a quiz together with its attempts, grants and corrections.
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID string) error {
	unlock, err := s.locker.Lock(ctx, quizLockKey(quizID))
	if err != nil {
		return fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	return s.quizzes.Invalidate(ctx, quizID)
}
