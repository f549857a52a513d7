package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
)

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// Invalidate drops any cached copy after the quiz was replaced or deleted.
	Invalidate(ctx context.Context, quizID string) error
}

// Locker serializes work on a key across requests (and instances, for
// distributed implementations). The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Store is the transactional relational store behind the engine.
type Store interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, quizID string) error
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)

	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListSubmittedAttemptIDs(ctx context.Context, quizID string) ([]string, error)
	ListGrants(ctx context.Context, quizID string) ([]domain.RetakeGrant, error)
	ListScoreModifications(ctx context.Context, attemptID string) ([]domain.ScoreModification, error)

	// WithinTx runs fn in a single transaction; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes that must be atomic with each other.
type Tx interface {
	FindInProgress(ctx context.Context, quizID, memberID string) (domain.Attempt, bool, error)
	HasSubmitted(ctx context.Context, quizID, memberID string) (bool, error)
	// CreateAttempt returns domain.ErrAttemptConflict when an in-progress
	// attempt already exists for the pair.
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttemptForUpdate(ctx context.Context, attemptID string) (domain.Attempt, error)
	UpdateAttempt(ctx context.Context, attempt domain.Attempt) error

	// ConsumeGrant marks the first usable grant for the member as used.
	ConsumeGrant(ctx context.Context, quizID, memberID string, now time.Time) (domain.RetakeGrant, bool, error)
	InsertGrant(ctx context.Context, grant domain.RetakeGrant) error
	CountClassWideGrants(ctx context.Context, quizID string) (int, error)
	GetGrantForUpdate(ctx context.Context, grantID string) (domain.RetakeGrant, error)
	RevokeGrant(ctx context.Context, grantID string, at time.Time) error

	// InsertQuestionCorrection returns domain.ErrDuplicateCorrection when the
	// (quiz, question) pair was already corrected.
	InsertQuestionCorrection(ctx context.Context, correction domain.QuestionCorrection) error
	FindQuestionCorrection(ctx context.Context, quizID string, questionID int) (domain.QuestionCorrection, bool, error)
	// HasCorrectionModification reports whether the correction was already
	// applied to the attempt.
	HasCorrectionModification(ctx context.Context, attemptID, correctionID string) (bool, error)
	InsertScoreModification(ctx context.Context, mod domain.ScoreModification) error
}

// Options tunes the attempt engine.
type Options struct {
	// MinStartWindow is the least time before the quiz end time at which a new
	// attempt may still be started.
	MinStartWindow time.Duration
	// PersistShuffle stores the shuffled question order on the attempt so a
	// resumed attempt replays it. When false every start call reshuffles.
	PersistShuffle bool
	// MaxClassWideRetakes caps class-wide grants per quiz unless the quiz sets
	// its own limit.
	MaxClassWideRetakes int
	// CorrectionWorkers bounds concurrent per-attempt corrections.
	CorrectionWorkers int
}

// DefaultOptions mirrors the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		MinStartWindow:      time.Minute,
		PersistShuffle:      true,
		MaxClassWideRetakes: 3,
		CorrectionWorkers:   4,
	}
}

func attemptLockKey(quizID, memberID string) string {
	return "lock:attempt:" + quizID + ":" + memberID
}

func quizLockKey(quizID string) string {
	return "lock:quiz:" + quizID
}
