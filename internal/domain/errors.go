package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when an attempt id does not resolve to a row.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrGrantNotFound is returned by stores when a retake grant id is unknown.
	ErrGrantNotFound = errors.New("retake grant not found")
	// ErrInvalidQuiz wraps question bank and schedule validation failures.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrAttemptConflict signals that storage rejected a second in-progress attempt
	// for the same quiz and member.
	ErrAttemptConflict = errors.New("concurrent in-progress attempt")
	// ErrDuplicateCorrection signals a unique violation on (quiz, question) corrections.
	ErrDuplicateCorrection = errors.New("question correction already exists")
)

// Reason is the machine-readable code attached to a declined operation.
type Reason string

const (
	ReasonNotStarted        Reason = "not-started"
	ReasonDeadlinePassed    Reason = "deadline-passed"
	ReasonAlreadyCompleted  Reason = "already-completed"
	ReasonInsufficientTime  Reason = "insufficient-time"
	ReasonNoAttempt         Reason = "no-attempt-found"
	ReasonAlreadySubmitted  Reason = "already-submitted"
	ReasonDuplicate         Reason = "duplicate"
	ReasonOutOfRange        Reason = "out-of-range"
	ReasonGrantUsed         Reason = "grant-already-used"
	ReasonGrantNotFound     Reason = "grant-not-found"
	ReasonRetakeCapExceeded Reason = "retake-cap-exceeded"
	ReasonInvalidGrant      Reason = "invalid-grant"
	ReasonUnknownQuestion   Reason = "unknown-question"
	ReasonAttemptInProgress Reason = "attempt-in-progress"
)

// DeclinedError reports an operation refused by policy. It is an expected
// outcome, not a system failure.
type DeclinedError struct {
	Reason  Reason
	Message string
}

func (e *DeclinedError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Declined builds a DeclinedError.
func Declined(reason Reason, format string, args ...any) error {
	return &DeclinedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// DeclineReason returns the reason of a declined error anywhere in err's chain.
func DeclineReason(err error) (Reason, bool) {
	var d *DeclinedError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}
