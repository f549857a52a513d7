package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateQuiz checks the schedule and the whole question bank. Failures wrap
// ErrInvalidQuiz.
func ValidateQuiz(quiz Quiz) error {
	if err := validate.Struct(quiz); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuiz, describe(err))
	}
	seen := make(map[int]struct{}, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrInvalidQuiz, q.ID)
		}
		seen[q.ID] = struct{}{}
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("%w: question %d (index %d): %s", ErrInvalidQuiz, q.ID, i, err)
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("multiple choice needs at least two options")
		}
		if q.CorrectAnswer.Kind != AnswerText {
			return fmt.Errorf("multiple choice answer must be a string")
		}
		for _, opt := range q.Options {
			if opt == q.CorrectAnswer.Text {
				return nil
			}
		}
		return fmt.Errorf("correct answer %q is not one of the options", q.CorrectAnswer.Text)
	case TrueFalse:
		if q.CorrectAnswer.Kind != AnswerBool {
			return fmt.Errorf("true/false answer must be a boolean")
		}
	case FillInTheBlank:
		alternatives := q.CorrectAnswer.Alternatives()
		if len(alternatives) == 0 {
			return fmt.Errorf("fill in the blank needs at least one accepted answer")
		}
		for _, alt := range alternatives {
			if strings.TrimSpace(alt) == "" {
				return fmt.Errorf("accepted answers must not be blank")
			}
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
