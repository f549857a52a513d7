package postgres

import (
	"context"
	"errors"
	"fmt"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

// InsertQuestionCorrection skips conflicting rows instead of raising a unique
// violation so the transaction stays usable for FindQuestionCorrection.
func (t *tx) InsertQuestionCorrection(ctx context.Context, c domain.QuestionCorrection) error {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO question_corrections (id, quiz_id, question_id, bonus_points, reason, applied_at, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (quiz_id, question_id) DO NOTHING`,
		c.ID, c.QuizID, c.QuestionID, c.BonusPoints, c.Reason, c.AppliedAt, c.AppliedBy)
	if code, _ := pgCode(err); code == foreignKeyViolation {
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("insert question correction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateCorrection
	}
	return nil
}

func (t *tx) FindQuestionCorrection(ctx context.Context, quizID string, questionID int) (domain.QuestionCorrection, bool, error) {
	var c domain.QuestionCorrection
	err := t.q.QueryRow(ctx, `
		SELECT id, quiz_id, question_id, bonus_points, reason, applied_at, applied_by
		FROM question_corrections
		WHERE quiz_id=$1 AND question_id=$2`, quizID, questionID).
		Scan(&c.ID, &c.QuizID, &c.QuestionID, &c.BonusPoints, &c.Reason, &c.AppliedAt, &c.AppliedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionCorrection{}, false, nil
	}
	if err != nil {
		return domain.QuestionCorrection{}, false, fmt.Errorf("find question correction: %w", err)
	}
	return c, true, nil
}

func (t *tx) HasCorrectionModification(ctx context.Context, attemptID, correctionID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM score_modifications
			WHERE attempt_id=$1 AND question_correction_id=$2)`,
		attemptID, correctionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check correction modification: %w", err)
	}
	return exists, nil
}

func (t *tx) InsertScoreModification(ctx context.Context, m domain.ScoreModification) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO score_modifications (id, attempt_id, original_score, new_score, reason,
			modified_at, modified_by, question_correction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		m.ID, m.AttemptID, m.OriginalScore, m.NewScore, m.Reason,
		m.ModifiedAt, m.ModifiedBy, m.QuestionCorrectionID)
	if code, _ := pgCode(err); code == foreignKeyViolation {
		return domain.ErrAttemptNotFound
	}
	if err != nil {
		return fmt.Errorf("insert score modification: %w", err)
	}
	return nil
}

// ListScoreModifications returns the history of an attempt in insertion order.
func (s *Store) ListScoreModifications(ctx context.Context, attemptID string) ([]domain.ScoreModification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, attempt_id, original_score, new_score, reason, modified_at, modified_by,
			COALESCE(question_correction_id, '')
		FROM score_modifications
		WHERE attempt_id=$1
		ORDER BY seq`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list score modifications: %w", err)
	}
	defer rows.Close()
	mods := make([]domain.ScoreModification, 0)
	for rows.Next() {
		var m domain.ScoreModification
		if err := rows.Scan(&m.ID, &m.AttemptID, &m.OriginalScore, &m.NewScore, &m.Reason,
			&m.ModifiedAt, &m.ModifiedBy, &m.QuestionCorrectionID); err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
