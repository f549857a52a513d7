package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const attemptColumns = `id, quiz_id, member_id, status, started_at, submitted_at,
	total_questions, score, percentage, user_answers, auto_submitted,
	question_order, COALESCE(retake_grant_id, '')`

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		a       domain.Attempt
		status  string
		answers []byte
		order   []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.MemberID, &status, &a.StartedAt, &a.SubmittedAt,
		&a.TotalQuestions, &a.Score, &a.Percentage, &answers, &a.AutoSubmitted,
		&order, &a.RetakeGrantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	a.Status = domain.AttemptStatus(status)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.UserAnswers); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal question order: %w", err)
		}
	}
	return a, nil
}

func encodeAttempt(a domain.Attempt) (answers string, order *string, err error) {
	compact := a.UserAnswers
	if compact == nil {
		compact = []domain.CompactAnswer{}
	}
	raw, err := json.Marshal(compact)
	if err != nil {
		return "", nil, err
	}
	if a.QuestionOrder != nil {
		rawOrder, err := json.Marshal(a.QuestionOrder)
		if err != nil {
			return "", nil, err
		}
		s := string(rawOrder)
		order = &s
	}
	return string(raw), order, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id=$1`, attemptID))
}

func (s *Store) ListSubmittedAttemptIDs(ctx context.Context, quizID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM quiz_attempts
		WHERE quiz_id=$1 AND status='submitted'
		ORDER BY started_at, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list submitted attempts: %w", err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) FindInProgress(ctx context.Context, quizID, memberID string) (domain.Attempt, bool, error) {
	a, err := scanAttempt(t.q.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM quiz_attempts
		WHERE quiz_id=$1 AND member_id=$2 AND status='in_progress'
		FOR UPDATE`, quizID, memberID))
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("find in-progress attempt: %w", err)
	}
	return a, true, nil
}

func (t *tx) HasSubmitted(ctx context.Context, quizID, memberID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM quiz_attempts
			WHERE quiz_id=$1 AND member_id=$2 AND status='submitted')`,
		quizID, memberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check submitted attempt: %w", err)
	}
	return exists, nil
}

func (t *tx) CreateAttempt(ctx context.Context, a domain.Attempt) error {
	answers, order, err := encodeAttempt(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO quiz_attempts (id, quiz_id, member_id, status, started_at, submitted_at,
			total_questions, score, percentage, user_answers, auto_submitted,
			question_order, retake_grant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))`,
		a.ID, a.QuizID, a.MemberID, string(a.Status), a.StartedAt, a.SubmittedAt,
		a.TotalQuestions, a.Score, a.Percentage, answers, a.AutoSubmitted,
		order, a.RetakeGrantID)
	switch code, _ := pgCode(err); code {
	case "":
	case uniqueViolation:
		return domain.ErrAttemptConflict
	case foreignKeyViolation:
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (t *tx) GetAttemptForUpdate(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return scanAttempt(t.q.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id=$1 FOR UPDATE`, attemptID))
}

func (t *tx) UpdateAttempt(ctx context.Context, a domain.Attempt) error {
	answers, order, err := encodeAttempt(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE quiz_attempts
		SET status=$2, submitted_at=$3, total_questions=$4, score=$5, percentage=$6,
			user_answers=$7, auto_submitted=$8, question_order=$9
		WHERE id=$1`,
		a.ID, string(a.Status), a.SubmittedAt, a.TotalQuestions, a.Score, a.Percentage,
		answers, a.AutoSubmitted, order)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}
