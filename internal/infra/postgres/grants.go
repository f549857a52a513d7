package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const grantColumns = `id, quiz_id, type, COALESCE(member_id, ''), expires_at, used, used_at,
	COALESCE(used_by, ''), reason, granted_by, created_at, revoked_at`

func scanGrant(row scanner) (domain.RetakeGrant, error) {
	var (
		g     domain.RetakeGrant
		gtype string
	)
	err := row.Scan(&g.ID, &g.QuizID, &gtype, &g.MemberID, &g.ExpiresAt, &g.Used, &g.UsedAt,
		&g.UsedBy, &g.Reason, &g.GrantedBy, &g.CreatedAt, &g.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RetakeGrant{}, domain.ErrGrantNotFound
	}
	if err != nil {
		return domain.RetakeGrant{}, err
	}
	g.Type = domain.GrantType(gtype)
	return g, nil
}

func (s *Store) ListGrants(ctx context.Context, quizID string) ([]domain.RetakeGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+` FROM retake_grants
		WHERE quiz_id=$1
		ORDER BY created_at, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()
	grants := make([]domain.RetakeGrant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ConsumeGrant claims the first usable grant in precedence order. Rows held
// by a concurrent transaction are skipped so two members never share one
// class-wide grant.
func (t *tx) ConsumeGrant(ctx context.Context, quizID, memberID string, now time.Time) (domain.RetakeGrant, bool, error) {
	g, err := scanGrant(t.q.QueryRow(ctx, `
		UPDATE retake_grants
		SET used = true, used_at = $3, used_by = $2
		WHERE id = (
			SELECT id FROM retake_grants
			WHERE quiz_id = $1
				AND NOT used
				AND revoked_at IS NULL
				AND expires_at > $3
				AND ((type = 'individual' AND member_id = $2)
					OR (type = 'class_wide' AND member_id IS NULL))
			ORDER BY expires_at, (type = 'individual') DESC, created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		RETURNING `+grantColumns, quizID, memberID, now))
	if errors.Is(err, domain.ErrGrantNotFound) {
		return domain.RetakeGrant{}, false, nil
	}
	if err != nil {
		return domain.RetakeGrant{}, false, fmt.Errorf("consume grant: %w", err)
	}
	return g, true, nil
}

func (t *tx) InsertGrant(ctx context.Context, g domain.RetakeGrant) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO retake_grants (id, quiz_id, type, member_id, expires_at, used, used_at,
			used_by, reason, granted_by, created_at, revoked_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`,
		g.ID, g.QuizID, string(g.Type), g.MemberID, g.ExpiresAt, g.Used, g.UsedAt,
		g.UsedBy, g.Reason, g.GrantedBy, g.CreatedAt, g.RevokedAt)
	if code, _ := pgCode(err); code == foreignKeyViolation {
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

func (t *tx) CountClassWideGrants(ctx context.Context, quizID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT count(*) FROM retake_grants
		WHERE quiz_id=$1 AND type='class_wide'`, quizID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count class-wide grants: %w", err)
	}
	return n, nil
}

func (t *tx) GetGrantForUpdate(ctx context.Context, grantID string) (domain.RetakeGrant, error) {
	return scanGrant(t.q.QueryRow(ctx, `SELECT `+grantColumns+` FROM retake_grants WHERE id=$1 FOR UPDATE`, grantID))
}

func (t *tx) RevokeGrant(ctx context.Context, grantID string, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE retake_grants SET revoked_at=$2 WHERE id=$1`, grantID, at)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGrantNotFound
	}
	return nil
}
