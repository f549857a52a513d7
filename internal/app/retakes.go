package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// GrantRequest describes a retake a teacher wants to issue.
type GrantRequest struct {
	Type      domain.GrantType `json:"type"`
	MemberID  string           `json:"memberId,omitempty"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Reason    string           `json:"reason"`
	GrantedBy string           `json:"-"`
}

// GrantRetake issues a retake grant. Class-wide grants count against the
// quiz's cap, revoked ones included.
func (s *QuizService) GrantRetake(ctx context.Context, quizID string, req GrantRequest) (domain.RetakeGrant, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.RetakeGrant{}, err
	}
	now := s.now()
	switch req.Type {
	case domain.GrantIndividual:
		if req.MemberID == "" {
			return domain.RetakeGrant{}, domain.Declined(domain.ReasonInvalidGrant, "individual retake requires a member")
		}
	case domain.GrantClassWide:
		if req.MemberID != "" {
			return domain.RetakeGrant{}, domain.Declined(domain.ReasonInvalidGrant, "class-wide retake cannot name a member")
		}
	default:
		return domain.RetakeGrant{}, domain.Declined(domain.ReasonInvalidGrant, "unknown retake type %q", req.Type)
	}
	if !req.ExpiresAt.After(now) {
		return domain.RetakeGrant{}, domain.Declined(domain.ReasonInvalidGrant, "expiry must be in the future")
	}

	unlock, err := s.locker.Lock(ctx, quizLockKey(quizID))
	if err != nil {
		return domain.RetakeGrant{}, fmt.Errorf("lock quiz: %w", err)
	}
	defer unlock()

	grant := domain.RetakeGrant{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		Type:      req.Type,
		MemberID:  req.MemberID,
		ExpiresAt: req.ExpiresAt,
		Reason:    req.Reason,
		GrantedBy: req.GrantedBy,
		CreatedAt: now,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if grant.Type == domain.GrantClassWide {
			limit := s.classWideCap(quiz)
			issued, err := tx.CountClassWideGrants(ctx, quizID)
			if err != nil {
				return err
			}
			if limit > 0 && issued >= limit {
				return domain.Declined(domain.ReasonRetakeCapExceeded, "quiz allows %d class-wide retakes", limit)
			}
		}
		return tx.InsertGrant(ctx, grant)
	})
	if err != nil {
		return domain.RetakeGrant{}, err
	}
	return grant, nil
}

// RevokeRetake withdraws a grant that has not been used yet. Revoking twice
// is acknowledged.
func (s *QuizService) RevokeRetake(ctx context.Context, grantID string) error {
	now := s.now()
	return s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		grant, err := tx.GetGrantForUpdate(ctx, grantID)
		if errors.Is(err, domain.ErrGrantNotFound) {
			return domain.Declined(domain.ReasonGrantNotFound, "retake grant %s not found", grantID)
		}
		if err != nil {
			return err
		}
		if grant.Used {
			return domain.Declined(domain.ReasonGrantUsed, "retake grant already used")
		}
		if grant.RevokedAt != nil {
			return nil
		}
		return tx.RevokeGrant(ctx, grantID, now)
	})
}

// ListRetakes returns the quiz's grant ledger, oldest first.
func (s *QuizService) ListRetakes(ctx context.Context, quizID string) ([]domain.RetakeGrant, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.store.ListGrants(ctx, quizID)
}

func (s *QuizService) classWideCap(quiz domain.Quiz) int {
	if quiz.MaxClassWideRetakes > 0 {
		return quiz.MaxClassWideRetakes
	}
	return s.opts.MaxClassWideRetakes
}
