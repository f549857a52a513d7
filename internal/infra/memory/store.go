package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Transactions run one at
// a time against a copy of the data that replaces the live set on success.
type Store struct {
	mu   sync.Mutex
	data *dataset
}

type dataset struct {
	quizzes     map[string]domain.Quiz
	attempts    map[string]domain.Attempt
	grants      map[string]domain.RetakeGrant
	corrections map[string]domain.QuestionCorrection
	mods        []domain.ScoreModification
}

func NewStore() *Store {
	return &Store{data: &dataset{
		quizzes:     make(map[string]domain.Quiz),
		attempts:    make(map[string]domain.Attempt),
		grants:      make(map[string]domain.RetakeGrant),
		corrections: make(map[string]domain.QuestionCorrection),
	}}
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		quizzes:     make(map[string]domain.Quiz, len(d.quizzes)),
		attempts:    make(map[string]domain.Attempt, len(d.attempts)),
		grants:      make(map[string]domain.RetakeGrant, len(d.grants)),
		corrections: make(map[string]domain.QuestionCorrection, len(d.corrections)),
		mods:        append([]domain.ScoreModification(nil), d.mods...),
	}
	for k, v := range d.quizzes {
		out.quizzes[k] = v
	}
	for k, v := range d.attempts {
		out.attempts[k] = v
	}
	for k, v := range d.grants {
		out.grants[k] = v
	}
	for k, v := range d.corrections {
		out.corrections[k] = v
	}
	return out
}

func (s *Store) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz.Questions = append([]domain.Question(nil), quiz.Questions...)
	s.data.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.data.quizzes, quizID)
	removed := make(map[string]struct{})
	for id, a := range s.data.attempts {
		if a.QuizID == quizID {
			removed[id] = struct{}{}
			delete(s.data.attempts, id)
		}
	}
	for id, g := range s.data.grants {
		if g.QuizID == quizID {
			delete(s.data.grants, id)
		}
	}
	for key, c := range s.data.corrections {
		if c.QuizID == quizID {
			delete(s.data.corrections, key)
		}
	}
	kept := s.data.mods[:0]
	for _, m := range s.data.mods {
		if _, gone := removed[m.AttemptID]; !gone {
			kept = append(kept, m)
		}
	}
	s.data.mods = kept
	return nil
}

// LoadQuiz makes the store usable as a QuizLoader behind a cache.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.data.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *Store) ListSubmittedAttemptIDs(_ context.Context, quizID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts := make([]domain.Attempt, 0)
	for _, a := range s.data.attempts {
		if a.QuizID == quizID && a.Status == domain.AttemptSubmitted {
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.Before(attempts[j].StartedAt)
		}
		return attempts[i].ID < attempts[j].ID
	})
	ids := make([]string, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	return ids, nil
}

func (s *Store) ListGrants(_ context.Context, quizID string) ([]domain.RetakeGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := make([]domain.RetakeGrant, 0)
	for _, g := range s.data.grants {
		if g.QuizID == quizID {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].ID < grants[j].ID
	})
	return grants, nil
}

func (s *Store) ListScoreModifications(_ context.Context, attemptID string) ([]domain.ScoreModification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mods := make([]domain.ScoreModification, 0)
	for _, m := range s.data.mods {
		if m.AttemptID == attemptID {
			mods = append(mods, m)
		}
	}
	return mods, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(ctx, &tx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

type tx struct {
	d *dataset
}

func (t *tx) FindInProgress(_ context.Context, quizID, memberID string) (domain.Attempt, bool, error) {
	for _, a := range t.d.attempts {
		if a.QuizID == quizID && a.MemberID == memberID && a.Status == domain.AttemptInProgress {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (t *tx) HasSubmitted(_ context.Context, quizID, memberID string) (bool, error) {
	for _, a := range t.d.attempts {
		if a.QuizID == quizID && a.MemberID == memberID && a.Status == domain.AttemptSubmitted {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	if _, ok := t.d.quizzes[attempt.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	if _, exists, _ := t.FindInProgress(ctx, attempt.QuizID, attempt.MemberID); exists {
		return domain.ErrAttemptConflict
	}
	t.d.attempts[attempt.ID] = attempt
	return nil
}

func (t *tx) GetAttemptForUpdate(_ context.Context, attemptID string) (domain.Attempt, error) {
	a, ok := t.d.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (t *tx) UpdateAttempt(_ context.Context, attempt domain.Attempt) error {
	if _, ok := t.d.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.UserAnswers = append([]domain.CompactAnswer(nil), attempt.UserAnswers...)
	t.d.attempts[attempt.ID] = attempt
	return nil
}

func (t *tx) ConsumeGrant(_ context.Context, quizID, memberID string, now time.Time) (domain.RetakeGrant, bool, error) {
	var best *domain.RetakeGrant
	for _, g := range t.d.grants {
		if g.QuizID != quizID || !g.Usable(memberID, now) {
			continue
		}
		if best == nil || domain.GrantPrecedes(g, *best) {
			candidate := g
			best = &candidate
		}
	}
	if best == nil {
		return domain.RetakeGrant{}, false, nil
	}
	usedAt := now
	best.Used = true
	best.UsedAt = &usedAt
	best.UsedBy = memberID
	t.d.grants[best.ID] = *best
	return *best, true, nil
}

func (t *tx) InsertGrant(_ context.Context, grant domain.RetakeGrant) error {
	t.d.grants[grant.ID] = grant
	return nil
}

func (t *tx) CountClassWideGrants(_ context.Context, quizID string) (int, error) {
	n := 0
	for _, g := range t.d.grants {
		if g.QuizID == quizID && g.Type == domain.GrantClassWide {
			n++
		}
	}
	return n, nil
}

func (t *tx) GetGrantForUpdate(_ context.Context, grantID string) (domain.RetakeGrant, error) {
	g, ok := t.d.grants[grantID]
	if !ok {
		return domain.RetakeGrant{}, domain.ErrGrantNotFound
	}
	return g, nil
}

func (t *tx) RevokeGrant(_ context.Context, grantID string, at time.Time) error {
	g, ok := t.d.grants[grantID]
	if !ok {
		return domain.ErrGrantNotFound
	}
	revokedAt := at
	g.RevokedAt = &revokedAt
	t.d.grants[grantID] = g
	return nil
}

func (t *tx) InsertQuestionCorrection(_ context.Context, correction domain.QuestionCorrection) error {
	for _, c := range t.d.corrections {
		if c.QuizID == correction.QuizID && c.QuestionID == correction.QuestionID {
			return domain.ErrDuplicateCorrection
		}
	}
	t.d.corrections[correction.ID] = correction
	return nil
}

func (t *tx) FindQuestionCorrection(_ context.Context, quizID string, questionID int) (domain.QuestionCorrection, bool, error) {
	for _, c := range t.d.corrections {
		if c.QuizID == quizID && c.QuestionID == questionID {
			return c, true, nil
		}
	}
	return domain.QuestionCorrection{}, false, nil
}

func (t *tx) HasCorrectionModification(_ context.Context, attemptID, correctionID string) (bool, error) {
	for _, m := range t.d.mods {
		if m.AttemptID == attemptID && m.QuestionCorrectionID == correctionID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertScoreModification(_ context.Context, mod domain.ScoreModification) error {
	if _, ok := t.d.attempts[mod.AttemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.d.mods = append(t.d.mods, mod)
	return nil
}
