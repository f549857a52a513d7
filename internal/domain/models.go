package domain

import "time"

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillInTheBlank QuestionType = "fill_in_the_blank"
)

// Question is one entry of a quiz's question bank. IDs are caller-assigned
// and only need to be unique within the quiz; zero and negative values are
// accepted.
type Question struct {
	ID            int          `json:"id" yaml:"id"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,oneof=multiple_choice true_false fill_in_the_blank"`
	Topic         string       `json:"topic,omitempty" yaml:"topic"`
	Prompt        string       `json:"prompt" yaml:"prompt" validate:"required"`
	Options       []string     `json:"options,omitempty" yaml:"options" validate:"omitempty,dive,required"`
	CorrectAnswer Answer       `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string       `json:"explanation,omitempty" yaml:"explanation"`
}

// Redacted returns a copy safe to hand to a member taking the quiz.
func (q Question) Redacted() Question {
	q.CorrectAnswer = Answer{}
	q.Explanation = ""
	return q
}

// Quiz is a quiz definition owned by a class. The question bank is replaced
// as a whole when the quiz is edited.
type Quiz struct {
	ID                  string     `json:"id" yaml:"id" validate:"required"`
	ClassID             string     `json:"classId" yaml:"classId"`
	Title               string     `json:"title" yaml:"title"`
	Questions           []Question `json:"questions" yaml:"questions" validate:"dive"`
	Duration            int        `json:"duration" yaml:"duration" validate:"gt=0"` // minutes
	StartTime           time.Time  `json:"startTime" yaml:"startTime" validate:"required"`
	EndTime             time.Time  `json:"endTime" yaml:"endTime" validate:"required,gtfield=StartTime"`
	ShowResults         bool       `json:"showResults" yaml:"showResults"`
	ShuffleQuestions    bool       `json:"shuffleQuestions" yaml:"shuffleQuestions"`
	MaxClassWideRetakes int        `json:"maxClassWideRetakes,omitempty" yaml:"maxClassWideRetakes" validate:"gte=0"`
	UpdatedAt           time.Time  `json:"updatedAt,omitempty" yaml:"-"`
}

// DurationBudget is the personal time budget of the quiz.
func (q Quiz) DurationBudget() time.Duration {
	return time.Duration(q.Duration) * time.Minute
}

// Question finds a question by id.
func (q Quiz) Question(id int) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AttemptStatus is the persisted state of an attempt row.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// CompactAnswer is the persisted form of one submitted answer.
type CompactAnswer struct {
	QuestionID int    `json:"questionId"`
	Answer     Answer `json:"answer"`
}

// Attempt is one member's try at one quiz.
type Attempt struct {
	ID             string          `json:"id"`
	QuizID         string          `json:"quizId"`
	MemberID       string          `json:"memberId"`
	Status         AttemptStatus   `json:"status"`
	StartedAt      time.Time       `json:"startedAt"`
	SubmittedAt    *time.Time      `json:"submittedAt,omitempty"`
	TotalQuestions int             `json:"totalQuestions"`
	Score          int             `json:"score"`
	Percentage     float64         `json:"percentage"`
	UserAnswers    []CompactAnswer `json:"userAnswers,omitempty"`
	AutoSubmitted  bool            `json:"autoSubmitted"`
	QuestionOrder  []int           `json:"questionOrder,omitempty"`
	RetakeGrantID  string          `json:"retakeGrantId,omitempty"`
}

// Deadline is when the attempt's time budget runs out: the personal duration
// from the start, capped by the quiz end time.
func (a Attempt) Deadline(quiz Quiz) time.Time {
	personal := a.StartedAt.Add(quiz.DurationBudget())
	if quiz.EndTime.Before(personal) {
		return quiz.EndTime
	}
	return personal
}

// GrantType distinguishes retakes for one member from class-wide ones.
type GrantType string

const (
	GrantIndividual GrantType = "individual"
	GrantClassWide  GrantType = "class_wide"
)

// RetakeGrant reopens a submitted attempt for one more try.
type RetakeGrant struct {
	ID        string     `json:"id"`
	QuizID    string     `json:"quizId"`
	Type      GrantType  `json:"type"`
	MemberID  string     `json:"memberId,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	UsedBy    string     `json:"usedBy,omitempty"`
	Reason    string     `json:"reason"`
	GrantedBy string     `json:"grantedBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Usable reports whether the grant can still reopen an attempt for memberID.
func (g RetakeGrant) Usable(memberID string, now time.Time) bool {
	if g.Used || g.RevokedAt != nil || !now.Before(g.ExpiresAt) {
		return false
	}
	switch g.Type {
	case GrantIndividual:
		return g.MemberID == memberID
	case GrantClassWide:
		return g.MemberID == ""
	}
	return false
}

// GrantPrecedes orders eligible grants: earliest expiry first, individual
// before class-wide, then oldest.
func GrantPrecedes(a, b RetakeGrant) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	if a.Type != b.Type {
		return a.Type == GrantIndividual
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// QuestionCorrection is a quiz-wide bonus for one question.
type QuestionCorrection struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	QuestionID  int       `json:"questionId"`
	BonusPoints int       `json:"bonusPoints"`
	Reason      string    `json:"reason"`
	AppliedAt   time.Time `json:"appliedAt"`
	AppliedBy   string    `json:"appliedBy,omitempty"`
}

// ScoreModification records one change to an attempt's stored score.
type ScoreModification struct {
	ID                   string    `json:"id"`
	AttemptID            string    `json:"attemptId"`
	OriginalScore        int       `json:"originalScore"`
	NewScore             int       `json:"newScore"`
	Reason               string    `json:"reason"`
	ModifiedAt           time.Time `json:"modifiedAt"`
	ModifiedBy           string    `json:"modifiedBy,omitempty"`
	QuestionCorrectionID string    `json:"questionCorrectionId,omitempty"`
}

// AnswerDetail is the expanded, display-ready view of one question of an attempt.
type AnswerDetail struct {
	QuestionID    int          `json:"questionId"`
	Type          QuestionType `json:"type"`
	Topic         string       `json:"topic,omitempty"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	UserAnswer    Answer       `json:"userAnswer"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Correct       bool         `json:"correct"`
	Points        int          `json:"points"`
	Explanation   string       `json:"explanation,omitempty"`
}
