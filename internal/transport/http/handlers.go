package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ActorHeader carries the identity established by the upstream gateway: the
// member on student routes, the teacher on management routes.
const ActorHeader = "X-Actor-ID"

// Handler exposes the quiz service over REST.
type Handler struct {
	service  *app.QuizService
	validate *validator.Validate
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type submitRequest struct {
	Answers  map[int]domain.Answer `json:"answers"`
	TimedOut bool                  `json:"timedOut"`
}

type grantRequest struct {
	Type      domain.GrantType `json:"type" validate:"required,oneof=individual class_wide"`
	MemberID  string           `json:"memberId"`
	ExpiresAt time.Time        `json:"expiresAt" validate:"required"`
	Reason    string           `json:"reason" validate:"max=500"`
}

type correctionRequest struct {
	QuestionID  *int   `json:"questionId" validate:"required"`
	BonusPoints int    `json:"bonusPoints"`
	Reason      string `json:"reason" validate:"max=500"`
}

type scoreRequest struct {
	Score  *int   `json:"score" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + ActorHeader})
		return "", false
	}
	return id, true
}

func (h *Handler) PutQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz domain.Quiz
	if err := json.NewDecoder(r.Body).Decode(&quiz); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}
	quiz.ID = chi.URLParam(r, "quizID")
	saved, err := h.service.PutQuiz(r.Context(), quiz)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	memberID, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.service.StartAttempt(r.Context(), chi.URLParam(r, "quizID"), memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Resuming {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	memberID, ok := actor(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.SubmitAttempt(r.Context(), chi.URLParam(r, "quizID"), memberID, req.Answers, req.TimedOut)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GrantRetake(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := actor(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant, err := h.service.GrantRetake(r.Context(), chi.URLParam(r, "quizID"), app.GrantRequest{
		Type:      req.Type,
		MemberID:  req.MemberID,
		ExpiresAt: req.ExpiresAt,
		Reason:    req.Reason,
		GrantedBy: teacherID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (h *Handler) ListRetakes(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListRetakes(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *Handler) RevokeRetake(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokeRetake(r.Context(), chi.URLParam(r, "grantID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApplyCorrection(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := actor(w, r)
	if !ok {
		return
	}
	var req correctionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.ApplyQuestionCorrection(r.Context(), chi.URLParam(r, "quizID"), *req.QuestionID, req.BonusPoints, req.Reason, teacherID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ModifyScore(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := actor(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	attempt, err := h.service.ModifyScore(r.Context(), chi.URLParam(r, "attemptID"), *req.Score, req.Reason, teacherID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) ListScoreModifications(w http.ResponseWriter, r *http.Request) {
	mods, err := h.service.ListScoreModifications(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mods)
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetReconstructedResult(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetStudentResult only serves the attempt's own member.
func (h *Handler) GetStudentResult(w http.ResponseWriter, r *http.Request) {
	memberID, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.service.GetStudentResult(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Attempt.MemberID != memberID {
		writeError(w, r, domain.ErrAttemptNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
