package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classroom-quiz-service/internal/domain"
)

type errorPayload struct {
	Reason  domain.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

// errorStatus maps service errors onto HTTP statuses. Declined operations are
// expected outcomes and carry their reason code to the client.
func errorStatus(err error) (int, errorPayload) {
	var declined *domain.DeclinedError
	switch {
	case errors.As(err, &declined):
		return http.StatusUnprocessableEntity, errorPayload{Reason: declined.Reason, Message: declined.Message}
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrGrantNotFound):
		return http.StatusNotFound, errorPayload{Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest, errorPayload{Message: err.Error()}
	case errors.Is(err, domain.ErrAttemptConflict):
		return http.StatusConflict, errorPayload{Message: err.Error()}
	}
	return http.StatusInternalServerError, errorPayload{Message: "internal error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, payload)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorPayload{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
