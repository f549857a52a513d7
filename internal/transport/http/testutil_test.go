package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
)

// newTestServer serves a quiz that is open right now for thirty minutes.
func newTestServer(t *testing.T) (*httptest.Server, *app.QuizService) {
	t.Helper()
	store := memory.NewStore()
	service := app.NewQuizService(store, memory.NewQuizRepository(store, time.Minute), memory.NewLocker(), app.DefaultOptions())
	if _, err := service.PutQuiz(context.Background(), openQuiz()); err != nil {
		t.Fatalf("put quiz: %v", err)
	}
	ws := NewWSHandler(service)
	ws.tick = 20 * time.Millisecond
	server := httptest.NewServer(NewRouter(NewHandler(service), ws, nil))
	t.Cleanup(server.Close)
	return server, service
}

func openQuiz() domain.Quiz {
	now := time.Now().UTC()
	return domain.Quiz{
		ID:          "quiz-1",
		ClassID:     "class-1",
		Duration:    30,
		StartTime:   now.Add(-time.Minute),
		EndTime:     now.Add(time.Hour),
		ShowResults: true,
		Questions: []domain.Question{
			{ID: 1, Type: domain.MultipleChoice, Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: domain.TextAnswer("4")},
			{ID: 2, Type: domain.TrueFalse, Prompt: "The sky is green.", CorrectAnswer: domain.BoolAnswer(false)},
		},
	}
}
