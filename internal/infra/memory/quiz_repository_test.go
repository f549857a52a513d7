package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	store := NewStore()
	_ = store.SaveQuiz(context.Background(), sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := sampleQuiz()
	_ = store.SaveQuiz(ctx, quiz)
	repo := NewQuizRepository(store, time.Minute)

	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	quiz.Title = "Edited"
	_ = store.SaveQuiz(ctx, quiz)
	if got, _ := repo.GetQuiz(ctx, "quiz-1"); got.Title == "Edited" {
		t.Fatalf("expected stale cached copy before invalidation")
	}
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got, _ := repo.GetQuiz(ctx, "quiz-1"); got.Title != "Edited" {
		t.Fatalf("expected reload after invalidation, got %q", got.Title)
	}
}

func TestQuizRepositoryInvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiz := sampleQuiz()
	quiz.Title = "old"
	_ = store.SaveQuiz(ctx, quiz)
	loader := newGatedLoader(store)
	repo := NewQuizRepository(loader, time.Minute)

	done := make(chan domain.Quiz)
	go func() {
		got, _ := repo.GetQuiz(ctx, "quiz-1")
		done <- got
	}()
	<-loader.started

	quiz.Title = "new"
	_ = store.SaveQuiz(ctx, quiz)
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	if got := <-done; got.Title != "old" {
		t.Fatalf("expected the in-flight load to return its own read, got %q", got.Title)
	}

	if got, _ := repo.GetQuiz(ctx, "quiz-1"); got.Title != "new" {
		t.Fatalf("expected new title after invalidation, got %q", got.Title)
	}
}

func TestQuizRepositoryMissingQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStore(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "nope"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "Arithmetic",
		Duration:  30,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Questions: []domain.Question{
			{
				ID:            1,
				Type:          domain.MultipleChoice,
				Prompt:        "What is 2 + 2?",
				Options:       []string{"3", "4"},
				CorrectAnswer: domain.TextAnswer("4"),
			},
		},
	}
}

// gatedLoader blocks its first load after reading, until release is closed.
type gatedLoader struct {
	QuizLoader
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedLoader(loader QuizLoader) *gatedLoader {
	return &gatedLoader{QuizLoader: loader, started: make(chan struct{}), release: make(chan struct{})}
}

func (l *gatedLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := l.QuizLoader.LoadQuiz(ctx, quizID)
	l.once.Do(func() {
		close(l.started)
		<-l.release
	})
	return quiz, err
}
