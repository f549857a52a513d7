package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/postgres"
	pgmigrations "classroom-quiz-service/internal/infra/postgres/migrations"
	infraredis "classroom-quiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type env struct {
	service *app.QuizService
	store   *postgres.Store
	now     time.Time
	mu      sync.Mutex
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) set(t time.Time) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	e := &env{store: postgres.NewStore(pool), now: t0}
	e.service = app.NewQuizServiceWithClock(
		e.store,
		infraredis.NewQuizRepository(redisClient, e.store, 5*time.Minute),
		infraredis.NewLocker(redisClient, 30*time.Second, 10*time.Second),
		app.DefaultOptions(),
		e.clock,
	)
	if _, err := e.service.PutQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("put quiz: %v", err)
	}
	return e
}

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.set(t0.Add(10 * time.Minute))

	var (
		wg  sync.WaitGroup
		ids = make([]string, 8)
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.service.StartAttempt(ctx, "quiz-1", "m1")
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			ids[i] = res.Attempt.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one attempt, got %v", ids)
		}
	}

	res, err := e.service.SubmitAttempt(ctx, "quiz-1", "m1", map[int]domain.Answer{
		1: domain.TextAnswer("4"),
		3: domain.TextAnswer(" PARIS "),
	}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 2 || res.TotalQuestions != 3 || res.Percentage != 66.67 {
		t.Fatalf("unexpected result %+v", res)
	}

	detail, err := e.service.GetReconstructedResult(ctx, ids[0])
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(detail.Questions) != 3 || !detail.Questions[2].Correct {
		t.Fatalf("unexpected breakdown %+v", detail.Questions)
	}

	_, err = e.service.StartAttempt(ctx, "quiz-1", "m1")
	if reason, _ := domain.DeclineReason(err); reason != domain.ReasonAlreadyCompleted {
		t.Fatalf("expected already-completed, got %v", err)
	}
}

func TestClassWideGrantConsumedOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	members := []string{"m1", "m2", "m3"}
	for _, m := range members {
		if _, err := e.service.StartAttempt(ctx, "quiz-1", m); err != nil {
			t.Fatalf("start %s: %v", m, err)
		}
		if _, err := e.service.SubmitAttempt(ctx, "quiz-1", m, nil, false); err != nil {
			t.Fatalf("submit %s: %v", m, err)
		}
	}
	if _, err := e.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{
		Type:      domain.GrantClassWide,
		ExpiresAt: t0.Add(2 * time.Hour),
		Reason:    "fire drill",
		GrantedBy: "teacher-1",
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, m := range members {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			_, err := e.service.StartAttempt(ctx, "quiz-1", m)
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
				return
			}
			if reason, _ := domain.DeclineReason(err); reason != domain.ReasonAlreadyCompleted {
				t.Errorf("unexpected error for %s: %v", m, err)
			}
		}(m)
	}
	wg.Wait()
	if started != 1 {
		t.Fatalf("expected exactly one retake, got %d", started)
	}

	grants, err := e.service.ListRetakes(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 1 || !grants[0].Used || grants[0].UsedBy == "" {
		t.Fatalf("expected grant marked used, got %+v", grants)
	}
}

func TestQuestionCorrectionEndToEnd(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	if _, err := e.service.StartAttempt(ctx, "quiz-1", "m1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	submitted, err := e.service.SubmitAttempt(ctx, "quiz-1", "m1", map[int]domain.Answer{1: domain.TextAnswer("4")}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := e.service.ApplyQuestionCorrection(ctx, "quiz-1", 2, 1, "ambiguous", "teacher-1")
	if err != nil {
		t.Fatalf("correction: %v", err)
	}
	if res.AffectedCount != 1 {
		t.Fatalf("expected one attempt corrected, got %+v", res)
	}
	_, err = e.service.ApplyQuestionCorrection(ctx, "quiz-1", 2, 1, "again", "teacher-1")
	if reason, _ := domain.DeclineReason(err); reason != domain.ReasonDuplicate {
		t.Fatalf("expected duplicate, got %v", err)
	}

	if _, err := e.service.ModifyScore(ctx, submitted.AttemptID, 3, "regrade", "teacher-1"); err != nil {
		t.Fatalf("modify: %v", err)
	}
	mods, err := e.service.ListScoreModifications(ctx, submitted.AttemptID)
	if err != nil {
		t.Fatalf("modifications: %v", err)
	}
	if len(mods) != 2 || mods[0].NewScore != 2 || mods[0].QuestionCorrectionID != res.Correction.ID || mods[1].OriginalScore != 2 || mods[1].NewScore != 3 {
		t.Fatalf("unexpected history %+v", mods)
	}

	if err := e.service.DeleteQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.store.GetAttempt(ctx, submitted.AttemptID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempts removed with the quiz, got %v", err)
	}
}

func TestSecondInProgressAttemptRejectedByStorage(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	attempt := func(id string) domain.Attempt {
		return domain.Attempt{ID: id, QuizID: "quiz-1", MemberID: "m1", Status: domain.AttemptInProgress, StartedAt: t0, TotalQuestions: 3}
	}
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateAttempt(ctx, attempt("a1"))
	})
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateAttempt(ctx, attempt("a2"))
	})
	if !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected ErrAttemptConflict, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		ClassID:   "class-1",
		Title:     "Integration",
		Duration:  30,
		StartTime: t0,
		EndTime:   t0.Add(time.Hour),
		Questions: []domain.Question{
			{ID: 1, Type: domain.MultipleChoice, Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: domain.TextAnswer("4")},
			{ID: 2, Type: domain.TrueFalse, Prompt: "Water boils at 50C.", CorrectAnswer: domain.BoolAnswer(false)},
			{ID: 3, Type: domain.FillInTheBlank, Prompt: "Capital of France?", CorrectAnswer: domain.ListAnswer("Paris")},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
