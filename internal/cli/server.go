package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/memory"
	"classroom-quiz-service/internal/infra/postgres"
	redisinfra "classroom-quiz-service/internal/infra/redis"
	transport "classroom-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service, cleanup, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	router := transport.NewRouter(transport.NewHandler(service), transport.NewWSHandler(service), cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newService wires storage, cache and locking from config. Without a
// Postgres URL everything lives in process memory; without a Redis address
// the cache and locks are process-local.
func newService(ctx context.Context, cfg config.Config) (*app.QuizService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		store = postgres.NewStore(pool)
	} else {
		log.Printf("postgres url not configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	lockTimeout := config.TTLDuration(cfg.Attempt.LockTimeout, 5*time.Second)

	var quizRepo app.QuizRepository
	var locker app.Locker
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, store, quizTTL)
		// redis.ttl is the lease of a held lock
		locker = redisinfra.NewLocker(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Second), lockTimeout)
	} else {
		quizRepo = memory.NewQuizRepository(store, quizTTL)
		locker = memory.NewLocker()
	}

	service := app.NewQuizService(store, quizRepo, locker, options(cfg))
	return service, cleanup, nil
}

func options(cfg config.Config) app.Options {
	opts := app.DefaultOptions()
	opts.MinStartWindow = config.TTLDuration(cfg.Attempt.MinStartWindow, opts.MinStartWindow)
	if cfg.Attempt.PersistShuffle != nil {
		opts.PersistShuffle = *cfg.Attempt.PersistShuffle
	}
	if cfg.Retake.MaxClassWide != nil {
		opts.MaxClassWideRetakes = *cfg.Retake.MaxClassWide
	}
	if cfg.Correction.Workers > 0 {
		opts.CorrectionWorkers = cfg.Correction.Workers
	}
	return opts
}
