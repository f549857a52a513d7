package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewQuizCmd groups quiz authoring commands.
func NewQuizCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage quiz definitions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Create or replace a quiz from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importQuiz(cmd.Context(), *configPath, args[0])
		},
	})
	return cmd
}

func importQuiz(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	quiz, err := readQuizFile(file)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured; nothing to import into")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	service, cleanup, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	saved, err := service.PutQuiz(ctx, quiz)
	if err != nil {
		return err
	}
	log.Printf("imported quiz %s (%d questions)", saved.ID, len(saved.Questions))
	return nil
}

func readQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	var quiz domain.Quiz
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return quiz, nil
}
