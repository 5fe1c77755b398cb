package cli

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/config"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/infra/postgres"
)

// NewCreateQuizCmd stores a quiz authored as YAML in the Postgres catalog.
func NewCreateQuizCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create-quiz",
		Short: "Create a quiz from a YAML definition and print its code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			draft, err := loadDraft(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			catalog := app.NewQuizCatalog(postgres.NewQuizRepository(pool))
			quiz, err := catalog.CreateQuiz(ctx, cfg.Operator.ID, draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d questions\n", quiz.Code, quiz.Name, len(quiz.Questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the quiz YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadDraft reads a quiz definition:
//
//	name: Capitals
//	questions:
//	  - text: Capital of France?
//	    options: [Paris, Rome, Oslo]
//	    correct: 0
func loadDraft(path string) (domain.QuizDraft, error) {
	var draft domain.QuizDraft
	data, err := os.ReadFile(path)
	if err != nil {
		return draft, err
	}
	if err := yaml.Unmarshal(data, &draft); err != nil {
		return draft, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := draft.Validate(); err != nil {
		return draft, err
	}
	return draft, nil
}
