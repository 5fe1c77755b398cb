package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quiz-ranking-service/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDraft(t *testing.T) {
	path := writeFile(t, `
name: Capitals
questions:
  - text: Capital of France?
    options: [Paris, Rome, Oslo]
    correct: 0
  - text: Capital of Norway?
    options: [Paris, Rome, Oslo]
    correct: 2
`)
	draft, err := loadDraft(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if draft.Name != "Capitals" || len(draft.Questions) != 2 {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if draft.Questions[1].CorrectIndex != 2 || draft.Questions[1].Options[2] != "Oslo" {
		t.Fatalf("unexpected second question: %+v", draft.Questions[1])
	}
}

func TestLoadDraftRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
name: Broken
questions:
  - text: Two options only?
    options: [yes, no]
    correct: 0
`)
	if _, err := loadDraft(path); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := loadDraft(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
