package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-ranking-service/internal/domain"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 64
)

// QuizRepository stores quizzes (in-memory, Postgres, Redis cache).
type QuizRepository interface {
	// Insert stores quiz under quiz.Code, returning domain.ErrCodeTaken if the code exists.
	Insert(ctx context.Context, quiz domain.Quiz) error
	// Get returns domain.ErrQuizNotFound for unknown codes.
	Get(ctx context.Context, code string) (domain.Quiz, error)
	// List returns quizzes in creation order.
	List(ctx context.Context) ([]domain.Quiz, error)
}

// QuizCatalog validates drafts and assigns unique public codes.
type QuizCatalog struct {
	repo    QuizRepository
	now     func() time.Time
	newCode func() string
}

func NewQuizCatalog(repo QuizRepository) *QuizCatalog {
	return NewQuizCatalogWithCodes(repo, RandomCodes(time.Now().UnixNano()))
}

// NewQuizCatalogWithCodes injects the code generator (deterministic in tests).
func NewQuizCatalogWithCodes(repo QuizRepository, newCode func() string) *QuizCatalog {
	return &QuizCatalog{repo: repo, now: time.Now, newCode: newCode}
}

// RandomCodes returns a goroutine-safe generator of 6-character codes.
func RandomCodes(seed int64) func() string {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		b := make([]byte, domain.CodeLength)
		for i := range b {
			b[i] = codeAlphabet[rnd.Intn(len(codeAlphabet))]
		}
		return string(b)
	}
}

// CreateQuiz validates the draft and stores it under a fresh code.
func (c *QuizCatalog) CreateQuiz(ctx context.Context, creatorID string, draft domain.QuizDraft) (domain.Quiz, error) {
	if err := draft.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		Name:      strings.TrimSpace(draft.Name),
		Questions: cloneQuestions(draft.Questions),
		CreatedAt: c.now(),
		CreatedBy: creatorID,
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		quiz.Code = c.newCode()
		err := c.repo.Insert(ctx, quiz)
		if err == nil {
			return quiz, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
		}
	}
	return domain.Quiz{}, fmt.Errorf("no free quiz code after %d attempts", maxCodeAttempts)
}

// GetQuiz looks a quiz up by code, ignoring case and surrounding space.
func (c *QuizCatalog) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	code = NormalizeCode(code)
	if code == "" {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return c.repo.Get(ctx, code)
}

func (c *QuizCatalog) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return c.repo.List(ctx)
}

// NormalizeCode upper-cases and trims a user supplied quiz code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cloneQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	for i, q := range in {
		out[i] = domain.Question{
			Text:         strings.TrimSpace(q.Text),
			Options:      append([]string(nil), q.Options...),
			CorrectIndex: q.CorrectIndex,
		}
	}
	return out
}
