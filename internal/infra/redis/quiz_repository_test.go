package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/infra/memory"
)

func TestQuizRepositoryCachesBackingStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	backing := &countingQuizzes{QuizRepository: memory.NewQuizRepository()}
	if err := backing.QuizRepository.Insert(ctx, sampleQuiz("ABC123")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := NewQuizRepository(client, backing, time.Minute)

	quiz, err := repo.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Name != "Sample" || len(quiz.Questions) != 1 || quiz.Questions[0].CorrectIndex != 1 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if backing.count() != 1 {
		t.Fatalf("expected backing store called once, got %d", backing.count())
	}
	if !mr.Exists("quiz:ABC123") {
		t.Fatalf("expected quiz cached in redis")
	}
	if ttl := mr.TTL("quiz:ABC123"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected cache ttl %v", ttl)
	}

	// second call hits the cache
	if _, err := repo.Get(ctx, "ABC123"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if backing.count() != 1 {
		t.Fatalf("expected cache hit, backing calls=%d", backing.count())
	}

	if _, err := repo.Get(ctx, "ZZZ999"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestQuizRepositorySingleflight(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	gate := make(chan struct{})
	backing := &countingQuizzes{QuizRepository: memory.NewQuizRepository(), gate: gate}
	_ = backing.QuizRepository.Insert(ctx, sampleQuiz("ABC123"))
	repo := NewQuizRepository(client, backing, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Get(ctx, "ABC123"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if backing.count() != 1 {
		t.Fatalf("expected one backing load, got %d", backing.count())
	}
}

func TestQuizRepositoryWritesThroughOnInsert(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	backing := memory.NewQuizRepository()
	repo := NewQuizRepository(client, backing, time.Minute)

	if err := repo.Insert(ctx, sampleQuiz("NEW001")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := backing.Get(ctx, "NEW001"); err != nil {
		t.Fatalf("backing store should have the quiz: %v", err)
	}
	if !mr.Exists("quiz:NEW001") {
		t.Fatalf("insert should warm the cache")
	}
	if err := repo.Insert(ctx, sampleQuiz("NEW001")); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken from backing store, got %v", err)
	}
}

func TestQuizRepositoryStandalone(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewQuizRepository(client, nil, time.Minute)

	for _, code := range []string{"BBB222", "AAA111"} {
		if err := repo.Insert(ctx, sampleQuiz(code)); err != nil {
			t.Fatalf("insert %s: %v", code, err)
		}
	}
	if err := repo.Insert(ctx, sampleQuiz("AAA111")); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
	if ttl := mr.TTL("quiz:AAA111"); ttl != 0 {
		t.Fatalf("standalone quizzes must not expire, ttl=%v", ttl)
	}

	quizzes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(quizzes) != 2 || quizzes[0].Code != "BBB222" || quizzes[1].Code != "AAA111" {
		t.Fatalf("expected creation order, got %+v", quizzes)
	}
	if _, err := repo.Get(ctx, "CCC333"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingQuizzes struct {
	*memory.QuizRepository
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (c *countingQuizzes) Get(ctx context.Context, code string) (domain.Quiz, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.gate != nil {
		<-c.gate
	}
	return c.QuizRepository.Get(ctx, code)
}

func (c *countingQuizzes) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func sampleQuiz(code string) domain.Quiz {
	return domain.Quiz{
		Code: code,
		Name: "Sample",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
		},
		CreatedAt: time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC),
		CreatedBy: "operator",
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}
