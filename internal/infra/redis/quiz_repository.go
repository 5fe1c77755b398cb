package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

const quizCodesKey = "quiz:codes"

// QuizRepository caches quizzes in Redis as JSON under quiz:{code}.
//
// With a backing repository (Postgres) it is a read-through cache: misses are loaded once per code
// through singleflight and written back with a jittered TTL. Without one, Redis is the store itself:
// quizzes are written with SETNX and no expiry, and quiz:codes keeps creation order.
type QuizRepository struct {
	client  *redis.Client
	backing app.QuizRepository
	ttl     time.Duration
	sf      singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, backing app.QuizRepository, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) Insert(ctx context.Context, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	if r.backing != nil {
		if err := r.backing.Insert(ctx, quiz); err != nil {
			return err
		}
		// warm the cache; a failure only costs a later miss
		_ = r.client.Set(ctx, r.key(quiz.Code), raw, r.ttlWithJitter()).Err()
		return nil
	}

	ok, err := r.client.SetNX(ctx, r.key(quiz.Code), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("store quiz: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	if err := r.client.RPush(ctx, quizCodesKey, quiz.Code).Err(); err != nil {
		return fmt.Errorf("index quiz: %w", err)
	}
	return nil
}

func (r *QuizRepository) Get(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok, err := r.cached(ctx, code); err != nil || ok {
		return quiz, err
	}
	if r.backing == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		// another caller may have filled the cache meanwhile
		if quiz, ok, err := r.cached(ctx, code); err != nil || ok {
			return quiz, err
		}
		quiz, err := r.backing.Get(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}
		if raw, err := json.Marshal(quiz); err == nil {
			_ = r.client.Set(ctx, r.key(code), raw, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) List(ctx context.Context) ([]domain.Quiz, error) {
	if r.backing != nil {
		return r.backing.List(ctx)
	}
	codes, err := r.client.LRange(ctx, quizCodesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list quiz codes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(codes))
	for _, code := range codes {
		quiz, ok, err := r.cached(ctx, code)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, quiz)
		}
	}
	return out, nil
}

func (r *QuizRepository) cached(ctx context.Context, code string) (domain.Quiz, bool, error) {
	raw, err := r.client.Get(ctx, r.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		if r.backing != nil {
			// cache outage falls through to the backing store
			return domain.Quiz{}, false, nil
		}
		return domain.Quiz{}, false, fmt.Errorf("get quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false, fmt.Errorf("decode quiz %s: %w", code, err)
	}
	return quiz, true, nil
}

func (r *QuizRepository) key(code string) string {
	return "quiz:" + code
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
