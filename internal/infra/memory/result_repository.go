package memory

import (
	"context"
	"sync"

	"quiz-ranking-service/internal/domain"
)

// ResultRepository is an in-memory implementation of app.ResultRepository.
type ResultRepository struct {
	mu           sync.RWMutex
	results      map[string][]domain.Result
	byAttempt    map[attemptKey]int
	profiles     map[string]domain.ParticipantProfile
	profileOrder []string
}

type attemptKey struct {
	code          string
	participantID string
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{
		results:   make(map[string][]domain.Result),
		byAttempt: make(map[attemptKey]int),
		profiles:  make(map[string]domain.ParticipantProfile),
	}
}

func (r *ResultRepository) Find(_ context.Context, code, participantID string) (domain.Result, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byAttempt[attemptKey{code, participantID}]
	if !ok {
		return domain.Result{}, false, nil
	}
	return r.results[code][idx], true, nil
}

func (r *ResultRepository) Append(_ context.Context, result domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{result.QuizCode, result.ParticipantID}
	if idx, ok := r.byAttempt[key]; ok {
		return &domain.AlreadyAttemptedError{Prior: r.results[result.QuizCode][idx]}
	}
	r.byAttempt[key] = len(r.results[result.QuizCode])
	r.results[result.QuizCode] = append(r.results[result.QuizCode], result)
	return nil
}

func (r *ResultRepository) Results(_ context.Context, code string) ([]domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Result(nil), r.results[code]...), nil
}

func (r *ResultRepository) UpsertProfile(_ context.Context, profile domain.ParticipantProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[profile.ParticipantID]; !ok {
		r.profileOrder = append(r.profileOrder, profile.ParticipantID)
	}
	r.profiles[profile.ParticipantID] = profile
	return nil
}

func (r *ResultRepository) Profiles(_ context.Context) ([]domain.ParticipantProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantProfile, 0, len(r.profileOrder))
	for _, id := range r.profileOrder {
		out = append(out, r.profiles[id])
	}
	return out, nil
}
