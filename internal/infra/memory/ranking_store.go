package memory

import (
	"context"
	"sync"

	"quiz-ranking-service/internal/domain"
)

// RankingStore is an in-memory implementation of app.RankingStore.
type RankingStore struct {
	mu      sync.RWMutex
	periods map[string]*periodBucket
}

type periodBucket struct {
	stats map[string]*domain.PeriodStat
	order []string
}

func NewRankingStore() *RankingStore {
	return &RankingStore{periods: make(map[string]*periodBucket)}
}

func (s *RankingStore) Apply(_ context.Context, periodID string, update domain.StatUpdate) (domain.PeriodStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.periods[periodID]
	if !ok {
		bucket = &periodBucket{stats: make(map[string]*domain.PeriodStat)}
		s.periods[periodID] = bucket
	}
	stat, ok := bucket.stats[update.ParticipantID]
	if !ok {
		stat = &domain.PeriodStat{}
	}
	if err := stat.Apply(update); err != nil {
		return domain.PeriodStat{}, err
	}
	if !ok {
		bucket.stats[update.ParticipantID] = stat
		bucket.order = append(bucket.order, update.ParticipantID)
	}
	return copyStat(*stat), nil
}

func (s *RankingStore) Stats(_ context.Context, periodID string) ([]domain.PeriodStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.periods[periodID]
	if !ok {
		return []domain.PeriodStat{}, nil
	}
	out := make([]domain.PeriodStat, 0, len(bucket.order))
	for _, id := range bucket.order {
		out = append(out, copyStat(*bucket.stats[id]))
	}
	return out, nil
}

func copyStat(stat domain.PeriodStat) domain.PeriodStat {
	stat.Quizzes = append([]domain.QuizSummary(nil), stat.Quizzes...)
	return stat
}
