package app

import (
	"context"
	"sort"
	"time"

	"quiz-ranking-service/internal/domain"
)

// RankingStore keeps period buckets of participant statistics.
type RankingStore interface {
	// Apply folds update into the participant's stat for periodID atomically and returns the new stat.
	// It must surface domain.ErrDuplicateRankingUpdate from PeriodStat.Apply untouched.
	Apply(ctx context.Context, periodID string, update domain.StatUpdate) (domain.PeriodStat, error)
	// Stats returns the bucket for periodID in the order participants first appeared in it.
	Stats(ctx context.Context, periodID string) ([]domain.PeriodStat, error)
}

// RankingAggregator derives rankings for fixed 14-day periods.
type RankingAggregator struct {
	store RankingStore
	now   func() time.Time
}

func NewRankingAggregator(store RankingStore) *RankingAggregator {
	return NewRankingAggregatorWithClock(store, time.Now)
}

// NewRankingAggregatorWithClock is used by tests to pin the current period.
func NewRankingAggregatorWithClock(store RankingStore, now func() time.Time) *RankingAggregator {
	return &RankingAggregator{store: store, now: now}
}

// CurrentPeriod is the period containing the aggregator's clock.
func (a *RankingAggregator) CurrentPeriod() domain.Period {
	return domain.PeriodAt(a.now())
}

// UpdateForResult adds one result to periodID. Call exactly once per result; ResultStore is the only caller.
func (a *RankingAggregator) UpdateForResult(ctx context.Context, periodID string, update domain.StatUpdate) (domain.PeriodStat, error) {
	return a.store.Apply(ctx, periodID, update)
}

// Ranking returns periodID's stats sorted by average percentage, then correct answers, both descending.
func (a *RankingAggregator) Ranking(ctx context.Context, periodID string) ([]domain.PeriodStat, error) {
	stats, err := a.store.Stats(ctx, periodID)
	if err != nil {
		return nil, err
	}
	sortStats(stats)
	return stats, nil
}

func (a *RankingAggregator) CurrentRanking(ctx context.Context) ([]domain.PeriodStat, error) {
	return a.Ranking(ctx, a.CurrentPeriod().ID())
}

func (a *RankingAggregator) PreviousRanking(ctx context.Context) ([]domain.PeriodStat, error) {
	return a.Ranking(ctx, a.CurrentPeriod().Previous().ID())
}

// CompareRankings lists the current ranking with each participant's movement since the previous period.
func (a *RankingAggregator) CompareRankings(ctx context.Context) ([]domain.RankingChange, error) {
	current, err := a.CurrentRanking(ctx)
	if err != nil {
		return nil, err
	}
	previous, err := a.PreviousRanking(ctx)
	if err != nil {
		return nil, err
	}

	previousPositions := make(map[string]int, len(previous))
	for i, stat := range previous {
		previousPositions[stat.ParticipantID] = i + 1
	}

	changes := make([]domain.RankingChange, 0, len(current))
	for i, stat := range current {
		change := domain.RankingChange{Stat: stat, CurrentPosition: i + 1}
		if pos, ok := previousPositions[stat.ParticipantID]; ok {
			pos := pos
			change.PreviousPosition = &pos
		}
		change.Delta = domain.PositionDelta(change.CurrentPosition, change.PreviousPosition)
		changes = append(changes, change)
	}
	return changes, nil
}

// Position returns the participant's 1-based rank in the current period.
func (a *RankingAggregator) Position(ctx context.Context, participantID string) (int, bool, error) {
	ranking, err := a.CurrentRanking(ctx)
	if err != nil {
		return 0, false, err
	}
	pos, ok := positionOf(ranking, participantID)
	return pos, ok, nil
}

func positionOf(ranking []domain.PeriodStat, participantID string) (int, bool) {
	for i, stat := range ranking {
		if stat.ParticipantID == participantID {
			return i + 1, true
		}
	}
	return 0, false
}

func sortStats(stats []domain.PeriodStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].AveragePercentage != stats[j].AveragePercentage {
			return stats[i].AveragePercentage > stats[j].AveragePercentage
		}
		return stats[i].CorrectTotal > stats[j].CorrectTotal
	})
}
