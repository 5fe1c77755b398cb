package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"quiz-ranking-service/internal/domain"
)

// ResultRepository persists results and participant profiles.
type ResultRepository interface {
	// Find returns the participant's result for the quiz, if any.
	Find(ctx context.Context, code, participantID string) (domain.Result, bool, error)
	// Append stores result, refusing a second result for the same quiz and participant
	// with a *domain.AlreadyAttemptedError.
	Append(ctx context.Context, result domain.Result) error
	// Results lists a quiz's results in completion order.
	Results(ctx context.Context, code string) ([]domain.Result, error)
	UpsertProfile(ctx context.Context, profile domain.ParticipantProfile) error
	// Profiles lists participants in first-seen order.
	Profiles(ctx context.Context) ([]domain.ParticipantProfile, error)
}

// NewResult is the input to ResultStore.RecordResult.
type NewResult struct {
	QuizCode      string
	QuizName      string
	ParticipantID string
	DisplayName   string
	Handle        string
	Score         int
	Total         int
	Answers       []domain.AttemptAnswer
}

// ResultStore records completed attempts and feeds the period ranking.
type ResultStore struct {
	repo    ResultRepository
	ranking *RankingAggregator
	now     func() time.Time
	newID   func() string
}

func NewResultStore(repo ResultRepository, ranking *RankingAggregator) *ResultStore {
	return NewResultStoreWithClock(repo, ranking, time.Now)
}

// NewResultStoreWithClock allows deterministic completion timestamps in tests.
func NewResultStoreWithClock(repo ResultRepository, ranking *RankingAggregator, now func() time.Time) *ResultStore {
	return &ResultStore{
		repo:    repo,
		ranking: ranking,
		now:     now,
		newID:   func() string { return uuid.NewString() },
	}
}

func (s *ResultStore) HasAttempted(ctx context.Context, code, participantID string) (bool, error) {
	_, ok, err := s.repo.Find(ctx, code, participantID)
	return ok, err
}

func (s *ResultStore) FindResult(ctx context.Context, code, participantID string) (domain.Result, bool, error) {
	return s.repo.Find(ctx, code, participantID)
}

// RecordResult appends the result, counts it in the period of its completion time and refreshes
// the participant profile. Once the result is stored both side effects run whatever the other's outcome.
// This is the only caller of RankingAggregator.UpdateForResult.
func (s *ResultStore) RecordResult(ctx context.Context, in NewResult) (domain.Result, error) {
	result := domain.Result{
		ID:            s.newID(),
		QuizCode:      in.QuizCode,
		QuizName:      in.QuizName,
		ParticipantID: in.ParticipantID,
		DisplayName:   in.DisplayName,
		Handle:        in.Handle,
		Score:         in.Score,
		Total:         in.Total,
		Answers:       append([]domain.AttemptAnswer(nil), in.Answers...),
		CompletedAt:   s.now(),
	}
	if err := s.repo.Append(ctx, result); err != nil {
		return domain.Result{}, err
	}

	period := domain.PeriodAt(result.CompletedAt)
	_, rankErr := s.ranking.UpdateForResult(ctx, period.ID(), domain.StatUpdate{
		ResultID:      result.ID,
		ParticipantID: result.ParticipantID,
		DisplayName:   result.DisplayName,
		Handle:        result.Handle,
		Score:         result.Score,
		Total:         result.Total,
		QuizName:      result.QuizName,
		At:            result.CompletedAt,
	})
	if rankErr != nil {
		rankErr = fmt.Errorf("update ranking: %w", rankErr)
	}

	profileErr := s.repo.UpsertProfile(ctx, domain.ParticipantProfile{
		ParticipantID: result.ParticipantID,
		DisplayName:   result.DisplayName,
		Handle:        result.Handle,
		LastSeen:      result.CompletedAt,
	})
	if profileErr != nil {
		profileErr = fmt.Errorf("upsert profile: %w", profileErr)
	}
	return result, errors.Join(rankErr, profileErr)
}

// GetResults lists a quiz's results in completion order.
func (s *ResultStore) GetResults(ctx context.Context, code string) ([]domain.Result, error) {
	return s.repo.Results(ctx, NormalizeCode(code))
}

// Participants lists every participant who completed at least one quiz.
func (s *ResultStore) Participants(ctx context.Context) ([]domain.ParticipantProfile, error) {
	return s.repo.Profiles(ctx)
}
