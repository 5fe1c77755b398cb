package app

import (
	"context"
	"fmt"

	"quiz-ranking-service/internal/domain"
)

const (
	participantRankingLimit = 10
	operatorRankingLimit    = 20
	menuRankingLimit        = 10
)

// RequestRanking renders a leaderboard for the requester and returns it.
// Participants see the top 10 plus their own row; the operator sees the top 20 of the current period.
func (s *QuizService) RequestRanking(ctx context.Context, participantID string, scope RankingScope) (RankingList, error) {
	list, err := s.rankingList(ctx, participantID, scope)
	if err != nil {
		return RankingList{}, err
	}
	s.deliver(participantID, "ranking", s.render.ShowRankingList(ctx, participantID, list))
	return list, nil
}

func (s *QuizService) rankingList(ctx context.Context, participantID string, scope RankingScope) (RankingList, error) {
	current := s.ranking.CurrentPeriod()

	switch scope {
	case ScopeCurrent, "":
		stats, err := s.ranking.Ranking(ctx, current.ID())
		if err != nil {
			return RankingList{}, fmt.Errorf("current ranking: %w", err)
		}
		limit := participantRankingLimit
		if s.IsOperator(participantID) {
			limit = operatorRankingLimit
		}
		list := newRankingList(ScopeCurrent, current)
		list.Entries, list.Viewer = rankingEntries(stats, participantID, limit)
		return list, nil

	case ScopePrevious:
		previous := current.Previous()
		stats, err := s.ranking.Ranking(ctx, previous.ID())
		if err != nil {
			return RankingList{}, fmt.Errorf("previous ranking: %w", err)
		}
		list := newRankingList(ScopePrevious, previous)
		list.Entries, list.Viewer = rankingEntries(stats, participantID, menuRankingLimit)
		return list, nil

	case ScopeCompare:
		changes, err := s.ranking.CompareRankings(ctx)
		if err != nil {
			return RankingList{}, fmt.Errorf("compare rankings: %w", err)
		}
		list := newRankingList(ScopeCompare, current)
		for _, change := range changes {
			if len(list.Entries) == menuRankingLimit {
				break
			}
			list.Entries = append(list.Entries, RankingEntry{
				Position: change.CurrentPosition,
				Stat:     change.Stat,
				Delta:    change.Delta,
				IsViewer: change.Stat.ParticipantID == participantID,
			})
		}
		return list, nil

	default:
		return RankingList{}, fmt.Errorf("%w: unknown ranking scope %q", domain.ErrValidation, scope)
	}
}

func newRankingList(scope RankingScope, period domain.Period) RankingList {
	return RankingList{
		Scope:    scope,
		PeriodID: period.ID(),
		Start:    period.Start(),
		End:      period.End(),
		Entries:  []RankingEntry{},
	}
}

func rankingEntries(stats []domain.PeriodStat, viewerID string, limit int) ([]RankingEntry, *RankingEntry) {
	entries := make([]RankingEntry, 0, min(len(stats), limit))
	var viewer *RankingEntry
	for i, stat := range stats {
		entry := RankingEntry{Position: i + 1, Stat: stat, IsViewer: stat.ParticipantID == viewerID}
		if i < limit {
			entries = append(entries, entry)
			continue
		}
		if entry.IsViewer {
			viewer = &entry
			break
		}
	}
	return entries, viewer
}

// QuizOverview is one row of the operator's quiz list.
type QuizOverview struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	QuestionCount int    `json:"questionCount"`
	ResultCount   int    `json:"resultCount"`
}

// ListQuizzes returns every quiz with its result count, operator only.
func (s *QuizService) ListQuizzes(ctx context.Context, operatorID string) ([]QuizOverview, error) {
	if !s.IsOperator(operatorID) {
		return nil, domain.ErrForbidden
	}
	quizzes, err := s.catalog.ListQuizzes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]QuizOverview, 0, len(quizzes))
	for _, quiz := range quizzes {
		results, err := s.results.GetResults(ctx, quiz.Code)
		if err != nil {
			return nil, fmt.Errorf("results for %s: %w", quiz.Code, err)
		}
		out = append(out, QuizOverview{
			Code:          quiz.Code,
			Name:          quiz.Name,
			QuestionCount: len(quiz.Questions),
			ResultCount:   len(results),
		})
	}
	return out, nil
}

// QuizResults returns a quiz and its results in completion order, operator only.
func (s *QuizService) QuizResults(ctx context.Context, operatorID, code string) (domain.Quiz, []domain.Result, error) {
	if !s.IsOperator(operatorID) {
		return domain.Quiz{}, nil, domain.ErrForbidden
	}
	quiz, err := s.catalog.GetQuiz(ctx, code)
	if err != nil {
		return domain.Quiz{}, nil, err
	}
	results, err := s.results.GetResults(ctx, quiz.Code)
	if err != nil {
		return domain.Quiz{}, nil, fmt.Errorf("get results: %w", err)
	}
	return quiz, results, nil
}

// Participants lists known participant profiles, operator only.
func (s *QuizService) Participants(ctx context.Context, operatorID string) ([]domain.ParticipantProfile, error) {
	if !s.IsOperator(operatorID) {
		return nil, domain.ErrForbidden
	}
	return s.results.Participants(ctx)
}
