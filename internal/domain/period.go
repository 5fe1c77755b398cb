package domain

import (
	"fmt"
	"time"
)

const (
	// PeriodDays is the fixed length of a leaderboard period.
	PeriodDays = 14
	// lastPeriodIndex is treated as the final period of a year when stepping back from index 1.
	// Days 364 and 365 still derive index 27; neither quirk is aligned to the calendar.
	lastPeriodIndex = 26
)

// Period identifies a fixed 14-day bucket counted from January 1st.
type Period struct {
	Year  int
	Index int
}

// PeriodAt derives the period containing t. The calendar date is taken in UTC, matching Start and End.
func PeriodAt(t time.Time) Period {
	t = t.UTC()
	days := t.YearDay() - 1
	return Period{Year: t.Year(), Index: days/PeriodDays + 1}
}

// ParsePeriod parses an id produced by Period.ID.
func ParsePeriod(id string) (Period, error) {
	var p Period
	if _, err := fmt.Sscanf(id, "%4d-P%2d", &p.Year, &p.Index); err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", id, err)
	}
	if p.Index < 1 {
		return Period{}, fmt.Errorf("parse period %q: index must be positive", id)
	}
	return p, nil
}

// ID renders the period as "{year}-P{nn}".
func (p Period) ID() string {
	return fmt.Sprintf("%04d-P%02d", p.Year, p.Index)
}

// Previous returns the period before p. Index 1 steps back to index 26 of the prior year.
func (p Period) Previous() Period {
	if p.Index > 1 {
		return Period{Year: p.Year, Index: p.Index - 1}
	}
	return Period{Year: p.Year - 1, Index: lastPeriodIndex}
}

// Start is midnight UTC of the first day of the period.
func (p Period) Start() time.Time {
	jan1 := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return jan1.AddDate(0, 0, PeriodDays*(p.Index-1))
}

// End is 23:59:59 of the thirteenth day after Start.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 0, PeriodDays-1).Add(23*time.Hour + 59*time.Minute + 59*time.Second)
}

// QuizSummary is one completed quiz within a period.
type QuizSummary struct {
	ResultID    string    `json:"resultId"`
	QuizName    string    `json:"quizName"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completedAt"`
}

// PeriodStat accumulates one participant's results within a period.
type PeriodStat struct {
	ParticipantID     string        `json:"participantId"`
	DisplayName       string        `json:"displayName"`
	Handle            string        `json:"handle,omitempty"`
	CorrectTotal      int           `json:"correctTotal"`
	QuestionTotal     int           `json:"questionTotal"`
	QuizCount         int           `json:"quizCount"`
	Quizzes           []QuizSummary `json:"quizzes"`
	AveragePercentage float64       `json:"averagePercentage"`
	FirstAttempt      time.Time     `json:"firstAttempt"`
	LastAttempt       time.Time     `json:"lastAttempt"`
}

// StatUpdate is the contribution of a single result to a period.
type StatUpdate struct {
	ResultID      string
	ParticipantID string
	DisplayName   string
	Handle        string
	Score         int
	Total         int
	QuizName      string
	At            time.Time
}

// Counted reports whether resultID has already been applied to the stat.
func (s *PeriodStat) Counted(resultID string) bool {
	if resultID == "" {
		return false
	}
	for _, q := range s.Quizzes {
		if q.ResultID == resultID {
			return true
		}
	}
	return false
}

// Apply folds u into the stat. A result id that was already applied is rejected.
func (s *PeriodStat) Apply(u StatUpdate) error {
	if s.Counted(u.ResultID) {
		return ErrDuplicateRankingUpdate
	}
	if s.ParticipantID == "" {
		s.ParticipantID = u.ParticipantID
		s.FirstAttempt = u.At
	}
	s.DisplayName = u.DisplayName
	s.Handle = u.Handle
	s.CorrectTotal += u.Score
	s.QuestionTotal += u.Total
	s.QuizCount++
	s.Quizzes = append(s.Quizzes, QuizSummary{
		ResultID:    u.ResultID,
		QuizName:    u.QuizName,
		Score:       u.Score,
		Total:       u.Total,
		Percentage:  Percent(u.Score, u.Total),
		CompletedAt: u.At,
	})
	s.LastAttempt = u.At
	s.AveragePercentage = Percent(s.CorrectTotal, s.QuestionTotal)
	return nil
}

// RankingChange compares a participant's current position with the previous period.
type RankingChange struct {
	Stat             PeriodStat `json:"stat"`
	CurrentPosition  int        `json:"currentPosition"`
	PreviousPosition *int       `json:"previousPosition,omitempty"`
	Delta            string     `json:"delta"`
}

// Delta values for RankingChange.
const (
	DeltaNew       = "new"
	DeltaUnchanged = "unchanged"
)

// PositionDelta renders the movement from previous to current.
func PositionDelta(current int, previous *int) string {
	switch {
	case previous == nil:
		return DeltaNew
	case current < *previous:
		return fmt.Sprintf("+%d", *previous-current)
	case current > *previous:
		return fmt.Sprintf("-%d", current-*previous)
	default:
		return DeltaUnchanged
	}
}
