package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// OptionCount is the fixed number of answer options per question.
	OptionCount = 3
	// MaxQuestions bounds the size of a quiz.
	MaxQuestions = 50
	// CodeLength is the length of a public quiz code.
	CodeLength = 6
)

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Text         string   `json:"text" yaml:"text"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correct"`
}

// Quiz is an immutable, authored collection of questions addressed by its code.
type Quiz struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy"`
}

// QuizDraft is the authoring input for a new quiz.
type QuizDraft struct {
	Name      string     `json:"name" yaml:"name"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate checks the draft against the catalog rules.
func (d QuizDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: quiz name is empty", ErrValidation)
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: quiz needs at least one question", ErrValidation)
	}
	if len(d.Questions) > MaxQuestions {
		return fmt.Errorf("%w: quiz has %d questions, max is %d", ErrValidation, len(d.Questions), MaxQuestions)
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrValidation, i+1)
		}
		if len(q.Options) != OptionCount {
			return fmt.Errorf("%w: question %d has %d options, want %d", ErrValidation, i+1, len(q.Options), OptionCount)
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("%w: question %d option %d is empty", ErrValidation, i+1, j+1)
			}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
			return fmt.Errorf("%w: question %d correct option %d out of range", ErrValidation, i+1, q.CorrectIndex)
		}
	}
	return nil
}

// AttemptAnswer is the outcome of one question within a session.
// Selected is nil when the question timed out.
type AttemptAnswer struct {
	QuestionIndex int    `json:"questionIndex"`
	Question      string `json:"question"`
	Selected      *int   `json:"selected"`
	CorrectIndex  int    `json:"correctIndex"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timedOut"`
}

// Result is the permanent record of one completed attempt.
type Result struct {
	ID            string          `json:"id"`
	QuizCode      string          `json:"quizCode"`
	QuizName      string          `json:"quizName"`
	ParticipantID string          `json:"participantId"`
	DisplayName   string          `json:"displayName"`
	Handle        string          `json:"handle,omitempty"`
	Score         int             `json:"score"`
	Total         int             `json:"total"`
	Answers       []AttemptAnswer `json:"answers"`
	CompletedAt   time.Time       `json:"completedAt"`
}

// TimedOut counts the questions that ran out of time.
func (r Result) TimedOut() int {
	n := 0
	for _, a := range r.Answers {
		if a.TimedOut {
			n++
		}
	}
	return n
}

// Answered counts the questions answered explicitly.
func (r Result) Answered() int {
	return r.Total - r.TimedOut()
}

// Percentage is the score as a percentage rounded to one decimal.
func (r Result) Percentage() float64 {
	return Percent(r.Score, r.Total)
}

// ParticipantProfile is the last known identity of a participant.
type ParticipantProfile struct {
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	Handle        string    `json:"handle,omitempty"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Percent returns 100*part/whole rounded to one decimal; zero when whole is zero.
func Percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}

// Classification grades a finished attempt for the participant summary.
type Classification string

const (
	ClassPerfect          Classification = "perfect"
	ClassExcellent        Classification = "excellent"
	ClassGood             Classification = "good"
	ClassNeedsImprovement Classification = "needs improvement"
)

// Classify grades score out of total.
func Classify(score, total int) Classification {
	switch {
	case score == total:
		return ClassPerfect
	case float64(score) >= 0.8*float64(total):
		return ClassExcellent
	case float64(score) >= 0.6*float64(total):
		return ClassGood
	default:
		return ClassNeedsImprovement
	}
}
