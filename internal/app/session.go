package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"quiz-ranking-service/internal/domain"
)

// MinNameLength is the minimum display name length in runes after trimming.
const MinNameLength = 2

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
// Callers hold the participant lock around every call.
type SessionRepository interface {
	Get(participantID string) (*Session, bool)
	Put(session *Session)
	Delete(participantID string)
}

// SessionPresence is implemented by session repositories shared between processes.
type SessionPresence interface {
	// HeldElsewhere reports whether another process drives a session for participantID.
	HeldElsewhere(ctx context.Context, participantID string) (bool, error)
}

// SessionState is the position of a session in the quiz-taking flow.
type SessionState int

const (
	StateAwaitingName SessionState = iota + 1
	StateInProgress
	StateCompleted
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingName:
		return "awaiting_name"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Participant identifies whoever sends events through the gateway.
type Participant struct {
	ID     string
	Handle string
}

// Session is one participant's attempt at one quiz.
type Session struct {
	ID            string
	Quiz          domain.Quiz
	ParticipantID string
	Handle        string
	DisplayName   string
	State         SessionState
	QuestionIndex int
	Answers       []domain.AttemptAnswer
	Score         int
	// MessageID is the last rendered question message, edited in place on the next question.
	MessageID string
	StartedAt time.Time
}

// NewSession starts a session in StateAwaitingName.
func NewSession(participant Participant, quiz domain.Quiz, now time.Time) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Quiz:          quiz,
		ParticipantID: participant.ID,
		Handle:        participant.Handle,
		State:         StateAwaitingName,
		StartedAt:     now,
	}
}

// Current returns the question the session is on.
func (s *Session) Current() domain.Question {
	return s.Quiz.Questions[s.QuestionIndex]
}

// Total is the number of questions in the quiz.
func (s *Session) Total() int {
	return len(s.Quiz.Questions)
}

// acceptName moves an awaiting session to the first question.
func (s *Session) acceptName(raw string) error {
	if s.State != StateAwaitingName {
		return fmt.Errorf("%w: session is %s", domain.ErrStaleReply, s.State)
	}
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < MinNameLength {
		return fmt.Errorf("%w: name must have at least %d characters", domain.ErrValidation, MinNameLength)
	}
	s.DisplayName = name
	s.State = StateInProgress
	s.QuestionIndex = 0
	s.Answers = make([]domain.AttemptAnswer, 0, s.Total())
	s.Score = 0
	return nil
}

// recordAnswer appends the participant's choice for the current question and advances.
// It reports whether the quiz is finished.
func (s *Session) recordAnswer(option int) bool {
	q := s.Current()
	selected := option
	correct := option == q.CorrectIndex
	if correct {
		s.Score++
	}
	s.Answers = append(s.Answers, domain.AttemptAnswer{
		QuestionIndex: s.QuestionIndex,
		Question:      q.Text,
		Selected:      &selected,
		CorrectIndex:  q.CorrectIndex,
		Correct:       correct,
	})
	return s.advance()
}

// recordTimeout appends an unanswered entry for the current question and advances.
func (s *Session) recordTimeout() bool {
	q := s.Current()
	s.Answers = append(s.Answers, domain.AttemptAnswer{
		QuestionIndex: s.QuestionIndex,
		Question:      q.Text,
		CorrectIndex:  q.CorrectIndex,
		TimedOut:      true,
	})
	return s.advance()
}

func (s *Session) advance() bool {
	if s.QuestionIndex+1 < s.Total() {
		s.QuestionIndex++
		return false
	}
	s.State = StateCompleted
	return true
}
