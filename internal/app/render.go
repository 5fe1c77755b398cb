package app

import (
	"context"
	"time"

	"quiz-ranking-service/internal/domain"
)

// Renderer delivers render instructions to the transport. Implementations must be safe for
// concurrent use; errors are treated as best-effort delivery failures.
type Renderer interface {
	PromptName(ctx context.Context, participantID string, intro QuizIntro) error
	// ShowQuestion sends a fresh question message, or edits view.EditMessageID in place when set.
	// It returns the id of the message now showing the question.
	ShowQuestion(ctx context.Context, participantID string, view QuestionView) (string, error)
	ShowSummary(ctx context.Context, participantID string, summary Summary) error
	ShowAlreadyAttempted(ctx context.Context, participantID string, prior domain.Result) error
	ShowRankingList(ctx context.Context, participantID string, list RankingList) error
	ShowNotice(ctx context.Context, participantID string, notice Notice) error
	NotifyOperator(ctx context.Context, notice OperatorNotice) error
}

// QuizIntro is shown while waiting for the participant's name.
type QuizIntro struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	QuestionCount      int    `json:"questionCount"`
	SecondsPerQuestion int    `json:"secondsPerQuestion"`
}

// QuestionView renders one question with its options.
type QuestionView struct {
	QuizName         string   `json:"quizName"`
	QuestionIndex    int      `json:"questionIndex"`
	TotalQuestions   int      `json:"totalQuestions"`
	SecondsRemaining int      `json:"secondsRemaining"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	EditMessageID    string   `json:"messageId,omitempty"`
	TimedOutPrevious bool     `json:"timedOutPrevious"`
}

// Summary is shown to the participant when the quiz completes.
type Summary struct {
	DisplayName    string                `json:"displayName"`
	QuizName       string                `json:"quizName"`
	Score          int                   `json:"score"`
	Total          int                   `json:"total"`
	Answered       int                   `json:"answered"`
	TimedOut       int                   `json:"timedOut"`
	Percentage     float64               `json:"percentage"`
	Classification domain.Classification `json:"classification"`
}

// NoticeKind enumerates short informational replies.
type NoticeKind string

const (
	NoticeHelp         NoticeKind = "help"
	NoticeQuizNotFound NoticeKind = "quiz_not_found"
	NoticeNameTooShort NoticeKind = "name_too_short"
	NoticeAborted      NoticeKind = "aborted"
	NoticeStale        NoticeKind = "stale"
	NoticeForbidden    NoticeKind = "forbidden"
	NoticeElsewhere    NoticeKind = "session_elsewhere"
)

type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}

// RankingScope selects which leaderboard view is requested.
type RankingScope string

const (
	ScopeCurrent  RankingScope = "current"
	ScopePrevious RankingScope = "previous"
	ScopeCompare  RankingScope = "compare"
)

// RankingEntry is one row of a rendered leaderboard.
type RankingEntry struct {
	Position int               `json:"position"`
	Stat     domain.PeriodStat `json:"stat"`
	Delta    string            `json:"delta,omitempty"`
	IsViewer bool              `json:"isViewer,omitempty"`
}

// RankingList is a leaderboard page for one period.
type RankingList struct {
	Scope    RankingScope   `json:"scope"`
	PeriodID string         `json:"periodId"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Entries  []RankingEntry `json:"entries"`
	// Viewer is set when the requester ranks below the visible entries.
	Viewer *RankingEntry `json:"viewer,omitempty"`
}

// OperatorNotice reports a completed result to the operator.
type OperatorNotice struct {
	Result domain.Result `json:"result"`
	// Rank is the participant's current-period position, zero when unknown.
	Rank int `json:"rank"`
}
