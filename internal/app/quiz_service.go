package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/logger"
)

// DefaultQuestionTimeout is the time a participant has for each question.
const DefaultQuestionTimeout = 15 * time.Second

// Deps wires the collaborators of QuizService.
type Deps struct {
	Catalog  *QuizCatalog
	Results  *ResultStore
	Ranking  *RankingAggregator
	Sessions SessionRepository
	Timer    *SessionTimer
	Renderer Renderer
	Logger   *logger.Logger
}

// Options tunes QuizService.
type Options struct {
	QuestionTimeout time.Duration
	// OperatorID is the single identity allowed to author quizzes and read operator views.
	OperatorID string
}

// AnswerSubmission is an option chosen for a specific question.
type AnswerSubmission struct {
	QuestionIndex int
	Option        int
}

// QuizService runs the per-participant quiz state machine.
//
// Every event for a participant, including timer fires, runs under that participant's lock,
// so an answer and a timeout for the same question cannot both advance the session.
type QuizService struct {
	catalog  *QuizCatalog
	results  *ResultStore
	ranking  *RankingAggregator
	sessions SessionRepository
	timer    *SessionTimer
	render   Renderer
	log      *logger.Logger
	locks    *keyedMutex

	questionTimeout time.Duration
	operatorID      string
	now             func() time.Time
}

func NewQuizService(deps Deps, opts Options) *QuizService {
	if opts.QuestionTimeout <= 0 {
		opts.QuestionTimeout = DefaultQuestionTimeout
	}
	if deps.Timer == nil {
		deps.Timer = NewSessionTimer()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &QuizService{
		catalog:         deps.Catalog,
		results:         deps.Results,
		ranking:         deps.Ranking,
		sessions:        deps.Sessions,
		timer:           deps.Timer,
		render:          deps.Renderer,
		log:             deps.Logger.With("component", "quiz_service"),
		locks:           newKeyedMutex(),
		questionTimeout: opts.QuestionTimeout,
		operatorID:      opts.OperatorID,
		now:             time.Now,
	}
}

// IsOperator reports whether participantID is the configured operator.
func (s *QuizService) IsOperator(participantID string) bool {
	return s.operatorID != "" && participantID == s.operatorID
}

// QuestionTimeout is the per-question time limit.
func (s *QuizService) QuestionTimeout() time.Duration {
	return s.questionTimeout
}

// CreateQuiz stores a new quiz authored by the operator.
func (s *QuizService) CreateQuiz(ctx context.Context, operatorID string, draft domain.QuizDraft) (domain.Quiz, error) {
	if !s.IsOperator(operatorID) {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.catalog.CreateQuiz(ctx, operatorID, draft)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info("quiz created", "code", quiz.Code, "questions", len(quiz.Questions))
	return quiz, nil
}

// StartQuiz opens a session for the quiz behind code, discarding any session the participant had.
func (s *QuizService) StartQuiz(ctx context.Context, participant Participant, code string) error {
	if s.IsOperator(participant.ID) {
		s.notice(ctx, participant.ID, Notice{Kind: NoticeForbidden, Detail: "operator cannot take quizzes"})
		return domain.ErrForbidden
	}

	unlock := s.locks.Lock(participant.ID)
	defer unlock()

	if old, ok := s.sessions.Get(participant.ID); ok {
		if old.State == StateInProgress {
			s.abortLocked(ctx, old)
		} else {
			s.discardLocked(old)
		}
	} else if presence, ok := s.sessions.(SessionPresence); ok {
		elsewhere, err := presence.HeldElsewhere(ctx, participant.ID)
		if err != nil {
			s.log.Warn("session presence check failed", "participant_id", participant.ID, "error", err)
		}
		if elsewhere {
			s.notice(ctx, participant.ID, Notice{Kind: NoticeElsewhere})
			return domain.ErrSessionElsewhere
		}
	}

	quiz, err := s.catalog.GetQuiz(ctx, code)
	if errors.Is(err, domain.ErrQuizNotFound) {
		s.notice(ctx, participant.ID, Notice{Kind: NoticeQuizNotFound, Detail: NormalizeCode(code)})
		return err
	}
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	prior, attempted, err := s.results.FindResult(ctx, quiz.Code, participant.ID)
	if err != nil {
		return fmt.Errorf("find result: %w", err)
	}
	if attempted {
		s.deliver(participant.ID, "already attempted", s.render.ShowAlreadyAttempted(ctx, participant.ID, prior))
		return &domain.AlreadyAttemptedError{Prior: prior}
	}

	session := NewSession(participant, quiz, s.now())
	s.sessions.Put(session)
	s.deliver(participant.ID, "name prompt", s.render.PromptName(ctx, participant.ID, QuizIntro{
		Code:               quiz.Code,
		Name:               quiz.Name,
		QuestionCount:      len(quiz.Questions),
		SecondsPerQuestion: s.timeoutSeconds(),
	}))
	return nil
}

// SubmitName handles free text from the participant. While awaiting a name it is taken as the
// display name; during a quiz it aborts the session.
func (s *QuizService) SubmitName(ctx context.Context, participantID, text string) error {
	unlock := s.locks.Lock(participantID)
	defer unlock()

	session, ok := s.sessions.Get(participantID)
	if !ok {
		s.notice(ctx, participantID, Notice{Kind: NoticeHelp})
		return domain.ErrSessionNotFound
	}

	switch session.State {
	case StateAwaitingName:
		if err := session.acceptName(text); err != nil {
			s.notice(ctx, participantID, Notice{Kind: NoticeNameTooShort})
			return err
		}
		s.log.Debug("session started", "participant_id", participantID, "code", session.Quiz.Code)
		s.showQuestionLocked(ctx, session, false)
		return nil
	case StateInProgress:
		s.abortLocked(ctx, session)
		return nil
	case StateCompleted:
		s.sessions.Delete(participantID)
		return domain.ErrStaleReply
	default:
		return fmt.Errorf("unknown session state %s", session.State)
	}
}

// SubmitAnswer applies the participant's option for the current question.
func (s *QuizService) SubmitAnswer(ctx context.Context, participantID string, answer AnswerSubmission) error {
	if answer.Option < 0 || answer.Option >= domain.OptionCount {
		return fmt.Errorf("%w: option %d out of range", domain.ErrValidation, answer.Option)
	}

	unlock := s.locks.Lock(participantID)
	defer unlock()

	session, ok := s.sessions.Get(participantID)
	if !ok {
		s.notice(ctx, participantID, Notice{Kind: NoticeStale})
		return domain.ErrStaleReply
	}

	switch session.State {
	case StateInProgress:
		if answer.QuestionIndex != session.QuestionIndex {
			s.notice(ctx, participantID, Notice{Kind: NoticeStale})
			return fmt.Errorf("%w: answer for question %d, session is on %d", domain.ErrStaleReply, answer.QuestionIndex, session.QuestionIndex)
		}
		s.timer.Cancel(participantID)
		if finished := session.recordAnswer(answer.Option); finished {
			return s.completeLocked(ctx, session)
		}
		s.showQuestionLocked(ctx, session, false)
		return nil
	case StateAwaitingName, StateCompleted:
		s.notice(ctx, participantID, Notice{Kind: NoticeStale})
		return domain.ErrStaleReply
	default:
		return fmt.Errorf("unknown session state %s", session.State)
	}
}

// AnyOtherMessage handles commands and messages that are not part of the quiz flow.
func (s *QuizService) AnyOtherMessage(ctx context.Context, participantID string) error {
	unlock := s.locks.Lock(participantID)
	defer unlock()

	session, ok := s.sessions.Get(participantID)
	if !ok {
		s.notice(ctx, participantID, Notice{Kind: NoticeHelp})
		return nil
	}

	switch session.State {
	case StateInProgress:
		s.abortLocked(ctx, session)
	case StateAwaitingName:
		// still waiting for a name; nothing to do
	case StateCompleted:
		s.sessions.Delete(participantID)
	}
	return nil
}

// Snapshot returns a copy of the participant's live session.
func (s *QuizService) Snapshot(participantID string) (Session, bool) {
	unlock := s.locks.Lock(participantID)
	defer unlock()

	session, ok := s.sessions.Get(participantID)
	if !ok {
		return Session{}, false
	}
	cp := *session
	cp.Answers = append([]domain.AttemptAnswer(nil), session.Answers...)
	return cp, true
}

// Close cancels all pending question timers.
func (s *QuizService) Close() {
	s.timer.Stop()
}

// handleTimeout is the timer action for one question of one session. It is a no-op unless the
// session is still live and on the same question.
func (s *QuizService) handleTimeout(participantID, sessionID string, questionIndex int) error {
	unlock := s.locks.Lock(participantID)
	defer unlock()

	session, ok := s.sessions.Get(participantID)
	if !ok || session.ID != sessionID || session.State != StateInProgress || session.QuestionIndex != questionIndex {
		s.log.Debug("stale question timeout ignored", "participant_id", participantID, "question", questionIndex)
		return domain.ErrStaleReply
	}

	ctx := context.Background()
	if finished := session.recordTimeout(); finished {
		return s.completeLocked(ctx, session)
	}
	s.showQuestionLocked(ctx, session, true)
	return nil
}

func (s *QuizService) showQuestionLocked(ctx context.Context, session *Session, timedOutPrevious bool) {
	q := session.Current()
	view := QuestionView{
		QuizName:         session.Quiz.Name,
		QuestionIndex:    session.QuestionIndex,
		TotalQuestions:   session.Total(),
		SecondsRemaining: s.timeoutSeconds(),
		Text:             q.Text,
		Options:          append([]string(nil), q.Options...),
		EditMessageID:    session.MessageID,
		TimedOutPrevious: timedOutPrevious,
	}
	messageID, err := s.render.ShowQuestion(ctx, session.ParticipantID, view)
	s.deliver(session.ParticipantID, "question", err)
	if err == nil && messageID != "" {
		session.MessageID = messageID
	}
	s.sessions.Put(session)

	participantID, sessionID, index := session.ParticipantID, session.ID, session.QuestionIndex
	s.timer.Arm(participantID, s.questionTimeout, func() {
		if err := s.handleTimeout(participantID, sessionID, index); err != nil && !errors.Is(err, domain.ErrStaleReply) {
			s.log.Error("question timeout failed", "participant_id", participantID, "error", err)
		}
	})
}

func (s *QuizService) completeLocked(ctx context.Context, session *Session) error {
	participantID := session.ParticipantID
	s.timer.Cancel(participantID)
	s.sessions.Delete(participantID)

	result, err := s.results.RecordResult(ctx, NewResult{
		QuizCode:      session.Quiz.Code,
		QuizName:      session.Quiz.Name,
		ParticipantID: participantID,
		DisplayName:   session.DisplayName,
		Handle:        session.Handle,
		Score:         session.Score,
		Total:         session.Total(),
		Answers:       session.Answers,
	})
	if err != nil {
		var attempted *domain.AlreadyAttemptedError
		if errors.As(err, &attempted) {
			s.deliver(participantID, "already attempted", s.render.ShowAlreadyAttempted(ctx, participantID, attempted.Prior))
			return err
		}
		if result.ID == "" {
			return fmt.Errorf("record result: %w", err)
		}
		// the result itself is stored; a failed side effect must not hide the summary
		s.log.Error("result side effect failed", "participant_id", participantID, "result_id", result.ID, "error", err)
	}

	s.log.Info("quiz completed",
		"participant_id", participantID,
		"code", result.QuizCode,
		"score", result.Score,
		"total", result.Total,
	)
	s.deliver(participantID, "summary", s.render.ShowSummary(ctx, participantID, Summary{
		DisplayName:    result.DisplayName,
		QuizName:       result.QuizName,
		Score:          result.Score,
		Total:          result.Total,
		Answered:       result.Answered(),
		TimedOut:       result.TimedOut(),
		Percentage:     result.Percentage(),
		Classification: domain.Classify(result.Score, result.Total),
	}))

	rank, _, err := s.ranking.Position(ctx, participantID)
	if err != nil {
		s.log.Warn("rank lookup failed", "participant_id", participantID, "error", err)
	}
	if err := s.render.NotifyOperator(ctx, OperatorNotice{Result: result, Rank: rank}); err != nil {
		s.log.Warn("operator notification failed", "result_id", result.ID, "error", fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}
	return nil
}

func (s *QuizService) abortLocked(ctx context.Context, session *Session) {
	s.discardLocked(session)
	s.log.Debug("session aborted", "participant_id", session.ParticipantID, "code", session.Quiz.Code)
	s.notice(ctx, session.ParticipantID, Notice{Kind: NoticeAborted})
}

func (s *QuizService) discardLocked(session *Session) {
	s.timer.Cancel(session.ParticipantID)
	s.sessions.Delete(session.ParticipantID)
}

func (s *QuizService) notice(ctx context.Context, participantID string, notice Notice) {
	s.deliver(participantID, string(notice.Kind), s.render.ShowNotice(ctx, participantID, notice))
}

// deliver logs a failed render; delivery is best-effort.
func (s *QuizService) deliver(participantID, what string, err error) {
	if err != nil {
		s.log.Warn("render failed", "participant_id", participantID, "what", what, "error", err)
	}
}

func (s *QuizService) timeoutSeconds() int {
	secs := int(s.questionTimeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
