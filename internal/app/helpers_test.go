package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/infra/memory"
)

var fixedNow = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

const operatorID = "operator"

// recorder is an app.Renderer that keeps every instruction it receives.
type recorder struct {
	mu         sync.Mutex
	prompts    []app.QuizIntro
	questions  []app.QuestionView
	notices    []app.Notice
	already    []domain.Result
	rankings   []app.RankingList
	operator   []app.OperatorNotice
	summaries  chan app.Summary
	failNotify bool
	nextID     int
}

func newRecorder() *recorder {
	return &recorder{summaries: make(chan app.Summary, 16)}
}

func (r *recorder) PromptName(_ context.Context, _ string, intro app.QuizIntro) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, intro)
	return nil
}

func (r *recorder) ShowQuestion(_ context.Context, _ string, view app.QuestionView) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions = append(r.questions, view)
	if view.EditMessageID != "" {
		return view.EditMessageID, nil
	}
	r.nextID++
	return fmt.Sprintf("m%d", r.nextID), nil
}

func (r *recorder) ShowSummary(_ context.Context, _ string, summary app.Summary) error {
	r.summaries <- summary
	return nil
}

func (r *recorder) ShowAlreadyAttempted(_ context.Context, _ string, prior domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.already = append(r.already, prior)
	return nil
}

func (r *recorder) ShowRankingList(_ context.Context, _ string, list app.RankingList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rankings = append(r.rankings, list)
	return nil
}

func (r *recorder) ShowNotice(_ context.Context, _ string, notice app.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return nil
}

func (r *recorder) NotifyOperator(_ context.Context, notice app.OperatorNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNotify {
		return fmt.Errorf("operator offline")
	}
	r.operator = append(r.operator, notice)
	return nil
}

func (r *recorder) questionViews() []app.QuestionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.QuestionView(nil), r.questions...)
}

func (r *recorder) lastNotice() app.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return app.Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func (r *recorder) noticeKinds() []app.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]app.NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (r *recorder) operatorNotices() []app.OperatorNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]app.OperatorNotice(nil), r.operator...)
}

func (r *recorder) waitSummary(t *testing.T) app.Summary {
	t.Helper()
	select {
	case s := <-r.summaries:
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for summary")
	}
	return app.Summary{}
}

type testEnv struct {
	service  *app.QuizService
	render   *recorder
	catalog  *app.QuizCatalog
	results  *app.ResultStore
	ranking  *app.RankingAggregator
	sessions *memory.SessionStore
	timer    *app.SessionTimer
}

func newTestEnv(t *testing.T, timeout time.Duration) *testEnv {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	env := &testEnv{
		render:   newRecorder(),
		catalog:  app.NewQuizCatalog(memory.NewQuizRepository()),
		ranking:  app.NewRankingAggregatorWithClock(memory.NewRankingStore(), clock),
		sessions: memory.NewSessionStore(),
		timer:    app.NewSessionTimer(),
	}
	env.results = app.NewResultStoreWithClock(memory.NewResultRepository(), env.ranking, clock)
	env.service = app.NewQuizService(app.Deps{
		Catalog:  env.catalog,
		Results:  env.results,
		Ranking:  env.ranking,
		Sessions: env.sessions,
		Timer:    env.timer,
		Renderer: env.render,
	}, app.Options{QuestionTimeout: timeout, OperatorID: operatorID})
	t.Cleanup(env.service.Close)
	return env
}

// twoQuestionQuiz has Q1 correct=0 and Q2 correct=1.
func (e *testEnv) twoQuestionQuiz(t *testing.T) domain.Quiz {
	t.Helper()
	quiz, err := e.service.CreateQuiz(context.Background(), operatorID, domain.QuizDraft{
		Name: "Basics",
		Questions: []domain.Question{
			{Text: "Q1", Options: []string{"a", "b", "c"}, CorrectIndex: 0},
			{Text: "Q2", Options: []string{"a", "b", "c"}, CorrectIndex: 1},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quiz
}

func (e *testEnv) startNamed(t *testing.T, participantID, code, name string) {
	t.Helper()
	ctx := context.Background()
	if err := e.service.StartQuiz(ctx, app.Participant{ID: participantID, Handle: participantID + "_h"}, code); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	if err := e.service.SubmitName(ctx, participantID, name); err != nil {
		t.Fatalf("submit name: %v", err)
	}
}
