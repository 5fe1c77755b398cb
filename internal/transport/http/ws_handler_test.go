package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/infra/memory"
)

const (
	testOperator = "op-1"
	testToken    = "secret"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ranking := app.NewRankingAggregator(memory.NewRankingStore())
	hub := NewHub(testOperator, nil, nil)
	service := app.NewQuizService(app.Deps{
		Catalog:  app.NewQuizCatalog(memory.NewQuizRepository()),
		Results:  app.NewResultStore(memory.NewResultRepository(), ranking),
		Ranking:  ranking,
		Sessions: memory.NewSessionStore(),
		Renderer: hub,
	}, app.Options{QuestionTimeout: time.Minute, OperatorID: testOperator})
	t.Cleanup(service.Close)

	server := httptest.NewServer(NewRouter(NewWSHandler(service, hub, testToken, nil)))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) json.RawMessage {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s: %s", expect, msg.Type, msg.Payload)
	}
	return msg.Payload
}

func decodeInto[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func createQuiz(t *testing.T, operator *websocket.Conn) domain.Quiz {
	t.Helper()
	send(t, operator, "createQuiz", domain.QuizDraft{
		Name: "Capitals",
		Questions: []domain.Question{
			{Text: "France?", Options: []string{"Paris", "Rome", "Oslo"}, CorrectIndex: 0},
			{Text: "Italy?", Options: []string{"Paris", "Rome", "Oslo"}, CorrectIndex: 1},
		},
	})
	quiz := decodeInto[domain.Quiz](t, readNext(t, operator, "quizCreated"))
	if len(quiz.Code) != domain.CodeLength {
		t.Fatalf("unexpected quiz code %q", quiz.Code)
	}
	return quiz
}

func TestWebSocketQuizFlow(t *testing.T) {
	server := newTestServer(t)
	operator := dial(t, server, "participantId="+testOperator+"&token="+testToken)
	quiz := createQuiz(t, operator)

	player := dial(t, server, "participantId=u1&handle=alice")
	send(t, player, "start", map[string]any{"code": strings.ToLower(quiz.Code)})
	intro := decodeInto[app.QuizIntro](t, readNext(t, player, "namePrompt"))
	if intro.QuestionCount != 2 || intro.SecondsPerQuestion != 60 {
		t.Fatalf("unexpected intro: %+v", intro)
	}

	send(t, player, "name", map[string]any{"text": "Alice"})
	first := decodeInto[questionPayload](t, readNext(t, player, "question"))
	if first.QuestionIndex != 0 || first.Text != "France?" || first.MessageID == "" {
		t.Fatalf("unexpected first question: %+v", first)
	}

	send(t, player, "answer", map[string]any{"questionIndex": 0, "option": 0})
	second := decodeInto[questionPayload](t, readNext(t, player, "questionEdit"))
	if second.QuestionIndex != 1 || second.MessageID != first.MessageID {
		t.Fatalf("expected edit of %s, got %+v", first.MessageID, second)
	}

	// the first question's keyboard is stale now
	send(t, player, "answer", map[string]any{"questionIndex": 0, "option": 1})
	notice := decodeInto[app.Notice](t, readNext(t, player, "notice"))
	if notice.Kind != app.NoticeStale {
		t.Fatalf("expected stale notice, got %+v", notice)
	}

	send(t, player, "answer", map[string]any{"questionIndex": 1, "option": 2})
	summary := decodeInto[app.Summary](t, readNext(t, player, "summary"))
	if summary.Score != 1 || summary.Total != 2 || summary.DisplayName != "Alice" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	opNotice := decodeInto[app.OperatorNotice](t, readNext(t, operator, "operatorResult"))
	if opNotice.Result.ParticipantID != "u1" || opNotice.Result.Handle != "alice" || opNotice.Rank != 1 {
		t.Fatalf("unexpected operator notice: %+v", opNotice)
	}

	send(t, player, "start", map[string]any{"code": quiz.Code})
	prior := decodeInto[domain.Result](t, readNext(t, player, "alreadyAttempted"))
	if prior.Score != 1 {
		t.Fatalf("unexpected prior result: %+v", prior)
	}

	send(t, player, "ranking", map[string]any{"scope": "current"})
	list := decodeInto[app.RankingList](t, readNext(t, player, "ranking"))
	if len(list.Entries) != 1 || !list.Entries[0].IsViewer || list.Entries[0].Stat.DisplayName != "Alice" {
		t.Fatalf("unexpected ranking: %+v", list)
	}

	send(t, operator, "results", map[string]any{"code": quiz.Code})
	results := decodeInto[quizResults](t, readNext(t, operator, "results"))
	if len(results.Results) != 1 || results.Quiz.Code != quiz.Code {
		t.Fatalf("unexpected results: %+v", results)
	}

	send(t, operator, "participants", nil)
	profiles := decodeInto[[]domain.ParticipantProfile](t, readNext(t, operator, "participants"))
	if len(profiles) != 1 || profiles[0].ParticipantID != "u1" {
		t.Fatalf("unexpected participants: %+v", profiles)
	}
}

func TestWebSocketAbortAndErrors(t *testing.T) {
	server := newTestServer(t)
	operator := dial(t, server, "participantId="+testOperator+"&token="+testToken)
	quiz := createQuiz(t, operator)

	player := dial(t, server, "participantId=u2")
	send(t, player, "start", map[string]any{"code": "ZZZZZZ"})
	if n := decodeInto[app.Notice](t, readNext(t, player, "notice")); n.Kind != app.NoticeQuizNotFound {
		t.Fatalf("expected quiz_not_found, got %+v", n)
	}

	send(t, player, "start", map[string]any{"code": quiz.Code})
	readNext(t, player, "namePrompt")
	send(t, player, "name", map[string]any{"text": "B"})
	if n := decodeInto[app.Notice](t, readNext(t, player, "notice")); n.Kind != app.NoticeNameTooShort {
		t.Fatalf("expected name_too_short, got %+v", n)
	}
	send(t, player, "name", map[string]any{"text": "Bob"})
	readNext(t, player, "question")

	send(t, player, "text", nil)
	if n := decodeInto[app.Notice](t, readNext(t, player, "notice")); n.Kind != app.NoticeAborted {
		t.Fatalf("expected aborted, got %+v", n)
	}

	send(t, player, "answer", map[string]any{"questionIndex": 0, "option": 7})
	readNext(t, player, "error")

	send(t, player, "quizzes", nil)
	if e := decodeInto[errorPayload](t, readNext(t, player, "error")); !strings.Contains(e.Message, "forbidden") {
		t.Fatalf("expected forbidden error, got %+v", e)
	}

	send(t, player, "dance", nil)
	readNext(t, player, "error")

	send(t, operator, "quizzes", nil)
	overview := decodeInto[[]app.QuizOverview](t, readNext(t, operator, "quizzes"))
	if len(overview) != 1 || overview[0].ResultCount != 0 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
}

func TestOperatorRequiresToken(t *testing.T) {
	server := newTestServer(t)
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?participantId=" + testOperator + "&token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestMissingParticipantAndHealth(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, body)
	}
}

type recordingBus struct {
	notices []app.OperatorNotice
}

func (b *recordingBus) Publish(_ context.Context, notice app.OperatorNotice) error {
	b.notices = append(b.notices, notice)
	return nil
}

func TestHubDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(testOperator, nil, nil)

	if _, err := hub.ShowQuestion(ctx, "nobody", app.QuestionView{}); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport for unknown participant, got %v", err)
	}
	if err := hub.NotifyOperator(ctx, app.OperatorNotice{}); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport with operator offline, got %v", err)
	}

	c := hub.register("u1")
	id, err := hub.ShowQuestion(ctx, "u1", app.QuestionView{Text: "Q"})
	if err != nil || id == "" {
		t.Fatalf("show question: %q %v", id, err)
	}
	edited, err := hub.ShowQuestion(ctx, "u1", app.QuestionView{Text: "Q2", EditMessageID: id})
	if err != nil || edited != id {
		t.Fatalf("edit should keep message id %s, got %s %v", id, edited, err)
	}
	if msg := <-c.send; msg.Type != "question" {
		t.Fatalf("expected question, got %s", msg.Type)
	}
	if msg := <-c.send; msg.Type != "questionEdit" {
		t.Fatalf("expected questionEdit, got %s", msg.Type)
	}

	replacement := hub.register("u1")
	if _, ok := <-c.send; ok {
		t.Fatalf("old connection should be closed on replacement")
	}
	hub.unregister(c)
	if !hub.Connected("u1") {
		t.Fatalf("unregistering a retired connection must keep the new one")
	}
	hub.unregister(replacement)
	if hub.Connected("u1") {
		t.Fatalf("expected u1 disconnected")
	}

	bus := &recordingBus{}
	busHub := NewHub(testOperator, bus, nil)
	if err := busHub.NotifyOperator(ctx, app.OperatorNotice{Rank: 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(bus.notices) != 1 || bus.notices[0].Rank != 2 {
		t.Fatalf("expected notice on the bus, got %+v", bus.notices)
	}
}
