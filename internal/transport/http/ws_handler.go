package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/logger"
)

type WSHandler struct {
	service       *app.QuizService
	hub           *Hub
	operatorToken string
	log           *logger.Logger
	upgrader      websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *Hub, operatorToken string, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		service:       service,
		hub:           hub,
		operatorToken: operatorToken,
		log:           log.With("component", "ws_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter mounts the websocket gateway and the health check.
func NewRouter(ws *WSHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Code string `json:"code"`
}

type namePayload struct {
	Text string `json:"text"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Option        int `json:"option"`
}

type rankingPayload struct {
	Scope app.RankingScope `json:"scope"`
}

type resultsPayload struct {
	Code string `json:"code"`
}

type quizResults struct {
	Quiz    domain.Quiz     `json:"quiz"`
	Results []domain.Result `json:"results"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and feeds the participant's messages into the quiz service.
// Replies are rendered through the hub, so this loop only reports errors nobody rendered.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	handle := r.URL.Query().Get("handle")
	if participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}
	if h.service.IsOperator(participantID) && (h.operatorToken == "" || r.URL.Query().Get("token") != h.operatorToken) {
		http.Error(w, "operator token required", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := h.hub.register(participantID)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", "participant_id", participantID, "error", err)
				// unblock the reader so the connection is torn down
				_ = conn.Close()
				for range c.send {
				}
				return
			}
		}
		// replaced by a newer connection or unregistered
		_ = conn.Close()
	}()

	h.log.Debug("participant connected", "participant_id", participantID)
	participant := app.Participant{ID: participantID, Handle: handle}
	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, participant, inbound)
	}

	h.hub.unregister(c)
	<-writerDone
	h.log.Debug("participant disconnected", "participant_id", participantID)
}

func (h *WSHandler) dispatch(ctx context.Context, p app.Participant, in inboundMessage) {
	switch in.Type {
	case "start":
		var payload startPayload
		if !h.decode(p.ID, in, &payload) {
			return
		}
		h.report(p.ID, h.service.StartQuiz(ctx, p, payload.Code))

	case "name":
		var payload namePayload
		if !h.decode(p.ID, in, &payload) {
			return
		}
		err := h.service.SubmitName(ctx, p.ID, payload.Text)
		if errors.Is(err, domain.ErrValidation) {
			// rendered as a name_too_short notice
			return
		}
		h.report(p.ID, err)

	case "answer":
		var payload answerPayload
		if !h.decode(p.ID, in, &payload) {
			return
		}
		h.report(p.ID, h.service.SubmitAnswer(ctx, p.ID, app.AnswerSubmission{
			QuestionIndex: payload.QuestionIndex,
			Option:        payload.Option,
		}))

	case "text":
		h.report(p.ID, h.service.AnyOtherMessage(ctx, p.ID))

	case "ranking":
		var payload rankingPayload
		if len(in.Payload) > 0 && !h.decode(p.ID, in, &payload) {
			return
		}
		_, err := h.service.RequestRanking(ctx, p.ID, payload.Scope)
		h.report(p.ID, err)

	case "createQuiz":
		var draft domain.QuizDraft
		if !h.decode(p.ID, in, &draft) {
			return
		}
		quiz, err := h.service.CreateQuiz(ctx, p.ID, draft)
		h.reply(p.ID, "quizCreated", quiz, err)

	case "quizzes":
		quizzes, err := h.service.ListQuizzes(ctx, p.ID)
		h.reply(p.ID, "quizzes", quizzes, err)

	case "results":
		var payload resultsPayload
		if !h.decode(p.ID, in, &payload) {
			return
		}
		quiz, results, err := h.service.QuizResults(ctx, p.ID, payload.Code)
		h.reply(p.ID, "results", quizResults{Quiz: quiz, Results: results}, err)

	case "participants":
		profiles, err := h.service.Participants(ctx, p.ID)
		h.reply(p.ID, "participants", profiles, err)

	default:
		h.sendError(p.ID, "unsupported message type")
	}
}

func (h *WSHandler) decode(participantID string, in inboundMessage, dst any) bool {
	if err := json.Unmarshal(in.Payload, dst); err != nil {
		h.sendError(participantID, "invalid "+in.Type+" payload")
		return false
	}
	return true
}

func (h *WSHandler) reply(participantID, typ string, payload any, err error) {
	if err != nil {
		h.sendError(participantID, err.Error())
		return
	}
	if err := h.hub.send(participantID, typ, payload); err != nil {
		h.log.Warn("ws reply failed", "participant_id", participantID, "type", typ, "error", err)
	}
}

// report surfaces errors the service did not already render to the participant.
func (h *WSHandler) report(participantID string, err error) {
	if err == nil || renderedAtOrigin(err) {
		return
	}
	if !errors.Is(err, domain.ErrValidation) {
		h.log.Error("quiz event failed", "participant_id", participantID, "error", err)
	}
	h.sendError(participantID, err.Error())
}

func (h *WSHandler) sendError(participantID, message string) {
	_ = h.hub.send(participantID, "error", errorPayload{Message: message})
}

func renderedAtOrigin(err error) bool {
	for _, target := range []error{
		domain.ErrQuizNotFound,
		domain.ErrAlreadyAttempted,
		domain.ErrStaleReply,
		domain.ErrForbidden,
		domain.ErrSessionNotFound,
		domain.ErrSessionElsewhere,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
