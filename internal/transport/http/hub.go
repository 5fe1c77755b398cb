package http

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/logger"
)

const sendBuffer = 32

// OperatorBus carries operator notices to whichever instance holds the operator connection.
type OperatorBus interface {
	Publish(ctx context.Context, notice app.OperatorNotice) error
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type client struct {
	participantID string
	send          chan outboundMessage[any]
}

// Hub tracks one live connection per participant and implements app.Renderer on top of them.
type Hub struct {
	operatorID string
	bus        OperatorBus
	log        *logger.Logger

	mu      sync.Mutex
	clients map[string]*client
}

func NewHub(operatorID string, bus OperatorBus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		operatorID: operatorID,
		bus:        bus,
		log:        log.With("component", "ws_hub"),
		clients:    make(map[string]*client),
	}
}

// register makes c the participant's connection, retiring any older one.
func (h *Hub) register(participantID string) *client {
	c := &client{participantID: participantID, send: make(chan outboundMessage[any], sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[participantID]; ok {
		close(old.send)
	}
	h.clients[participantID] = c
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.participantID] == c {
		delete(h.clients, c.participantID)
		close(c.send)
	}
}

// Connected reports whether participantID has a live connection on this instance.
func (h *Hub) Connected(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[participantID]
	return ok
}

func (h *Hub) send(participantID, typ string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[participantID]
	if !ok {
		return fmt.Errorf("%w: %s not connected", domain.ErrTransport, participantID)
	}
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("%w: outbound buffer full for %s", domain.ErrTransport, participantID)
	}
}

type questionPayload struct {
	MessageID string `json:"messageId"`
	app.QuestionView
}

func (h *Hub) PromptName(_ context.Context, participantID string, intro app.QuizIntro) error {
	return h.send(participantID, "namePrompt", intro)
}

func (h *Hub) ShowQuestion(_ context.Context, participantID string, view app.QuestionView) (string, error) {
	typ, messageID := "questionEdit", view.EditMessageID
	if messageID == "" {
		typ, messageID = "question", uuid.NewString()
	}
	view.EditMessageID = ""
	if err := h.send(participantID, typ, questionPayload{MessageID: messageID, QuestionView: view}); err != nil {
		return "", err
	}
	return messageID, nil
}

func (h *Hub) ShowSummary(_ context.Context, participantID string, summary app.Summary) error {
	return h.send(participantID, "summary", summary)
}

func (h *Hub) ShowAlreadyAttempted(_ context.Context, participantID string, prior domain.Result) error {
	return h.send(participantID, "alreadyAttempted", prior)
}

func (h *Hub) ShowRankingList(_ context.Context, participantID string, list app.RankingList) error {
	return h.send(participantID, "ranking", list)
}

func (h *Hub) ShowNotice(_ context.Context, participantID string, notice app.Notice) error {
	return h.send(participantID, "notice", notice)
}

// NotifyOperator publishes on the bus when one is configured, otherwise delivers locally.
func (h *Hub) NotifyOperator(ctx context.Context, notice app.OperatorNotice) error {
	if h.bus != nil {
		return h.bus.Publish(ctx, notice)
	}
	return h.DeliverOperatorNotice(notice)
}

// DeliverOperatorNotice sends notice to the operator if connected here.
func (h *Hub) DeliverOperatorNotice(notice app.OperatorNotice) error {
	if h.operatorID == "" {
		return fmt.Errorf("%w: no operator configured", domain.ErrTransport)
	}
	return h.send(h.operatorID, "operatorResult", notice)
}
