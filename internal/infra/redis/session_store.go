package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-ranking-service/internal/app"
)

// markerTimeout bounds each liveness marker call; callers hold the participant lock.
const markerTimeout = 2 * time.Second

// SessionStore keeps live sessions in process and mirrors a liveness marker per participant
// into Redis (quiz:session:{participantID}) so other processes can see who is mid-quiz.
// Timers stay local, so a session is only ever driven by the process that owns it.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	timeout  time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		timeout:  markerTimeout,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Get(participantID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[participantID]
	return session, ok
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ParticipantID] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	key := s.key(session.ParticipantID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"session", session.ID,
		"quiz", session.Quiz.Code,
		"state", session.State.String(),
		"question", session.QuestionIndex,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *SessionStore) Delete(participantID string) {
	s.mu.Lock()
	delete(s.sessions, participantID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_ = s.client.Del(ctx, s.key(participantID)).Err()
}

// HeldElsewhere reports whether another process holds a live session for participantID:
// a marker exists in Redis but this process has no session behind it.
func (s *SessionStore) HeldElsewhere(ctx context.Context, participantID string) (bool, error) {
	if _, ok := s.Get(participantID); ok {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.key(participantID)).Result()
	return n > 0, err
}

func (s *SessionStore) key(participantID string) string {
	return "quiz:session:" + participantID
}
