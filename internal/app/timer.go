package app

import (
	"sync"
	"time"
)

// SessionTimer holds at most one pending delayed action per participant.
//
// Cancel only prevents an action that has not started yet; once the action runs it
// runs to completion. Callers that need a single winner between the action and a
// competing event must serialise both behind the same per-participant lock and
// re-check state inside the action.
type SessionTimer struct {
	mu     sync.Mutex
	timers map[string]*armedTimer
}

type armedTimer struct {
	timer *time.Timer
}

func NewSessionTimer() *SessionTimer {
	return &SessionTimer{timers: make(map[string]*armedTimer)}
}

// Arm retires any timer for participantID and schedules onFire after d.
func (t *SessionTimer) Arm(participantID string, d time.Duration, onFire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[participantID]; ok {
		existing.timer.Stop()
		delete(t.timers, participantID)
	}

	entry := &armedTimer{}
	entry.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[participantID] == entry {
			delete(t.timers, participantID)
		}
		t.mu.Unlock()
		onFire()
	})
	t.timers[participantID] = entry
}

// Cancel stops the participant's timer. It reports whether a pending fire was prevented.
func (t *SessionTimer) Cancel(participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.timers[participantID]
	if !ok {
		return false
	}
	delete(t.timers, participantID)
	return entry.timer.Stop()
}

// Armed reports whether a timer is pending for participantID.
func (t *SessionTimer) Armed(participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[participantID]
	return ok
}

// Len returns the number of pending timers.
func (t *SessionTimer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every pending timer.
func (t *SessionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.timers {
		entry.timer.Stop()
		delete(t.timers, id)
	}
}
