// Package conversation implements the receptionist chat loop: per-browser
// sessions, the in-memory session store and the turn handler that calls the
// model and fires the lead trigger.
package conversation

import (
	"sync"
	"time"
)

// Role identifies the speaker of a [Turn].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session's history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Flash is the transient feedback shown once after a turn.
type Flash struct {
	Error string
	Toast string
}

// Session is the per-browser conversation state. All methods are safe for
// concurrent use; turns are handled one at a time per session.
type Session struct {
	id      string
	created time.Time

	// turnMu serialises HandleTurn for this session.
	turnMu sync.Mutex

	mu       sync.Mutex
	turns    []Turn
	flash    Flash
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, created: now, lastSeen: now}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time { return s.created }

// Turns returns a copy of the ordered turn list.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset discards all turns and any pending flash state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.flash = Flash{}
}

// TakeFlash returns the pending flash state and clears it.
func (s *Session) TakeFlash() Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flash
	s.flash = Flash{}
	return f
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
}

// history returns up to n turns preceding the last one.
func (s *Session) history(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.turns) <= 1 {
		return nil
	}
	prior := s.turns[:len(s.turns)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	out := make([]Turn, len(prior))
	copy(out, prior)
	return out
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.flash.Error = msg
	s.mu.Unlock()
}

func (s *Session) setToast(msg string) {
	s.mu.Lock()
	s.flash.Toast = msg
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
