// Package session keeps per-user chat sessions and their message history in
// memory. Nothing is persisted; a session ends when it is deleted or reaped.
package session

import (
	"sync"
	"time"

	"chatd/pkg/types"
)

// Origin identifies the author of a message.
type Origin string

const (
	Human Origin = "human"
	AI    Origin = "ai"
)

// Message is one chat message.
type Message struct {
	Origin    Origin
	Text      string
	CreatedAt time.Time
}

// Session is one user's conversation. History is append-only and in
// chronological order.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	lastUsed time.Time
	history  []Message
}

// History returns a copy of the messages in chronological order.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// LastUsed returns the time of the last exchange or creation.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// appendExchange adds the human message and its reply as one unit, so
// concurrent exchanges on a session never interleave.
func (s *Session) appendExchange(human, ai Message) {
	s.mu.Lock()
	s.history = append(s.history, human, ai)
	s.lastUsed = ai.CreatedAt
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) reset(seed []Message, now time.Time) {
	s.mu.Lock()
	s.history = append([]Message(nil), seed...)
	s.lastUsed = now
	s.mu.Unlock()
}

// ToAPI converts a message to its JSON form.
func (m Message) ToAPI() types.Message {
	return types.Message{Origin: string(m.Origin), Text: m.Text, CreatedAt: m.CreatedAt.Unix()}
}

// ToAPI converts the session and its history to its JSON form.
func (s *Session) ToAPI() types.SessionResponse {
	h := s.History()
	out := types.SessionResponse{ID: s.ID, CreatedAt: s.CreatedAt.Unix(), History: make([]types.Message, len(h))}
	for i, m := range h {
		out.History[i] = m.ToAPI()
	}
	return out
}
