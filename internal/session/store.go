package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// ErrGenerationFailed wraps every failed exchange. The message is what end
// users see.
var ErrGenerationFailed = errors.New("unable to generate a response")

// Responder produces the assistant reply for one instruction.
type Responder interface {
	GenerateResponse(ctx context.Context, instruction string) (string, error)
}

var activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "chatd",
	Subsystem: "session",
	Name:      "active",
	Help:      "Sessions held in memory",
})

func init() { prometheus.MustRegister(activeSessions) }

// Store holds sessions in memory.
type Store struct {
	bot      Responder
	greeting string
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Options configures a Store.
type Options struct {
	// Greeting, when non-empty, seeds every new history with one ai message.
	Greeting string
	Logger   zerolog.Logger
}

// NewStore returns an empty store that answers through bot.
func NewStore(bot Responder, o Options) *Store {
	return &Store{
		bot:      bot,
		greeting: o.Greeting,
		log:      o.Logger.With().Str("component", "session").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (st *Store) seed(now time.Time) []Message {
	if st.greeting == "" {
		return nil
	}
	return []Message{{Origin: AI, Text: st.greeting, CreatedAt: now}}
}

// Create starts a new session.
func (st *Store) Create() *Session {
	now := st.now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, lastUsed: now, history: st.seed(now)}
	st.mu.Lock()
	st.sessions[s.ID] = s
	n := len(st.sessions)
	st.mu.Unlock()
	activeSessions.Set(float64(n))
	st.log.Debug().Str("session_id", s.ID).Msg("session created")
	return s
}

// Get returns the session with id or ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete ends a session and drops its history.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	activeSessions.Set(float64(n))
	st.log.Debug().Str("session_id", id).Msg("session deleted")
	return nil
}

// Clear resets a session's history to its initial state (a new chat).
func (st *Store) Clear(id string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	now := st.now()
	s.reset(st.seed(now), now)
	return nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Submit runs one exchange: the instruction goes to the bot and, only on
// success, the human message and the reply are appended to the history.
// On failure the history is left untouched and the returned error wraps
// ErrGenerationFailed together with the cause.
func (st *Store) Submit(ctx context.Context, id, instruction string) (Message, error) {
	s, err := st.Get(id)
	if err != nil {
		return Message{}, err
	}
	asked := st.now()
	s.touch(asked)
	reply, err := st.bot.GenerateResponse(ctx, instruction)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	ai := Message{Origin: AI, Text: reply, CreatedAt: st.now()}
	s.appendExchange(Message{Origin: Human, Text: instruction, CreatedAt: asked}, ai)
	return ai, nil
}

// Reap deletes sessions idle for longer than ttl and returns how many were removed.
func (st *Store) Reap(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-ttl)
	st.mu.Lock()
	removed := 0
	for id, s := range st.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()
	if removed > 0 {
		activeSessions.Set(float64(n))
		st.log.Info().Int("removed", removed).Int("active", n).Msg("idle sessions reaped")
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is done.
func (st *Store) RunReaper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st.Reap(ttl)
		}
	}
}
