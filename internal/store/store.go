package store

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/calvinwijaya/twentyone/internal/game"
)

// ErrSessionNotFound is returned when no session has the requested ID
var ErrSessionNotFound = errors.New("session not found")

// Store defines the interface for session storage
type Store interface {
	// CreateSession starts a new session with an idle engine
	CreateSession() (*Session, error)

	// GetSession retrieves a session by ID
	GetSession(id string) (*Session, error)

	// DeleteSession removes a session
	DeleteSession(id string) error

	// ListSessions returns all live sessions
	ListSessions() ([]*Session, error)
}

// Session owns one engine. All engine access goes through Do, which holds
// the session lock so the engine only ever has one caller at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	engine    *game.Engine
	updatedAt time.Time
	clock     quartz.Clock
}

func newSession(id string, engine *game.Engine, clock quartz.Clock) *Session {
	now := clock.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		engine:    engine,
		updatedAt: now,
		clock:     clock,
	}
}

// Do runs fn with exclusive access to the session's engine
func (s *Session) Do(fn func(e *game.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.engine)
	s.updatedAt = s.clock.Now()
}

// Snapshot returns the current table state without touching the session
func (s *Session) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// UpdatedAt returns when the session last ran an action
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
