package store

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/calvinwijaya/twentyone/internal/game"
)

// MemoryStore is an in-memory implementation of session storage. Nothing
// survives a restart.
type MemoryStore struct {
	sessions   map[string]*Session
	mu         sync.RWMutex
	clock      quartz.Clock
	logger     *log.Logger
	engineOpts []game.Option
	onEvict    func(id string)
}

// NewMemoryStore creates a new in-memory store. engineOpts are applied to
// the engine of every new session.
func NewMemoryStore(clock quartz.Clock, logger *log.Logger, engineOpts ...game.Option) *MemoryStore {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &MemoryStore{
		sessions:   make(map[string]*Session),
		clock:      clock,
		logger:     logger.WithPrefix("store"),
		engineOpts: engineOpts,
	}
}

// CreateSession starts a new session
func (s *MemoryStore) CreateSession() (*Session, error) {
	id := uuid.New().String()
	session := newSession(id, game.NewEngine(s.engineOpts...), s.clock)

	s.mu.Lock()
	s.sessions[id] = session
	total := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("Session created", "id", id, "total", total)
	return session, nil
}

// GetSession retrieves a session by ID
func (s *MemoryStore) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DeleteSession removes a session from the store
func (s *MemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)

	s.logger.Info("Session deleted", "id", id)
	return nil
}

// ListSessions returns all sessions, oldest first
func (s *MemoryStore) ListSessions() ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions, nil
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were removed
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	now := s.clock.Now()

	s.mu.Lock()
	var evicted []string
	for id, session := range s.sessions {
		if now.Sub(session.UpdatedAt()) > maxIdle {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	remaining := len(s.sessions)
	onEvict := s.onEvict
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Info("Swept idle sessions", "removed", len(evicted), "remaining", remaining)
	}
	if onEvict != nil {
		for _, id := range evicted {
			onEvict(id)
		}
	}
	return len(evicted)
}

// OnEvict registers fn to be called with the ID of every session Sweep
// removes. It runs after the store lock is released.
func (s *MemoryStore) OnEvict(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// StartSweeper sweeps idle sessions every interval until ctx is done. The
// ticker is registered before StartSweeper returns.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) quartz.Waiter {
	s.logger.Debug("Starting sweeper", "interval", interval, "maxIdle", maxIdle)
	return s.clock.TickerFunc(ctx, interval, func() error {
		s.Sweep(maxIdle)
		return nil
	}, "sweeper")
}
