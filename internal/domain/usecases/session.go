package usecases

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// Session is one user's conversation. Questions within a session run one at
// a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	memory ports.ConversationMemory
}

// NewSession wraps a memory store.
func NewSession(id string, memory ports.ConversationMemory) *Session {
	return &Session{ID: id, CreatedAt: time.Now(), memory: memory}
}

// History returns the remembered turns, oldest first.
func (s *Session) History(ctx context.Context) ([]entities.Turn, error) {
	return s.memory.Recent(ctx, 0)
}

// ClearMemory forgets all turns but keeps the session.
func (s *Session) ClearMemory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Clear(ctx)
}

// MemorySize returns the number of remembered turns.
func (s *Session) MemorySize(ctx context.Context) (int, error) {
	return s.memory.Len(ctx)
}

// Capacity is the most turns the session remembers.
func (s *Session) Capacity() int { return s.memory.Capacity() }

// MemoryFactory creates the memory for a new session.
type MemoryFactory func(sessionID string) ports.ConversationMemory

// SessionManager owns the live sessions.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  MemoryFactory
	logger   *zap.Logger
}

func NewSessionManager(factory MemoryFactory, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		factory:  factory,
		logger:   logger,
	}
}

// Get returns the session with id, creating it on first use.
func (m *SessionManager) Get(id string) (*Session, error) {
	if id == "" {
		return nil, errs.InvalidArgument("usecases.Session", "session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := NewSession(id, m.factory(id))
	m.sessions[id] = s
	m.logger.Debug("session created", zap.String("session", id))
	return s, nil
}

// Lookup returns an existing session.
func (m *SessionManager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close clears a session's memory and forgets it. Reports whether it existed.
func (m *SessionManager) Close(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	m.logger.Debug("session closed", zap.String("session", id))
	return true, s.ClearMemory(ctx)
}

// IDs lists live session ids, sorted.
func (m *SessionManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
