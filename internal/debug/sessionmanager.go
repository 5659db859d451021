package debug

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SessionManager is the registry of live debug sessions. Sessions are held
// by shared handle: a *Session obtained from GetSession stays valid even
// if the manager removes it concurrently, though its state will be
// Terminated.
type SessionManager struct {
	logger *zap.Logger
	clock  clock.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithManagerLogger sets the manager logger, propagated to sessions it
// creates.
func WithManagerLogger(logger *zap.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerClock sets the clock propagated to sessions.
func WithManagerClock(clk clock.Clock) SessionManagerOption {
	return func(m *SessionManager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// NewSessionManager creates an empty session registry.
func NewSessionManager(opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		logger:   zap.NewNop(),
		clock:    clock.New(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession creates and registers a session.
func (m *SessionManager) CreateSession(config SessionConfig, opts ...SessionOption) *Session {
	opts = append([]SessionOption{
		WithSessionLogger(m.logger),
		WithSessionClock(m.clock),
	}, opts...)
	s := NewSession(config, opts...)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session", s.ID()))
	return s
}

// GetSession returns a session by ID.
func (m *SessionManager) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// RemoveSession terminates a session and drops it from the registry.
func (m *SessionManager) RemoveSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.Terminate()
	m.logger.Info("session removed", zap.String("session", id))
	return nil
}

// ListSessions returns all registered sessions.
func (m *SessionManager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.sessions)
}

// CleanupTerminated sweeps the registry, dropping every session whose
// state is Terminated. Returns the number removed.
func (m *SessionManager) CleanupTerminated() int {
	m.mu.Lock()
	terminated := lo.PickBy(m.sessions, func(_ string, s *Session) bool {
		return s.State() == StateTerminated
	})
	for id := range terminated {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if len(terminated) > 0 {
		m.logger.Debug("terminated sessions cleaned up", zap.Int("count", len(terminated)))
	}
	return len(terminated)
}

// Len returns the number of registered sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
