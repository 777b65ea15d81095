package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/datamind-ai/datamind/types"
)

// Manager owns the live sessions of one process. Sessions are created
// on first interaction and destroyed explicitly.
type Manager struct {
	sessions map[string]*Session
	cache    *RedisCache // optional write-through snapshot cache
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a session manager. cache may be nil.
func NewManager(cache *RedisCache, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cache:    cache,
		logger:   logger.With(zap.String("component", "session_manager")),
	}
}

// Create makes a new empty session.
func (m *Manager) Create() *Session {
	sess := New()
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	m.logger.Info("session created", zap.String("session_id", sess.ID))
	return sess
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+id)
	}
	return sess, nil
}

// Snapshot writes the session's current state through to the snapshot
// cache, if one is configured.
func (m *Manager) Snapshot(ctx context.Context, sess *Session) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Save(ctx, sess); err != nil {
		m.logger.Warn("session snapshot failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}

// Remove destroys the session and drops its cached snapshot.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	if m.cache != nil {
		if err := m.cache.Delete(ctx, id); err != nil {
			m.logger.Warn("session snapshot delete failed",
				zap.String("session_id", id),
				zap.Error(err))
		}
	}
	m.logger.Info("session removed", zap.String("session_id", id))
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
