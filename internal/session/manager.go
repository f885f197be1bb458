package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shimaore/unicast/internal/metrics"
)

// ErrAlreadyActivated is returned when a start request names a session
// that already has unicast transmission attached. A second activation is
// rejected, never merged or replaced.
var ErrAlreadyActivated = errors.New("unicast already activated")

// Manager tracks all active unicast sessions by UUID
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a new session manager
func NewManager(logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
	}
}

// Start activates unicast transmission for the session named in cfg.ID.
// The socket is set up synchronously; on success the tap is considered
// attached and OnInit has run. Starting an already-active session fails
// with ErrAlreadyActivated.
func (m *Manager) Start(cfg Config) (*Session, error) {
	id, err := uuid.Parse(cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid session identifier %q: %w", cfg.ID, err)
	}
	cfg.ID = id.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[cfg.ID]; exists {
		return nil, ErrAlreadyActivated
	}

	sess, err := New(cfg, m.logger, m.metrics)
	if err != nil {
		return nil, err
	}

	m.sessions[cfg.ID] = sess
	sess.OnInit()

	m.metrics.RecordSessionStarted()
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info("unicast session started",
		slog.String("session_id", cfg.ID),
		slog.String("remote", fmt.Sprintf("%s:%d", cfg.RemoteIP, cfg.RemotePort)),
		slog.String("mode", cfg.Mode.String()),
		slog.Int("frames_per_packet", cfg.FramesPerPacket),
	)

	return sess, nil
}

// Stop detaches the tap from a session, flushing any partial bunch. It is
// idempotent: stopping a session with no active transmission reports
// active=false and no error.
func (m *Manager) Stop(sessionID string) (bool, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return false, fmt.Errorf("invalid session identifier %q: %w", sessionID, err)
	}

	m.mu.Lock()
	sess, exists := m.sessions[id.String()]
	if exists {
		delete(m.sessions, id.String())
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false, nil
	}

	sess.OnClose()

	m.metrics.RecordSessionStopped(time.Since(sess.StartTime()).Seconds())
	m.metrics.SetActiveSessions(remaining)

	m.logger.Info("unicast session stopped", slog.String("session_id", id.String()))

	return true, nil
}

// Get retrieves an active session
func (m *Manager) Get(sessionID string) (*Session, bool) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, exists := m.sessions[id.String()]
	return sess, exists
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of all active sessions (for monitoring)
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// StopAll detaches every active session. Each session performs its final
// partial flush before the socket closes, so no buffered audio is lost on
// normal teardown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.OnClose()
		m.metrics.RecordSessionStopped(time.Since(sess.StartTime()).Seconds())
	}
	m.metrics.SetActiveSessions(0)

	if len(sessions) > 0 {
		m.logger.Info("all unicast sessions stopped", slog.Int("count", len(sessions)))
	}
}
