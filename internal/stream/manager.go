package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joescharf/taskboard/internal/watch"
)

// Manager opens sessions against a shared watch registry and tracks the
// live ones so they can be torn down together on shutdown.
type Manager struct {
	reg *watch.Registry
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager backed by reg.
func NewManager(reg *watch.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reg:      reg,
		log:      logger,
		sessions: make(map[string]*Session),
	}
}

// Open subscribes to path and synchronously pushes the initial snapshot.
// The subscription is taken first so that a write landing between the
// initial read and the subscription still produces a push.
func (m *Manager) Open(ctx context.Context, path string, snapshot SnapshotFunc, sink Sink) (*Session, error) {
	sub, err := m.reg.Subscribe(path)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:       newSessionID(),
		Path:     sub.Path,
		sub:      sub,
		snapshot: snapshot,
		sink:     sink,
		log:      m.log,
		mgr:      m,
		ctx:      sctx,
		cancel:   cancel,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Debug("stream session opened", "session", s.ID, "path", s.Path)

	if err := s.push(); err != nil {
		s.Cancel()
		return nil, err
	}
	return s, nil
}

// Serve opens a session and runs it until the client goes away.
func (m *Manager) Serve(ctx context.Context, path string, snapshot SnapshotFunc, sink Sink) error {
	s, err := m.Open(ctx, path, snapshot, sink)
	if err != nil {
		return err
	}
	return s.Run()
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown cancels every open session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Cancel()
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}
