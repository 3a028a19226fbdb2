package syncer

import (
	"log/slog"
	"sync"
	"time"
)

// RepositoryFactory binds the remote entry collection to a user.
type RepositoryFactory func(userID string) Repository

// Manager keeps at most one syncer per signed-in user and drops its state
// when the user signs out or switches. Entries never survive across user
// sessions.
type Manager struct {
	factory     RepositoryFactory
	pageSize    int
	loadTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]*Syncer
}

func NewManager(factory RepositoryFactory, pageSize int, loadTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		factory:     factory,
		pageSize:    pageSize,
		loadTimeout: loadTimeout,
		logger:      logger,
		active:      make(map[string]*Syncer),
	}
}

// ForUser returns the user's syncer, creating it on first use.
func (m *Manager) ForUser(userID string) *Syncer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[userID]; ok {
		return s
	}
	s := New(userID, m.factory(userID), m.pageSize, m.loadTimeout, m.logger)
	m.active[userID] = s
	return s
}

// Get returns the user's syncer without creating one.
func (m *Manager) Get(userID string) (*Syncer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[userID]
	return s, ok
}

// Drop closes and forgets the user's syncer. Late responses from requests
// started before the drop are discarded by the closed syncer.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[userID]; ok {
		s.Close()
		delete(m.active, userID)
	}
}

// DropAll clears every user's state. Used on shutdown.
func (m *Manager) DropAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.active {
		s.Close()
		delete(m.active, id)
	}
}
