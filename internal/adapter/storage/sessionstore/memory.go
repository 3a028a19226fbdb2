package sessionstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/domain"
	"github.com/ashmarin/weighttrack/internal/domain/session"
)

// MemoryStorage is an in-memory session store with the same behavior as the
// postgres one. It backs tests and single-process development runs.
type MemoryStorage struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	seen     map[string]*session.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*session.Session),
		seen:     make(map[string]*session.Session),
	}
}

func (s *MemoryStorage) Add(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.SessionID]; ok {
		return session.ErrSessionExists
	}
	s.sessions[sess.SessionID] = cloneSession(sess)
	s.seen[sess.SessionID] = sess
	return nil
}

func (s *MemoryStorage) GetByID(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	sess := cloneSession(stored)
	s.seen[sess.SessionID] = sess
	return sess, nil
}

func (s *MemoryStorage) GetActiveByUser(_ context.Context, userID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *session.Session
	for _, stored := range s.sessions {
		if stored.UserID != userID || !stored.Active() {
			continue
		}
		if latest == nil || stored.CreatedAt.After(latest.CreatedAt) {
			latest = stored
		}
	}
	if latest == nil {
		return nil, session.ErrSessionNotFound
	}
	sess := cloneSession(latest)
	s.seen[sess.SessionID] = sess
	return sess, nil
}

func (s *MemoryStorage) Persist(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.SessionID]; !ok {
		return session.ErrSessionNotFound
	}
	s.sessions[sess.SessionID] = cloneSession(sess)
	s.seen[sess.SessionID] = sess
	return nil
}

func (s *MemoryStorage) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped int64
	for id, stored := range s.sessions {
		if stored.ExpiresAt.Before(cutoff) && !stored.Active() {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped, nil
}

func (s *MemoryStorage) CollectEvents() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []domain.Event
	for _, sess := range s.seen {
		events = append(events, sess.PopEvents()...)
	}
	s.seen = make(map[string]*session.Session)
	return events
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.seen = make(map[string]*session.Session)
	s.mu.Unlock()
	return nil
}

// cloneSession copies the persisted fields. The embedded aggregate is left
// fresh: pending events belong to the instance that produced them.
func cloneSession(sess *session.Session) *session.Session {
	var signedOutAt *time.Time
	if sess.SignedOutAt != nil {
		t := *sess.SignedOutAt
		signedOutAt = &t
	}
	return &session.Session{
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		Email:        sess.Email,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		SignedOutAt:  signedOutAt,
		CreatedAt:    sess.CreatedAt,
		Device:       sess.Device,
	}
}

// MemoryDB satisfies storage.DBContext for units of work running against
// MemoryStorage. There is no transaction to manage, so everything is a no-op
// and raw SQL access is an error.
type MemoryDB struct{}

func (MemoryDB) Begin(ctx context.Context) (storage.DBContext, error) { return MemoryDB{}, nil }
func (MemoryDB) Commit() error                                        { return nil }
func (MemoryDB) Rollback() error                                      { return nil }

func (MemoryDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, storage.ErrInternal
}

func (MemoryDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, storage.ErrInternal
}

func (MemoryDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}
