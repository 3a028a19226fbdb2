// Package sessionstore persists the gateway's own sessions: the cached
// hosted-service token pairs plus the device each sign-in came from.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/adapter/storage/pgutil"
	"github.com/ashmarin/weighttrack/internal/domain"
	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/leporo/sqlf"
)

type PostgresStorage struct {
	db     storage.DBContext
	seenMu sync.Mutex
	seen   map[string]*session.Session
}

func NewPostgresStorage(db storage.DBContext) *PostgresStorage {
	return &PostgresStorage{
		db:   db,
		seen: make(map[string]*session.Session),
	}
}

func (s *PostgresStorage) Add(ctx context.Context, sess *session.Session) error {
	q := sqlf.InsertInto("sessions").
		Set("session_id", sess.SessionID).
		Set("user_id", sess.UserID).
		Set("email", sess.Email).
		Set("access_token", sess.AccessToken).
		Set("refresh_token", sess.RefreshToken).
		Set("expires_at", sess.ExpiresAt).
		Set("signed_out_at", sess.SignedOutAt).
		Set("created_at", sess.CreatedAt).
		Set("browser", sess.Device.Browser).
		Set("os", sess.Device.OS).
		Set("ip_address", sess.Device.IPAddress).
		Set("device_model", sess.Device.Model)

	if _, err := q.ExecAndClose(ctx, s.db); err != nil {
		if pgutil.ViolatesConstraint(err, "sessions_pkey") {
			return errors.Join(fmt.Errorf("session exists: %w", err), session.ErrSessionExists)
		}
		return storage.InternalError(err)
	}

	s.markSeen(sess)

	return nil
}

func (s *PostgresStorage) get(
	ctx context.Context,
	modify func(stmt *sqlf.Stmt),
) ([]*session.Session, error) {
	var tmp sessionRow

	q := sqlf.From("sessions s").
		Select("s.session_id").To(&tmp.SessionID).
		Select("s.user_id").To(&tmp.UserID).
		Select("s.email").To(&tmp.Email).
		Select("s.access_token").To(&tmp.AccessToken).
		Select("s.refresh_token").To(&tmp.RefreshToken).
		Select("s.expires_at").To(&tmp.ExpiresAt).
		Select("s.signed_out_at").To(&tmp.SignedOutAt).
		Select("s.created_at").To(&tmp.CreatedAt).
		Select("s.browser").To(&tmp.Browser).
		Select("s.os").To(&tmp.OS).
		Select("s.ip_address").To(&tmp.IPAddress).
		Select("s.device_model").To(&tmp.Model)

	modify(q)

	var result []*session.Session

	err := q.QueryAndClose(ctx, s.db, func(rows *sql.Rows) {
		result = append(result, tmp.toDomain())
	})

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storage.InternalError(err)
	}

	return result, nil
}

func (s *PostgresStorage) GetByID(ctx context.Context, sessionID string) (*session.Session, error) {
	sessions, err := s.get(ctx, func(stmt *sqlf.Stmt) {
		stmt.Where("s.session_id = ?", sessionID)
	})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, session.ErrSessionNotFound
	}
	s.markSeen(sessions[0])
	return sessions[0], nil
}

// GetActiveByUser returns the most recent open session for a user. Used by
// the token source when a data call needs the user's current access token.
func (s *PostgresStorage) GetActiveByUser(ctx context.Context, userID string) (*session.Session, error) {
	sessions, err := s.get(ctx, func(stmt *sqlf.Stmt) {
		stmt.Where("s.user_id = ?", userID).
			Where("s.signed_out_at IS NULL").
			OrderBy("s.created_at DESC").
			Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, session.ErrSessionNotFound
	}
	s.markSeen(sessions[0])
	return sessions[0], nil
}

// Persist writes back the fields that changed since the session was loaded.
func (s *PostgresStorage) Persist(ctx context.Context, sess *session.Session) error {
	dbState, err := s.GetByID(ctx, sess.SessionID)
	if err != nil {
		return err
	}

	log, _ := diffSessions(dbState, sess)
	if len(log) == 0 {
		s.markSeen(sess)
		return nil
	}

	q := sqlf.Update("sessions").Where("session_id = ?", sess.SessionID)
	q = pgutil.MakeUpdateQuery(q, log)

	res, err := q.ExecAndClose(ctx, s.db)
	if err := pgutil.AssertUpdated(res, err, session.ErrSessionNotFound); err != nil {
		return err
	}

	s.markSeen(sess)
	return nil
}

// DeleteExpired drops sessions whose tokens expired before the cutoff and
// that are already signed out. Kept rows may still be refreshable.
func (s *PostgresStorage) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	q := sqlf.DeleteFrom("sessions").
		Where("expires_at < ?", cutoff).
		Where("signed_out_at IS NOT NULL")

	res, err := q.ExecAndClose(ctx, s.db)
	if err != nil {
		return 0, storage.InternalError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.InternalError(err)
	}
	return affected, nil
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	var events []domain.Event
	s.seenMu.Lock()
	for _, sess := range s.seen {
		events = append(events, sess.PopEvents()...)
	}
	s.seen = make(map[string]*session.Session)
	s.seenMu.Unlock()
	return events
}

func (s *PostgresStorage) Close() error {
	s.seenMu.Lock()
	s.seen = make(map[string]*session.Session)
	s.seenMu.Unlock()
	return nil
}

func (s *PostgresStorage) markSeen(sess *session.Session) {
	s.seenMu.Lock()
	s.seen[sess.SessionID] = sess
	s.seenMu.Unlock()
}

type sessionRow struct {
	SessionID    string
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SignedOutAt  *time.Time
	CreatedAt    time.Time

	Browser   string
	OS        string
	IPAddress string
	Model     string
}

func (r sessionRow) toDomain() *session.Session {
	return &session.Session{
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		Email:        r.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		SignedOutAt:  r.SignedOutAt,
		CreatedAt:    r.CreatedAt,
		Device: session.Device{
			Browser:   r.Browser,
			OS:        r.OS,
			IPAddress: r.IPAddress,
			Model:     r.Model,
		},
	}
}
