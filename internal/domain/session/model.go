package session

import (
	"errors"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionClosed   = errors.New("session already signed out")
)

const (
	EventSignedIn  = "session.signed_in"
	EventRefreshed = "session.refreshed"
	EventSignedOut = "session.signed_out"
)

// Device describes the client a session was opened from.
type Device struct {
	Browser   string `diff:"browser"`
	OS        string `diff:"os"`
	IPAddress string `diff:"ip_address"`
	Model     string `diff:"device_model"`
}

// Session is the gateway's own record of a signed-in user: which hosted
// service tokens it holds and where they came from. It caches credentials
// issued elsewhere, it does not authenticate anybody itself.
type Session struct {
	domain.Aggregate `diff:"-"`
	SessionID        string     `diff:"-"`
	UserID           string     `diff:"-"`
	Email            string     `diff:"-"`
	AccessToken      string     `diff:"access_token"`
	RefreshToken     string     `diff:"refresh_token"`
	ExpiresAt        time.Time  `diff:"expires_at"`
	SignedOutAt      *time.Time `diff:"signed_out_at"`
	CreatedAt        time.Time  `diff:"-"`
	Device           Device     `diff:"-"`
}

func New(sessionID, userID, email, accessToken, refreshToken string, expiresAt time.Time, dev Device) *Session {
	s := &Session{
		SessionID:    sessionID,
		UserID:       userID,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
		Device:       dev,
	}
	s.PushEvent(SignedInEvent{
		At:        s.CreatedAt,
		SessionID: s.SessionID,
		UserID:    s.UserID,
		Email:     s.Email,
		Device:    dev,
	})
	return s
}

// Active reports whether the session can still be used, ignoring token
// expiry: an expired access token is refreshed, a signed-out session is dead.
func (s *Session) Active() bool {
	return s.SignedOutAt == nil
}

// Expired reports whether the cached access token needs a refresh.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Refresh replaces the cached token pair after a successful refresh grant.
func (s *Session) Refresh(accessToken, refreshToken string, expiresAt time.Time) error {
	if !s.Active() {
		return ErrSessionClosed
	}
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	s.PushEvent(RefreshedEvent{
		At:        time.Now().UTC(),
		SessionID: s.SessionID,
		UserID:    s.UserID,
	})
	return nil
}

// SignOut closes the session. Closing an already closed session is an error
// so callers can distinguish a double sign-out from a fresh one.
func (s *Session) SignOut() error {
	if !s.Active() {
		return ErrSessionClosed
	}
	now := time.Now().UTC()
	s.SignedOutAt = &now
	s.PushEvent(SignedOutEvent{
		At:        now,
		SessionID: s.SessionID,
		UserID:    s.UserID,
	})
	return nil
}

type SignedInEvent struct {
	At        time.Time
	SessionID string
	UserID    string
	Email     string
	Device    Device
}

func (e SignedInEvent) Type() string { return EventSignedIn }
func (e SignedInEvent) PublishedAt() time.Time { return e.At }

type RefreshedEvent struct {
	At        time.Time
	SessionID string
	UserID    string
}

func (e RefreshedEvent) Type() string { return EventRefreshed }
func (e RefreshedEvent) PublishedAt() time.Time { return e.At }

type SignedOutEvent struct {
	At        time.Time
	SessionID string
	UserID    string
}

func (e SignedOutEvent) Type() string { return EventSignedOut }
func (e SignedOutEvent) PublishedAt() time.Time { return e.At }
