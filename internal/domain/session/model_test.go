package session

import (
	"errors"
	"testing"
	"time"
)

func newTestSession() *Session {
	return New("s1", "u1", "u1@example.com", "access", "refresh",
		time.Now().UTC().Add(time.Hour), Device{Browser: "firefox", OS: "linux"})
}

func TestNewPushesSignedInEvent(t *testing.T) {
	s := newTestSession()

	events := s.PopEvents()
	if len(events) != 1 {
		t.Fatalf("events = %v", events)
	}
	e, ok := events[0].(SignedInEvent)
	if !ok || e.UserID != "u1" || e.SessionID != "s1" || e.Device.Browser != "firefox" {
		t.Errorf("event = %+v", events[0])
	}

	if again := s.PopEvents(); len(again) != 0 {
		t.Error("events must drain on pop")
	}
}

func TestExpired(t *testing.T) {
	s := newTestSession()
	now := time.Now().UTC()

	if s.Expired(now) {
		t.Error("fresh session must not be expired")
	}
	if !s.Expired(s.ExpiresAt) {
		t.Error("session expires exactly at its deadline")
	}
}

func TestRefresh(t *testing.T) {
	s := newTestSession()
	s.PopEvents()

	expiry := time.Now().UTC().Add(2 * time.Hour)
	if err := s.Refresh("new-access", "new-refresh", expiry); err != nil {
		t.Fatal(err)
	}
	if s.AccessToken != "new-access" || s.RefreshToken != "new-refresh" || !s.ExpiresAt.Equal(expiry) {
		t.Errorf("session = %+v", s)
	}

	events := s.PopEvents()
	if len(events) != 1 || events[0].Type() != EventRefreshed {
		t.Errorf("events = %v", events)
	}
}

func TestSignOut(t *testing.T) {
	s := newTestSession()
	s.PopEvents()

	if err := s.SignOut(); err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Error("signed-out session must not be active")
	}

	events := s.PopEvents()
	if len(events) != 1 || events[0].Type() != EventSignedOut {
		t.Errorf("events = %v", events)
	}

	if err := s.SignOut(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("double sign-out = %v, want ErrSessionClosed", err)
	}
	if err := s.Refresh("a", "r", time.Now()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("refresh after sign-out = %v, want ErrSessionClosed", err)
	}
}
