package sessionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain/session"
)

func newSession(id, userID string, createdAt time.Time) *session.Session {
	s := session.New(id, userID, userID+"@example.com", "access-"+id, "refresh-"+id,
		createdAt.Add(time.Hour), session.Device{Browser: "firefox"})
	s.CreatedAt = createdAt
	return s
}

func TestMemoryAddAndGet(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	sess := newSession("s1", "u1", time.Now().UTC())
	if err := store.Add(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(ctx, sess); !errors.Is(err, session.ErrSessionExists) {
		t.Fatalf("err = %v, want ErrSessionExists", err)
	}

	got, err := store.GetByID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.AccessToken != "access-s1" || got.Device.Browser != "firefox" {
		t.Errorf("got %+v", got)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryGetActiveByUserPicksLatestOpen(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	base := time.Now().UTC()

	old := newSession("s1", "u1", base.Add(-2*time.Hour))
	latest := newSession("s2", "u1", base.Add(-time.Hour))
	closed := newSession("s3", "u1", base)
	if err := closed.SignOut(); err != nil {
		t.Fatal(err)
	}

	for _, s := range []*session.Session{old, latest, closed} {
		if err := store.Add(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetActiveByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	// The closed session is newer but does not count.
	if got.SessionID != "s2" {
		t.Errorf("got %s, want s2", got.SessionID)
	}

	if _, err := store.GetActiveByUser(ctx, "u2"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryPersistRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	sess := newSession("s1", "u1", time.Now().UTC())
	if err := store.Add(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.GetByID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Refresh("new-access", "new-refresh", time.Now().UTC().Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.Persist(ctx, loaded); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByID(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "new-access" || got.RefreshToken != "new-refresh" {
		t.Errorf("tokens not persisted: %+v", got)
	}

	stranger := newSession("s9", "u9", time.Now().UTC())
	if err := store.Persist(ctx, stranger); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryDeleteExpired(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	base := time.Now().UTC()

	dead := newSession("s1", "u1", base.Add(-48*time.Hour))
	dead.ExpiresAt = base.Add(-24 * time.Hour)
	if err := dead.SignOut(); err != nil {
		t.Fatal(err)
	}

	// Expired but never signed out: still refreshable, must be kept.
	stale := newSession("s2", "u1", base.Add(-48*time.Hour))
	stale.ExpiresAt = base.Add(-24 * time.Hour)

	live := newSession("s3", "u1", base)

	for _, s := range []*session.Session{dead, stale, live} {
		if err := store.Add(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	dropped, err := store.DeleteExpired(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if _, err := store.GetByID(ctx, "s1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Error("dead session must be gone")
	}
	if _, err := store.GetByID(ctx, "s2"); err != nil {
		t.Error("refreshable session must survive")
	}
}

func TestMemoryCollectEvents(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	sess := newSession("s1", "u1", time.Now().UTC())
	if err := store.Add(ctx, sess); err != nil {
		t.Fatal(err)
	}

	events := store.CollectEvents()
	if len(events) != 1 || events[0].Type() != session.EventSignedIn {
		t.Fatalf("events = %v", events)
	}

	// Events are drained, not replayed.
	if again := store.CollectEvents(); len(again) != 0 {
		t.Errorf("second collect = %v", again)
	}
}

func TestDiffSessionsDirection(t *testing.T) {
	now := time.Now().UTC()
	stored := newSession("s1", "u1", now)
	current := newSession("s1", "u1", now)
	if err := current.Refresh("fresh-access", "fresh-refresh", now.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	log, err := diffSessions(stored, current)
	if err != nil {
		t.Fatal(err)
	}

	changed := make(map[string]any, len(log))
	for _, c := range log {
		if len(c.Path) != 1 {
			t.Fatalf("nested path %v", c.Path)
		}
		changed[c.Path[0]] = c.To
	}
	// Change.To must carry the new value, since it lands in the SET clause.
	if changed["access_token"] != "fresh-access" || changed["refresh_token"] != "fresh-refresh" {
		t.Errorf("changelog = %+v", changed)
	}
}
