package authapp_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/adapter/backend/backendtest"
	"github.com/ashmarin/weighttrack/internal/adapter/storage/sessionstore"
	"github.com/ashmarin/weighttrack/internal/app/authapp"
	"github.com/ashmarin/weighttrack/internal/app/authbus"
	"github.com/ashmarin/weighttrack/internal/app/unitofwork"
	"github.com/ashmarin/weighttrack/internal/domain"
	"github.com/ashmarin/weighttrack/internal/domain/session"
)

type authFixture struct {
	srv     *backendtest.Server
	client  *backend.Client
	service *authapp.Service
	bus     *authbus.Bus
	uow     *unitofwork.UnitOfWork[*authapp.AtomicContext]
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := backendtest.New()
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL(), backendtest.APIKey,
		backend.WithLogger(logger),
		backend.WithJWTSecret(backendtest.JWTSecret),
	)

	bus := authbus.New(logger)
	t.Cleanup(bus.Close)

	store := sessionstore.NewMemoryStorage()
	uow := unitofwork.New[*authapp.AtomicContext](
		sessionstore.MemoryDB{},
		authapp.MemoryContextFactory(store),
		bus,
		logger,
	)

	return &authFixture{
		srv:     srv,
		client:  client,
		service: authapp.NewService(client, logger),
		bus:     bus,
		uow:     uow,
	}
}

var noDevice = session.Device{Browser: "test"}

func TestSignUpAndCurrentSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}
	if sess.SessionID == "" || sess.UserID == "" {
		t.Fatalf("incomplete session: %+v", sess)
	}

	got, err := f.service.CurrentSession(ctx, f.uow, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != sess.UserID || got.Email != "anna@example.com" {
		t.Errorf("got %+v", got)
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.SignUp(context.Background(), f.uow, "anna@example.com", "weak", noDevice)
	if !errors.Is(err, authapp.ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.srv.SeedUser("anna@example.com", "Secret1pass")

	_, err := f.service.SignIn(context.Background(), f.uow, "anna@example.com", "nope", noDevice)
	if !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignInPublishesSignedInEvent(t *testing.T) {
	f := newAuthFixture(t)
	f.srv.SeedUser("anna@example.com", "Secret1pass")

	events := make(chan domain.Event, 1)
	f.bus.Register(session.EventSignedIn, func(event domain.Event) error {
		events <- event
		return nil
	})

	sess, err := f.service.SignIn(context.Background(), f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-events:
		signedIn, ok := event.(session.SignedInEvent)
		if !ok {
			t.Fatalf("event = %T", event)
		}
		if signedIn.UserID != sess.UserID || signedIn.SessionID != sess.SessionID {
			t.Errorf("event = %+v", signedIn)
		}
	case <-time.After(time.Second):
		t.Fatal("signed-in event never arrived")
	}
}

func TestSignOutClosesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.SignOut(ctx, f.uow, sess.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.CurrentSession(ctx, f.uow, sess.SessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCurrentSessionRefreshesExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// Tokens issued at sign-up are already expired; the ones issued on
	// refresh are fine.
	f.srv.SetAccessTTL(-time.Second)
	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}
	f.srv.SetAccessTTL(time.Hour)

	got, err := f.service.CurrentSession(ctx, f.uow, sess.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken == sess.AccessToken {
		t.Error("expired access token must be replaced")
	}
	if got.Expired(time.Now().UTC()) {
		t.Error("refreshed session must not be expired")
	}
}

func TestRejectedRefreshSignsOut(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}

	// Revoke the refresh token behind the gateway's back.
	if err := f.client.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.RefreshSession(ctx, f.uow, sess.SessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	// The session is now closed for good.
	if _, err := f.service.CurrentSession(ctx, f.uow, sess.SessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestAccessTokenForUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}

	token, err := f.service.AccessTokenForUser(ctx, f.uow, sess.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if token != sess.AccessToken {
		t.Error("fresh session must hand out the cached token")
	}

	if _, err := f.service.AccessTokenForUser(ctx, f.uow, "nobody"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, f.uow, "anna@example.com", "Secret1pass", noDevice)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.service.UpdatePassword(ctx, f.uow, sess.SessionID, "short"); !errors.Is(err, authapp.ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}

	if err := f.service.UpdatePassword(ctx, f.uow, sess.SessionID, "Changed1pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.SignIn(ctx, "anna@example.com", "Changed1pass"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.service.RequestPasswordReset(context.Background(), "anna@example.com"); err != nil {
		t.Fatal(err)
	}
	if emails := f.srv.ResetEmails(); len(emails) != 1 || emails[0] != "anna@example.com" {
		t.Errorf("reset emails = %v", emails)
	}
}
