package backend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/adapter/backend/backendtest"
	"github.com/ashmarin/weighttrack/internal/domain/entry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, srv *backendtest.Server) *backend.Client {
	t.Helper()
	return backend.NewClient(srv.URL(), backendtest.APIKey,
		backend.WithLogger(testLogger()),
		backend.WithJWTSecret(backendtest.JWTSecret),
	)
}

// staticTokens satisfies backend.TokenSource with a fixed access token.
type staticTokens string

func (s staticTokens) AccessToken(context.Context, string) (string, error) {
	return string(s), nil
}

func TestSignUpAndSignIn(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	created, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}
	if created.AccessToken == "" || created.User.ID == "" {
		t.Fatalf("incomplete session: %+v", created)
	}

	signedIn, err := c.SignIn(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}
	if signedIn.User.ID != created.User.ID {
		t.Error("sign-in must resolve to the same user")
	}

	claims, err := c.ParseAccessToken(signedIn.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != created.User.ID || claims.Email != "anna@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)

	srv.SeedUser("anna@example.com", "Secret1pass")
	_, err := c.SignIn(context.Background(), "anna@example.com", "wrong")
	if !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignUpExistingUser(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)

	srv.SeedUser("anna@example.com", "Secret1pass")
	_, err := c.SignUp(context.Background(), "anna@example.com", "Other1pass")
	if !errors.Is(err, backend.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := c.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.RefreshToken == sess.RefreshToken {
		t.Error("refresh token must rotate")
	}

	// The consumed token is dead.
	if _, err := c.RefreshSession(ctx, sess.RefreshToken); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSignOutRevokesRefreshToken(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RefreshSession(ctx, sess.RefreshToken); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized after sign-out", err)
	}
}

func TestPasswordResetAndUpdate(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.RequestPasswordReset(ctx, "anna@example.com"); err != nil {
		t.Fatal(err)
	}
	if emails := srv.ResetEmails(); len(emails) != 1 || emails[0] != "anna@example.com" {
		t.Errorf("reset emails = %v", emails)
	}

	if err := c.UpdatePassword(ctx, sess.AccessToken, "Changed1pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SignIn(ctx, "anna@example.com", "Changed1pass"); err != nil {
		t.Errorf("sign-in with new password failed: %v", err)
	}
	if _, err := c.SignIn(ctx, "anna@example.com", "Secret1pass"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Errorf("old password must be rejected, got %v", err)
	}
}

func TestEntriesCRUD(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}
	repo := c.EntriesFor(sess.User.ID, staticTokens(sess.AccessToken))

	form := entry.FormData{Weight: 80}
	form.Date, _ = time.Parse(entry.DateLayout, "2026-08-01")

	added, err := repo.Add(ctx, form)
	if err != nil {
		t.Fatal(err)
	}
	if added.Date != "2026-08-01" || added.Weight != 80 {
		t.Fatalf("added = %+v", added)
	}

	// A second submission for the same date replaces the weight and keeps
	// the id.
	form.Weight = 79
	upserted, err := repo.Add(ctx, form)
	if err != nil {
		t.Fatal(err)
	}
	if upserted.ID != added.ID || upserted.Weight != 79 {
		t.Fatalf("upserted = %+v", upserted)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("list = %v", all)
	}

	page, err := repo.ListPage(ctx, 1, 10, entry.SortDesc)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 || len(page.Entries) != 1 {
		t.Fatalf("page = %+v", page)
	}

	form.Date, _ = time.Parse(entry.DateLayout, "2026-08-02")
	moved, err := repo.Update(ctx, added.ID, form)
	if err != nil {
		t.Fatal(err)
	}
	if moved.Date != "2026-08-02" {
		t.Fatalf("moved = %+v", moved)
	}

	if err := repo.Remove(ctx, added.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Remove(ctx, added.ID); !errors.Is(err, entry.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestUpdateDateConflict(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}
	a := srv.SeedEntry(sess.User.ID, "2026-08-01", 80)
	srv.SeedEntry(sess.User.ID, "2026-08-02", 79)

	repo := c.EntriesFor(sess.User.ID, staticTokens(sess.AccessToken))

	form := entry.FormData{Weight: 78}
	form.Date, _ = time.Parse(entry.DateLayout, "2026-08-02")
	if _, err := repo.Update(ctx, a.ID, form); !errors.Is(err, entry.ErrDateConflict) {
		t.Fatalf("err = %v, want ErrDateConflict", err)
	}
}

func TestVerify(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()

	t.Run("healthy", func(t *testing.T) {
		res := newClient(t, srv).Verify(context.Background())
		if !res.OK || res.ConfigError {
			t.Fatalf("res = %+v", res)
		}
		if res.MaskedKey != "backen...cdef" {
			t.Errorf("masked key = %q", res.MaskedKey)
		}
	})

	t.Run("rejected api key", func(t *testing.T) {
		c := backend.NewClient(srv.URL(), "wrong-but-long-enough-key-123456", backend.WithLogger(testLogger()))
		res := c.Verify(context.Background())
		if res.OK || !res.ConfigError {
			t.Fatalf("res = %+v", res)
		}
	})

	t.Run("malformed url", func(t *testing.T) {
		c := backend.NewClient("example.com", backendtest.APIKey, backend.WithLogger(testLogger()))
		res := c.Verify(context.Background())
		if res.OK || !res.ConfigError {
			t.Fatalf("res = %+v", res)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		c := backend.NewClient(srv.URL(), "", backend.WithLogger(testLogger()))
		res := c.Verify(context.Background())
		if !res.ConfigError || res.MaskedKey != "not configured" {
			t.Fatalf("res = %+v", res)
		}
	})
}

func TestConfigErrorShortCircuitsCalls(t *testing.T) {
	c := backend.NewClient("", "", backend.WithLogger(testLogger()))
	if _, err := c.SignIn(context.Background(), "a@b.c", "pass"); !errors.Is(err, backend.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestParseAccessTokenUnverified(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()

	// No configured secret: claims are extracted without verification.
	c := backend.NewClient(srv.URL(), backendtest.APIKey, backend.WithLogger(testLogger()))
	sess, err := c.SignUp(context.Background(), "anna@example.com", "Secret1pass")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := c.ParseAccessToken(sess.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != sess.User.ID {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := c.ParseAccessToken("garbage"); !errors.Is(err, backend.ErrAccessTokenInvalid) {
		t.Fatalf("err = %v, want ErrAccessTokenInvalid", err)
	}
}
