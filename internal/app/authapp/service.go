package authapp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/app/unitofwork"
	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/google/uuid"
)

// Service owns the gateway's auth use cases. Credential checks and token
// issuance happen on the hosted service; the service only caches the result
// as a gateway session and keeps it fresh.
type Service struct {
	logger  *slog.Logger
	backend *backend.Client
}

func NewService(client *backend.Client, logger *slog.Logger) *Service {
	return &Service{
		logger:  logger,
		backend: client,
	}
}

func (s *Service) SignIn(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	email, password string,
	dev session.Device,
) (sess *session.Session, err error) {
	authSess, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	err = uow.Atomic(ctx, func(a *AtomicContext) error {
		sess = session.New(
			uuid.NewString(),
			authSess.User.ID,
			authSess.User.Email,
			authSess.AccessToken,
			authSess.RefreshToken,
			authSess.ExpiresAt(time.Now().UTC()),
			dev,
		)
		if err := a.Sessions.Add(a.Context(), sess); err != nil {
			return err
		}
		return a.Commit()
	})
	return sess, err
}

func (s *Service) SignUp(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	email, password string,
	dev session.Device,
) (*session.Session, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	authSess, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	var sess *session.Session
	err = uow.Atomic(ctx, func(a *AtomicContext) error {
		sess = session.New(
			uuid.NewString(),
			authSess.User.ID,
			authSess.User.Email,
			authSess.AccessToken,
			authSess.RefreshToken,
			authSess.ExpiresAt(time.Now().UTC()),
			dev,
		)
		if err := a.Sessions.Add(a.Context(), sess); err != nil {
			return err
		}
		return a.Commit()
	})
	return sess, err
}

// SignOut closes the gateway session. The hosted revocation is best-effort:
// local state is cleared even when the remote call fails, so a user can
// always get out.
func (s *Service) SignOut(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	sessionID string,
) error {
	return uow.Atomic(ctx, func(a *AtomicContext) error {
		sess, err := a.Sessions.GetByID(a.Context(), sessionID)
		if err != nil {
			return err
		}

		if err := s.backend.SignOut(ctx, sess.AccessToken); err != nil {
			s.logger.Warn("hosted sign-out failed, closing session locally anyway",
				"session_id", sessionID, "error", err)
		}

		if err := sess.SignOut(); err != nil {
			return err
		}
		if err := a.Sessions.Persist(a.Context(), sess); err != nil {
			return err
		}
		return a.Commit()
	})
}

// CurrentSession resolves a session id to a live session, refreshing the
// cached token pair when it has expired. A session whose refresh grant is
// rejected is closed and reported as not found, which signs the user out.
func (s *Service) CurrentSession(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	sessionID string,
) (sess *session.Session, err error) {
	err = uow.Atomic(ctx, func(a *AtomicContext) error {
		var err error
		sess, err = a.Sessions.GetByID(a.Context(), sessionID)
		if err != nil {
			return err
		}
		if !sess.Active() {
			return session.ErrSessionNotFound
		}
		if !sess.Expired(time.Now().UTC()) {
			return a.Commit()
		}

		if err := s.refresh(ctx, a, sess); err != nil {
			return err
		}
		return a.Commit()
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RefreshSession force-refreshes the token pair, the manual retry path after
// a failed data load.
func (s *Service) RefreshSession(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	sessionID string,
) (sess *session.Session, err error) {
	err = uow.Atomic(ctx, func(a *AtomicContext) error {
		var err error
		sess, err = a.Sessions.GetByID(a.Context(), sessionID)
		if err != nil {
			return err
		}
		if !sess.Active() {
			return session.ErrSessionNotFound
		}
		if err := s.refresh(ctx, a, sess); err != nil {
			return err
		}
		return a.Commit()
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// refresh swaps the cached tokens for fresh ones inside the open unit of
// work. On a rejected grant the session is closed and persisted before the
// not-found error goes back to the caller.
func (s *Service) refresh(ctx context.Context, a *AtomicContext, sess *session.Session) error {
	authSess, err := s.backend.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			s.logger.Info("refresh grant rejected, closing session", "session_id", sess.SessionID)
			if soErr := sess.SignOut(); soErr == nil {
				_ = a.Sessions.Persist(a.Context(), sess)
			}
			return session.ErrSessionNotFound
		}
		return err
	}

	if err := sess.Refresh(authSess.AccessToken, authSess.RefreshToken, authSess.ExpiresAt(time.Now().UTC())); err != nil {
		return err
	}
	return a.Sessions.Persist(a.Context(), sess)
}

// AccessTokenForUser returns a valid access token for the user's most
// recent open session. Data calls go through here so an expired token is
// refreshed transparently.
func (s *Service) AccessTokenForUser(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	userID string,
) (token string, err error) {
	err = uow.Atomic(ctx, func(a *AtomicContext) error {
		sess, err := a.Sessions.GetActiveByUser(a.Context(), userID)
		if err != nil {
			return err
		}
		if sess.Expired(time.Now().UTC()) {
			if err := s.refresh(ctx, a, sess); err != nil {
				return err
			}
		}
		token = sess.AccessToken
		return a.Commit()
	})
	return token, err
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	return s.backend.RequestPasswordReset(ctx, email)
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	sessionID, newPassword string,
) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	return uow.Atomic(ctx, func(a *AtomicContext) error {
		sess, err := a.Sessions.GetByID(a.Context(), sessionID)
		if err != nil {
			return err
		}
		if !sess.Active() {
			return session.ErrSessionNotFound
		}
		if err := s.backend.UpdatePassword(ctx, sess.AccessToken, newPassword); err != nil {
			return err
		}
		return a.Commit()
	})
}
