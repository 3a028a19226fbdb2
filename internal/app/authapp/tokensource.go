package authapp

import (
	"context"
	"log/slog"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/app/unitofwork"
)

// TokenSource adapts the auth service to the backend client's token
// interface. Each lookup runs in its own unit of work so a transparent
// refresh is persisted atomically.
type TokenSource struct {
	svc     *Service
	db      storage.DBContext
	factory ContextFactory
	bus     unitofwork.MessageBus
	logger  *slog.Logger
}

func NewTokenSource(
	svc *Service,
	db storage.DBContext,
	factory ContextFactory,
	bus unitofwork.MessageBus,
	logger *slog.Logger,
) *TokenSource {
	return &TokenSource{
		svc:     svc,
		db:      db,
		factory: factory,
		bus:     bus,
		logger:  logger,
	}
}

func (ts *TokenSource) AccessToken(ctx context.Context, userID string) (string, error) {
	uow := unitofwork.New[*AtomicContext](ts.db, ts.factory, ts.bus, ts.logger)
	return ts.svc.AccessTokenForUser(ctx, uow, userID)
}
