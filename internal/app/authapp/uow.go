package authapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/adapter/storage/sessionstore"
	"github.com/ashmarin/weighttrack/internal/domain"
	"github.com/ashmarin/weighttrack/internal/domain/session"
)

type SessionStorage interface {
	Add(ctx context.Context, sess *session.Session) error
	GetByID(ctx context.Context, sessionID string) (*session.Session, error)
	GetActiveByUser(ctx context.Context, userID string) (*session.Session, error)
	Persist(ctx context.Context, sess *session.Session) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	CollectEvents() []domain.Event
	Close() error
}

type AtomicContext struct {
	ctx      context.Context
	db       storage.DBContext
	Sessions SessionStorage
}

func (a *AtomicContext) Context() context.Context {
	return a.ctx
}

func (a *AtomicContext) Commit() error {
	return a.db.Commit()
}

func (a *AtomicContext) Close() (err error) {
	if closeErr := a.Sessions.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		err = errors.Join(fmt.Errorf("failed to close storage"), err)
	}

	return err
}

func (a *AtomicContext) CollectEvents() []domain.Event {
	return a.Sessions.CollectEvents()
}

// ContextFactory builds the atomic context a unit of work runs in. The
// default is postgres-backed; tests swap in MemoryContextFactory.
type ContextFactory = func(context.Context, storage.DBContext) (*AtomicContext, error)

func NewAtomicContext(ctx context.Context, dbContext storage.DBContext) (*AtomicContext, error) {
	return &AtomicContext{
		ctx:      ctx,
		db:       dbContext,
		Sessions: sessionstore.NewPostgresStorage(dbContext),
	}, nil
}

// MemoryContextFactory shares one in-memory store across units of work,
// since without a database the store itself carries the state.
func MemoryContextFactory(store *sessionstore.MemoryStorage) ContextFactory {
	return func(ctx context.Context, dbContext storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{
			ctx:      ctx,
			db:       dbContext,
			Sessions: store,
		}, nil
	}
}
