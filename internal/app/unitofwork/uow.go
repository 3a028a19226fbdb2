package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/domain"
)

var (
	ErrRollback = errors.New("rollback")
)

// AtomicContext groups the storage adapters one use case touches inside a
// single transaction.
type AtomicContext interface {
	Context() context.Context
	Commit() error
	Close() error
	CollectEvents() []domain.Event
}

type MessageBus interface {
	PublishEvents(events ...domain.Event) error
}

// UnitOfWork runs a use case atomically: begin, do, commit-or-rollback, then
// publish the domain events the storages collected.
type UnitOfWork[T AtomicContext] struct {
	db         storage.DBContext
	newContext func(context.Context, storage.DBContext) (T, error)
	msgBus     MessageBus
	logger     *slog.Logger
}

func New[T AtomicContext](
	db storage.DBContext,
	newCtx func(context.Context, storage.DBContext) (T, error),
	msgBus MessageBus,
	logger *slog.Logger,
) *UnitOfWork[T] {
	return &UnitOfWork[T]{
		db:         db,
		newContext: newCtx,
		msgBus:     msgBus,
		logger:     logger,
	}
}

func (uow *UnitOfWork[T]) Atomic(
	ctx context.Context,
	do func(T) error,
) error {
	tx, err := uow.db.Begin(ctx)
	if err != nil {
		return stateRollbackError(err)
	}

	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	atomicCtx, err := uow.newContext(txCtx, tx)
	if err != nil {
		return stateRollbackError(err)
	}
	defer func() {
		if err := atomicCtx.Close(); err != nil {
			uow.logger.Error("failed to close atomic context", "error", err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			if err := tx.Rollback(); err != nil {
				uow.logger.Error("failed to rollback transaction", "error", err)
			}
			panic(r)
		}
	}()

	if err := do(atomicCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			uow.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return stateRollbackError(err)
	}

	if err := uow.msgBus.PublishEvents(atomicCtx.CollectEvents()...); err != nil {
		uow.logger.Error("failed to publish events", "error", err)
		return err
	}

	return nil
}

func stateRollbackError(err error) error {
	return errors.Join(fmt.Errorf("state rollback: %w", err), ErrRollback)
}
