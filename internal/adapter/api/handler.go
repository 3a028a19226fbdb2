package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/app/authapp"
	"github.com/ashmarin/weighttrack/internal/app/authstate"
	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/app/unitofwork"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	handler     *echo.Echo
	logger      *slog.Logger
	addr        string
	db          storage.DBContext
	ctxFactory  authapp.ContextFactory
	authService *authapp.Service
	syncers     *syncer.Manager
	holder      *authstate.Holder
	backend     *backend.Client
	msgBus      unitofwork.MessageBus
	validator   *validator.Validate
	cookieName  string
	sessionTTL  time.Duration
}

func NewServer(opt ...Option) *Server {
	e := echo.New()

	e.Server.WriteTimeout = 10 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.IdleTimeout = 10 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.MaxHeaderBytes = 4096

	v := validator.New(validator.WithRequiredStructEnabled())

	s := &Server{
		handler:    e,
		validator:  v,
		cookieName: "wt_session",
		sessionTTL: 30 * 24 * time.Hour,
	}

	for _, opt := range opt {
		opt(s)
	}

	e.Use(slogecho.NewWithConfig(s.logger, slogecho.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelInfo,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		WithSpanID:       true,
		WithTraceID:      true,
	}))
	s.Mount()
	return s
}

func (s *Server) Mount() {
	s.MountAuth()
	s.MountEntries()
	s.MountStats()
	s.MountDiag()
}

func (s *Server) Start() error {
	return s.handler.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.handler.Shutdown(ctx)
}

func (s *Server) uow() *unitofwork.UnitOfWork[*authapp.AtomicContext] {
	return unitofwork.New[*authapp.AtomicContext](s.db, s.ctxFactory, s.msgBus, s.logger)
}

func (s *Server) bind(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return fmt.Errorf("bad request")
	}
	if err := s.validator.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("bad request")
		}
		return fmt.Errorf("%s: %s", errs[0].Field(), errs[0].Error())
	}
	return nil
}
