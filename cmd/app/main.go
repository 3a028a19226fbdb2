package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/api"
	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/app/authapp"
	"github.com/ashmarin/weighttrack/internal/app/authbus"
	"github.com/ashmarin/weighttrack/internal/app/authstate"
	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leporo/sqlf"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := initLogger(cfg)

	bus := authbus.New(logger)

	sqlf.SetDialect(sqlf.PostgreSQL)

	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey,
		backend.WithLogger(logger),
		backend.WithJWTSecret(cfg.Backend.JWTSecret),
	)

	authService := authapp.NewService(client, logger)
	tokens := authapp.NewTokenSource(
		authService,
		&storage.DB{DB: db},
		authapp.NewAtomicContext,
		bus,
		logger,
	)

	syncers := syncer.NewManager(
		func(userID string) syncer.Repository {
			return client.EntriesFor(userID, tokens)
		},
		cfg.Sync.PageSize,
		cfg.Sync.DataLoadTimeout,
		logger,
	)

	holder := authstate.NewHolder(syncers, logger)
	holder.Bind(bus)

	server := api.NewServer(
		api.Addr(cfg.Server.Host, cfg.Server.Port),
		api.Logger(logger),
		api.AuthService(authService),
		api.Syncers(syncers),
		api.AuthState(holder),
		api.Backend(client),
		api.DBContext(&storage.DB{DB: db}),
		api.ContextFactory(authapp.NewAtomicContext),
		api.MessageBus(bus),
		api.SessionCookie(cfg.Session.CookieName, cfg.Session.TTL),
	)

	ctx := context.Background()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error)

	go func() {
		defer close(errCh)
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server was not shutdown gracefully", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server closed with unexpected error", "error", err)
			}
		}
	}

	syncers.DropAll()
	bus.Close()
	logger.Info("server shutdown")
}

func initLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	switch cfg.App.Env {
	case config.Development:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		})
	case config.Production:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: false,
			Level:     slog.LevelInfo,
		})
	default:
		panic("invalid env")
	}

	return slog.New(handler)
}
