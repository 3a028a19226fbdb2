package api

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/ashmarin/weighttrack/internal/app/authapp"
	"github.com/ashmarin/weighttrack/internal/app/authstate"
	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/app/unitofwork"
)

type Option func(*Server)

func Addr(host string, port int) Option {
	return func(s *Server) {
		s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func Logger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func DBContext(db storage.DBContext) Option {
	return func(s *Server) {
		s.db = db
	}
}

func ContextFactory(f authapp.ContextFactory) Option {
	return func(s *Server) {
		s.ctxFactory = f
	}
}

func AuthService(service *authapp.Service) Option {
	return func(s *Server) {
		s.authService = service
	}
}

func Syncers(m *syncer.Manager) Option {
	return func(s *Server) {
		s.syncers = m
	}
}

func AuthState(h *authstate.Holder) Option {
	return func(s *Server) {
		s.holder = h
	}
}

func Backend(c *backend.Client) Option {
	return func(s *Server) {
		s.backend = c
	}
}

func MessageBus(bus unitofwork.MessageBus) Option {
	return func(s *Server) {
		s.msgBus = bus
	}
}

func SessionCookie(name string, ttl time.Duration) Option {
	return func(s *Server) {
		s.cookieName = name
		s.sessionTTL = ttl
	}
}
