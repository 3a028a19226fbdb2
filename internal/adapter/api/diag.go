package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) MountDiag() {
	s.handler.GET("/diag/backend", s.DiagBackend)
}

// DiagBackend reports the hosted-service connection state: local
// configuration problems, rejected API keys, and plain connectivity, with
// the configured key masked. It requires no session so a misconfigured
// deployment can still be diagnosed.
func (s *Server) DiagBackend(c echo.Context) error {
	res := s.backend.Verify(c.Request().Context())

	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, res)
}
