package api

import (
	"net/http"
	"time"

	"github.com/ashmarin/weighttrack/internal/app/stats"
	"github.com/labstack/echo/v4"
)

func (s *Server) MountStats() {
	s.handler.GET("/stats", s.Stats, s.SessionRequired())
}

// Stats recomputes the dashboard figures from the complete view on every
// request. The computation is pure, so no staleness tracking is needed.
func (s *Server) Stats(c echo.Context) error {
	sync, _ := s.syncerFor(c)
	return c.JSON(http.StatusOK, stats.Compute(sync.All(), time.Now()))
}
