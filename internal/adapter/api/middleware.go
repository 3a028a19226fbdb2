package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const KeyCurrentSession = "current_session"

// SessionRequired resolves the gateway session cookie to a live session,
// refreshing the hosted token pair transparently when it has expired. A
// missing, closed, or unrefreshable session yields 401.
func (s *Server) SessionRequired() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(s.cookieName)
			if err != nil || cookie.Value == "" {
				return JsonError(c, http.StatusUnauthorized, "not signed in")
			}

			sess, err := s.authService.CurrentSession(c.Request().Context(), s.uow(), cookie.Value)
			if err != nil {
				s.clearSessionCookie(c)
				return DomainError(c, err)
			}

			c.Set(KeyCurrentSession, sess)
			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	}
}

func (s *Server) setSessionCookie(c echo.Context, sessionID string) {
	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
