package api

import (
	"net/http"

	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
)

func (s *Server) MountAuth() {
	sessionRequired := s.SessionRequired()

	authRoutes := s.handler.Group("/auth")

	authRoutes.POST("/sign-in", s.SignIn)
	authRoutes.POST("/sign-up", s.SignUp)
	authRoutes.POST("/reset-password", s.ResetPassword)
	authRoutes.POST("/sign-out", s.SignOut, sessionRequired)
	authRoutes.PUT("/password", s.UpdatePassword, sessionRequired)
	authRoutes.GET("/session", s.Session, sessionRequired)
	authRoutes.POST("/refresh", s.Refresh, sessionRequired)
}

func (s *Server) device(c echo.Context) session.Device {
	agent := useragent.Parse(c.Request().UserAgent())

	ipAddress := c.Request().RemoteAddr
	if c.Request().Header.Get("X-Forwarded-For") != "" {
		ipAddress = c.Request().Header.Get("X-Forwarded-For")
	}

	return session.Device{
		Browser:   agent.Name,
		OS:        agent.OS,
		IPAddress: ipAddress,
		Model:     agent.Device,
	}
}

type credentialsReq struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,min=6"`
}

type sessionResp struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (s *Server) SignIn(c echo.Context) error {
	var b credentialsReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	sess, err := s.authService.SignIn(c.Request().Context(), s.uow(), b.Email, b.Password, s.device(c))
	if err != nil {
		return DomainError(c, err)
	}

	s.setSessionCookie(c, sess.SessionID)
	return c.JSON(http.StatusOK, &sessionResp{UserID: sess.UserID, Email: sess.Email})
}

func (s *Server) SignUp(c echo.Context) error {
	var b credentialsReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	sess, err := s.authService.SignUp(c.Request().Context(), s.uow(), b.Email, b.Password, s.device(c))
	if err != nil {
		return DomainError(c, err)
	}

	s.setSessionCookie(c, sess.SessionID)
	return c.JSON(http.StatusCreated, &sessionResp{UserID: sess.UserID, Email: sess.Email})
}

// SignOut closes the gateway session and clears the cookie. Local state is
// cleared even when the hosted revocation fails, so the user always gets out.
func (s *Server) SignOut(c echo.Context) error {
	sess := c.Get(KeyCurrentSession).(*session.Session)

	if err := s.authService.SignOut(c.Request().Context(), s.uow(), sess.SessionID); err != nil {
		s.clearSessionCookie(c)
		return DomainError(c, err)
	}
	s.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

type resetPasswordReq struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

func (s *Server) ResetPassword(c echo.Context) error {
	var b resetPasswordReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	if err := s.authService.RequestPasswordReset(c.Request().Context(), b.Email); err != nil {
		return DomainError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

type updatePasswordReq struct {
	Password string `json:"password" form:"password" validate:"required,min=6"`
}

func (s *Server) UpdatePassword(c echo.Context) error {
	var b updatePasswordReq
	if err := s.bind(c, &b); err != nil {
		return JsonError(c, http.StatusBadRequest, err)
	}

	sess := c.Get(KeyCurrentSession).(*session.Session)
	if err := s.authService.UpdatePassword(c.Request().Context(), s.uow(), sess.SessionID, b.Password); err != nil {
		return DomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) Session(c echo.Context) error {
	sess := c.Get(KeyCurrentSession).(*session.Session)
	return c.JSON(http.StatusOK, &sessionResp{UserID: sess.UserID, Email: sess.Email})
}

// Refresh force-refreshes the hosted token pair, the manual retry path after
// a failed data load. A rejected refresh grant signs the user out.
func (s *Server) Refresh(c echo.Context) error {
	sess := c.Get(KeyCurrentSession).(*session.Session)

	refreshed, err := s.authService.RefreshSession(c.Request().Context(), s.uow(), sess.SessionID)
	if err != nil {
		s.clearSessionCookie(c)
		return DomainError(c, err)
	}
	return c.JSON(http.StatusOK, &sessionResp{UserID: refreshed.UserID, Email: refreshed.Email})
}
