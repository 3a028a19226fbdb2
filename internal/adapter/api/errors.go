package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ashmarin/weighttrack/internal/adapter/backend"
	"github.com/ashmarin/weighttrack/internal/app/authapp"
	"github.com/ashmarin/weighttrack/internal/app/syncer"
	"github.com/ashmarin/weighttrack/internal/domain/entry"
	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/labstack/echo/v4"
)

type JsonErrorModel struct {
	Message string `json:"message"`
	// ConfigError routes the client to the diagnostic view instead of a
	// generic failure banner.
	ConfigError bool `json:"config_error,omitempty"`
	// ConfirmRequired marks a date collision awaiting explicit user
	// confirmation before the merge proceeds.
	ConfirmRequired bool `json:"confirm_required,omitempty"`
}

func JsonError(c echo.Context, status int, content any) error {
	data := &JsonErrorModel{Message: fmt.Sprintf("%v", content)}
	return c.JSON(status, data)
}

// DomainError maps the known sentinel errors to HTTP responses. Handlers
// call it after handling their endpoint-specific cases.
func DomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, backend.ErrConfig):
		return c.JSON(http.StatusServiceUnavailable, &JsonErrorModel{
			Message:     err.Error(),
			ConfigError: true,
		})
	case errors.Is(err, backend.ErrInvalidCredentials):
		return JsonError(c, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, backend.ErrUserExists):
		return JsonError(c, http.StatusBadRequest, "user already exists")
	case errors.Is(err, backend.ErrUnauthorized),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionClosed):
		return JsonError(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, authapp.ErrWeakPassword),
		errors.Is(err, entry.ErrWeightOutOfRange),
		errors.Is(err, entry.ErrDateInFuture):
		return JsonError(c, http.StatusBadRequest, err)
	case errors.Is(err, entry.ErrEntryNotFound):
		return JsonError(c, http.StatusNotFound, "entry not found")
	case errors.Is(err, entry.ErrDateConflict):
		return JsonError(c, http.StatusConflict, err)
	case errors.Is(err, syncer.ErrDateCollision):
		return c.JSON(http.StatusConflict, &JsonErrorModel{
			Message:         err.Error(),
			ConfirmRequired: true,
		})
	}
	return JsonError(c, http.StatusInternalServerError, err)
}
