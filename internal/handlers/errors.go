package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/campus-notify/backend/internal/analytics"
	"github.com/anonto42/campus-notify/backend/internal/authz"
	"github.com/anonto42/campus-notify/backend/internal/dispatch"
	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/labstack/echo/v4"
)

// toHTTPError maps domain errors onto HTTP status codes. Server-side failures
// never leak their cause to the client.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, targeting.ErrInvalidTargetSpec), errors.Is(err, dispatch.ErrInvalidNotification):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrForbiddenTarget), errors.Is(err, analytics.ErrNotSender):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, repositories.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	case errors.Is(err, repositories.ErrTokenRevoked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, targeting.ErrNoHoD), errors.Is(err, targeting.ErrAmbiguousHoD):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, targeting.ErrResolutionFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "Could not resolve recipients")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

func currentIdentity(c echo.Context) (*middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}
