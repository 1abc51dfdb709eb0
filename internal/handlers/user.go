package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// UserDirectory reads portal users by id
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// UserHandler serves the caller's directory profile
type UserHandler struct {
	users UserDirectory
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group, auth echo.MiddlewareFunc) {
	g.GET("/profile", h.GetProfile, auth)
}

// GetProfile returns the authenticated user's directory record, which decides
// the audiences they fall into.
func (h *UserHandler) GetProfile(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUserByID(c.Request().Context(), identity.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "User profile not found")
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": user})
}
