package handlers

import (
	"net/http"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler exchanges Firebase ID tokens for portal access tokens
type AuthHandler struct {
	verifier middleware.TokenVerifier
	users    middleware.UserLookup
	secret   string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(verifier middleware.TokenVerifier, users middleware.UserLookup, secret string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		users:    users,
		secret:   secret,
		ttl:      ttl,
		logger:   logger.Named("auth"),
	}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/firebase-login", h.FirebaseLogin)
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin verifies a Firebase ID token and issues a portal JWT carrying
// the caller's directory role and department.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := h.verifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}

	user, err := h.users.GetUserByFirebaseUID(ctx, token.UID)
	if err != nil {
		h.logger.Info("login for unknown firebase account", zap.String("firebase_uid", token.UID), zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "User not registered")
	}
	if !user.IsActive {
		return echo.NewHTTPError(http.StatusForbidden, "User is inactive")
	}

	identity := middleware.Identity{
		UserID:       user.ID,
		Name:         user.Name,
		Role:         user.Role,
		DepartmentID: user.DepartmentID,
	}
	accessToken, err := middleware.IssueToken(h.secret, identity, h.ttl)
	if err != nil {
		h.logger.Error("failed to sign access token", zap.String("user_id", user.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, echo.Map{"token": accessToken, "user": identity})
}
