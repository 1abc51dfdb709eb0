package middleware

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TokenVerifier is the part of *auth.Client used to check Firebase ID tokens
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserLookup maps a Firebase account to a portal user
type UserLookup interface {
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
}

// FirebaseAuth verifies Firebase ID tokens and takes role and department from
// the directory, so a stale custom claim can never widen a sender's reach.
func FirebaseAuth(verifier TokenVerifier, users UserLookup, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			token, err := verifier.VerifyIDToken(ctx, idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}

			user, err := users.GetUserByFirebaseUID(ctx, token.UID)
			if err != nil {
				logger.Warn("firebase account has no portal user", zap.String("firebase_uid", token.UID), zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "User not registered")
			}
			if !user.IsActive {
				return echo.NewHTTPError(http.StatusForbidden, "User is inactive")
			}

			SetIdentity(c, &Identity{
				UserID:       user.ID,
				Name:         user.Name,
				Role:         user.Role,
				DepartmentID: user.DepartmentID,
			})
			return next(c)
		}
	}
}
