package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/handlers"
	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/anonto42/campus-notify/backend/pkg/config"
	"github.com/anonto42/campus-notify/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// rateWindow is the fixed window both request limiters count in
const rateWindow = time.Minute

// Handlers are the HTTP handlers mounted under /api/v1. Auth is nil when
// Firebase is not configured.
type Handlers struct {
	Auth         *handlers.AuthHandler
	User         *handlers.UserHandler
	Notification *handlers.NotificationHandler
}

// Authenticators pick the request authentication for the configured provider
type Authenticators struct {
	Required echo.MiddlewareFunc
	Optional echo.MiddlewareFunc
}

// NewAuthenticators builds JWT auth, or Firebase ID token auth when
// AUTH_PROVIDER=firebase.
func NewAuthenticators(cfg *config.Config, verifier middleware.TokenVerifier, users middleware.UserLookup, logger *zap.Logger) (Authenticators, error) {
	switch cfg.AuthProvider {
	case "firebase":
		if verifier == nil {
			return Authenticators{}, errors.New("AUTH_PROVIDER=firebase requires FIREBASE_CREDENTIALS_PATH")
		}
		auth := middleware.FirebaseAuth(verifier, users, logger.Named("auth"))
		return Authenticators{Required: auth, Optional: middleware.Optional(auth)}, nil
	case "jwt", "":
		return Authenticators{
			Required: middleware.JWTAuth(cfg.JWTSecret),
			Optional: middleware.OptionalJWTAuth(cfg.JWTSecret),
		}, nil
	default:
		return Authenticators{}, fmt.Errorf("unknown AUTH_PROVIDER %q", cfg.AuthProvider)
	}
}

// NewEchoServer creates the Echo instance and ties it to the fx lifecycle
func NewEchoServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, logger)

	addr := ":" + cfg.Port
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Failed to start the server", zap.Error(err))
				}
			}()
			logger.Info("Server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down the server")
			return e.Shutdown(ctx)
		},
	})
	return e
}

// SetupRoutes migrates the schema and mounts every route.
// A nil redis client disables rate limiting.
func SetupRoutes(e *echo.Echo, db *gorm.DB, rdb *redis.Client, cfg *config.Config, h Handlers, auth Authenticators, logger *zap.Logger) error {
	if err := repositories.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	logger.Info("PostgreSQL auto-migrations completed")

	e.GET("/health", handlers.HealthCheck(db))

	api := e.Group("/api/v1")

	if h.Auth != nil {
		h.Auth.RegisterAuthRoutes(api.Group("/auth"))
		logger.Info("Auth routes configured")
	}

	h.User.RegisterProfileRoutes(api, auth.Required)

	sendLimit, clickLimit := passthrough, passthrough
	if rdb != nil {
		sendLimit = middleware.RateLimit(rdb, "send", cfg.SendRateLimit, rateWindow, logger)
		clickLimit = middleware.RateLimit(rdb, "click", cfg.ClickRateLimit, rateWindow, logger)
	} else {
		logger.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	h.Notification.RegisterNotificationRoutes(api, handlers.RouteMiddleware{
		Auth:         auth.Required,
		OptionalAuth: auth.Optional,
		SendLimit:    sendLimit,
		ClickLimit:   clickLimit,
	})
	logger.Info("Notification routes configured")
	return nil
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
