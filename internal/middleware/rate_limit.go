package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit is a fixed-window limiter keyed by caller (user id, else client IP).
// Redis errors let the request through.
func RateLimit(client redis.Cmdable, prefix string, limit int64, window time.Duration, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if client == nil || limit <= 0 {
				return next(c)
			}

			caller := c.RealIP()
			if id, ok := IdentityFrom(c); ok {
				caller = id.UserID
			}
			key := fmt.Sprintf("ratelimit:%s:%s", prefix, caller)

			// INCR and EXPIRE NX run in one transaction so a counter can never
			// be left without a window.
			ctx := c.Request().Context()
			var incr *redis.IntCmd
			_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(ctx, key)
				pipe.ExpireNX(ctx, key, window)
				return nil
			})
			if err != nil {
				logger.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			count := incr.Val()

			if count > limit {
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
			}
			return next(c)
		}
	}
}
