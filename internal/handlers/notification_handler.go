package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/analytics"
	"github.com/anonto42/campus-notify/backend/internal/authz"
	"github.com/anonto42/campus-notify/backend/internal/dispatch"
	"github.com/anonto42/campus-notify/backend/internal/middleware"
	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/readstate"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// clickTimeout bounds a click beacon recorded after the response is sent
const clickTimeout = 5 * time.Second

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	dispatcher    *dispatch.Dispatcher
	tracker       *readstate.Tracker
	aggregator    *analytics.Aggregator
	notifications repositories.NotificationRepository
	tokens        repositories.DeviceTokenRepository
	policy        *authz.Policy
	logger        *zap.Logger

	// background runs work that must outlive the request
	background func(fn func())
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(
	dispatcher *dispatch.Dispatcher,
	tracker *readstate.Tracker,
	aggregator *analytics.Aggregator,
	notifications repositories.NotificationRepository,
	tokens repositories.DeviceTokenRepository,
	policy *authz.Policy,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		dispatcher:    dispatcher,
		tracker:       tracker,
		aggregator:    aggregator,
		notifications: notifications,
		tokens:        tokens,
		policy:        policy,
		logger:        logger.Named("handlers"),
		background:    func(fn func()) { go fn() },
	}
}

// RouteMiddleware is the per-route middleware the notification routes need
type RouteMiddleware struct {
	Auth         echo.MiddlewareFunc
	OptionalAuth echo.MiddlewareFunc
	SendLimit    echo.MiddlewareFunc
	ClickLimit   echo.MiddlewareFunc
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group, mw RouteMiddleware) {
	g.POST("/notifications", h.SendNotification, mw.Auth, mw.SendLimit)
	g.GET("/notifications", h.GetNotifications, mw.Auth)
	g.GET("/notifications/sent", h.GetSentNotifications, mw.Auth)
	g.GET("/notifications/unread-count", h.GetUnreadCount, mw.Auth)
	g.PUT("/notifications/read-all", h.MarkAllAsRead, mw.Auth)
	g.PUT("/notifications/:id/read", h.MarkAsRead, mw.Auth)
	g.GET("/notifications/:id/analytics", h.GetAnalytics, mw.Auth)
	g.POST("/notifications/track-click", h.TrackClick, mw.OptionalAuth, mw.ClickLimit)
	g.POST("/notifications/fcm-token", h.RegisterDeviceToken, mw.Auth)
}

type sendNotificationRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Message     string `json:"message" validate:"required,max=2000"`
	TargetType  string `json:"targetType" validate:"required,target_type"`
	TargetValue string `json:"targetValue"`
	Priority    string `json:"priority" validate:"priority"`
	Metadata    struct {
		EnablePush *bool `json:"enablePush"`
	} `json:"metadata"`
}

// SendNotification fans a notification out to the resolved audience
func (h *NotificationHandler) SendNotification(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req sendNotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	spec, err := targeting.Parse(req.TargetType, req.TargetValue)
	if err != nil {
		return toHTTPError(err)
	}
	if err := h.policy.Authorize(identity.Role, spec.Type()); err != nil {
		return toHTTPError(err)
	}

	enablePush := true
	if req.Metadata.EnablePush != nil {
		enablePush = *req.Metadata.EnablePush
	}

	result, err := h.dispatcher.Send(c.Request().Context(), dispatch.SendRequest{
		Sender:     identity.Sender(),
		Title:      req.Title,
		Message:    req.Message,
		Priority:   models.Priority(req.Priority),
		Target:     spec,
		EnablePush: enablePush,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": result})
}

// GetNotifications returns the caller's received notifications, newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	inbox, err := h.tracker.Inbox(c.Request().Context(), identity.UserID, pagination(c))
	if err != nil {
		h.logger.Error("failed to load inbox", zap.String("user_id", identity.UserID), zap.Error(err))
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": inbox.Notifications,
			"unreadCount":   inbox.UnreadCount,
		},
		"meta": echo.Map{
			"currentPage":     inbox.Page,
			"itemsPerPage":    inbox.Limit,
			"hasNextPage":     inbox.HasMore,
			"hasPreviousPage": inbox.Page > 1,
		},
	})
}

// SentNotification is a sent notification with its delivery roll-up
type SentNotification struct {
	models.Notification
	Metadata models.NotificationMetadata `json:"metadata"`
}

// GetSentNotifications returns notifications the caller sent
func (h *NotificationHandler) GetSentNotifications(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	page := pagination(c)
	sent, err := h.notifications.GetSent(c.Request().Context(), identity.UserID, page)
	if err != nil {
		h.logger.Error("failed to load sent notifications", zap.String("user_id", identity.UserID), zap.Error(err))
		return toHTTPError(err)
	}

	views := make([]SentNotification, len(sent))
	for i := range sent {
		views[i] = SentNotification{Notification: sent[i], Metadata: sent[i].Metadata()}
	}

	page = page.Normalize()
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"notifications": views},
		"meta": echo.Map{
			"currentPage":     page.Page,
			"itemsPerPage":    page.Limit,
			"hasNextPage":     len(views) == page.Limit,
			"hasPreviousPage": page.Page > 1,
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	count, err := h.tracker.UnreadCount(c.Request().Context(), identity.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": count}})
}

// MarkAsRead marks a notification as read for the caller
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	changed, err := h.tracker.MarkRead(c.Request().Context(), c.Param("id"), identity.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated": changed}})
}

// MarkAllAsRead marks every currently unread notification as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	marked, err := h.tracker.MarkAllRead(c.Request().Context(), identity.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated": marked}})
}

type trackClickRequest struct {
	NotificationID string `json:"notificationId" validate:"required"`
}

// TrackClick accepts a click beacon and records it after responding
func (h *NotificationHandler) TrackClick(c echo.Context) error {
	var req trackClickRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var userID string
	if identity, ok := middleware.IdentityFrom(c); ok {
		userID = identity.UserID
	}

	ctx := context.WithoutCancel(c.Request().Context())
	h.background(func() {
		ctx, cancel := context.WithTimeout(ctx, clickTimeout)
		defer cancel()
		if err := h.aggregator.TrackClick(ctx, req.NotificationID, userID); err != nil {
			h.logger.Warn("failed to track click", zap.String("notification_id", req.NotificationID), zap.Error(err))
		}
	})

	return c.JSON(http.StatusAccepted, echo.Map{"success": true})
}

type registerTokenRequest struct {
	FCMToken string `json:"fcmToken" validate:"required,max=512"`
	Platform string `json:"platform" validate:"platform"`
}

// RegisterDeviceToken stores or refreshes the caller's push token
func (h *NotificationHandler) RegisterDeviceToken(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req registerTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Platform == "" {
		req.Platform = models.PlatformAndroid
	}

	token, err := h.tokens.Register(c.Request().Context(), identity.UserID, req.FCMToken, req.Platform)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": token})
}

// GetAnalytics returns the delivery and click summary to the sender
func (h *NotificationHandler) GetAnalytics(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	summary, err := h.aggregator.Summary(c.Request().Context(), c.Param("id"), identity.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": summary})
}

func pagination(c echo.Context) repositories.Pagination {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return repositories.Pagination{Page: page, Limit: limit}.Normalize()
}
