// Package readstate owns the server-side read flags of recipient deliveries.
// Server state is authoritative; clients reconcile against it with readcache.
package readstate

import (
	"context"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"go.uber.org/zap"
)

// Inbox is one page of a user's received notifications.
type Inbox struct {
	Notifications []models.ReceivedNotification `json:"notifications"`
	UnreadCount   int64                         `json:"unreadCount"`
	Page          int                           `json:"page"`
	Limit         int                           `json:"limit"`
	HasMore       bool                          `json:"hasMore"`
}

// Tracker serves inbox reads and read-state mutations.
type Tracker struct {
	store  repositories.NotificationRepository
	logger *zap.Logger
}

// NewTracker creates a Tracker
func NewTracker(store repositories.NotificationRepository, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, logger: logger.Named("readstate")}
}

// Inbox returns a page of received notifications, newest first, each carrying
// the caller's read state.
func (t *Tracker) Inbox(ctx context.Context, userID string, page repositories.Pagination) (*Inbox, error) {
	page = page.Normalize()
	received, err := t.store.GetReceived(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	unread, err := t.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if received == nil {
		received = []models.ReceivedNotification{}
	}
	return &Inbox{
		Notifications: received,
		UnreadCount:   unread,
		Page:          page.Page,
		Limit:         page.Limit,
		HasMore:       len(received) == page.Limit,
	}, nil
}

// MarkRead marks one notification read for userID. Repeat calls succeed
// without moving readAt. Returns repositories.ErrNotFound when userID is not a
// recipient.
func (t *Tracker) MarkRead(ctx context.Context, notificationID, userID string) (bool, error) {
	changed, err := t.store.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	if changed {
		t.logger.Debug("notification read", zap.String("notification_id", notificationID), zap.String("user_id", userID))
	}
	return changed, nil
}

// MarkAllRead marks everything unread at call time. Notifications arriving
// during the call stay unread.
func (t *Tracker) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	marked, err := t.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	t.logger.Debug("marked all read", zap.String("user_id", userID), zap.Int64("count", marked))
	return marked, nil
}

func (t *Tracker) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return t.store.UnreadCount(ctx, userID)
}
