// Package analytics rolls delivery and click events up into per-notification counters.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"go.uber.org/zap"
)

// ErrNotSender is returned when someone other than the sender asks for a summary.
var ErrNotSender = errors.New("only the sender can view notification analytics")

// recentAttemptLimit bounds the push attempt log included in a summary
const recentAttemptLimit = 20

// Summary is the sender-facing roll-up of one notification.
type Summary struct {
	NotificationID    string               `json:"notificationId"`
	TotalRecipients   int                  `json:"totalRecipients"`
	Delivered         int64                `json:"delivered"`
	Read              int64                `json:"read"`
	ClickedRecipients int64                `json:"clickedRecipients"`
	Clicks            int                  `json:"clicks"`
	ReadRate          float64              `json:"readRate"`
	PushNotifications models.PushStats     `json:"pushNotifications"`
	RecentAttempts    []models.PushAttempt `json:"recentAttempts,omitempty"`
}

// Aggregator records clicks and push outcomes.
type Aggregator struct {
	store    repositories.NotificationRepository
	activity repositories.ActivityLog
	logger   *zap.Logger
}

// NewAggregator creates an Aggregator. activity may be nil.
func NewAggregator(store repositories.NotificationRepository, activity repositories.ActivityLog, logger *zap.Logger) *Aggregator {
	if activity == nil {
		activity = repositories.NopActivityLog{}
	}
	return &Aggregator{store: store, activity: activity, logger: logger.Named("analytics")}
}

// TrackClick counts one raw click. When userID belongs to a recipient, that
// recipient's clicked flag is set once; repeat clicks only move the raw counter.
func (a *Aggregator) TrackClick(ctx context.Context, notificationID, userID string) error {
	if err := a.store.IncrementClicks(ctx, notificationID); err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}

	if userID != "" {
		_, err := a.store.MarkClicked(ctx, notificationID, userID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			a.logger.Debug("click from non-recipient", zap.String("notification_id", notificationID), zap.String("user_id", userID))
		case err != nil:
			return fmt.Errorf("mark clicked: %w", err)
		}
	}

	if err := a.activity.RecordClick(ctx, &models.ClickEvent{NotificationID: notificationID, UserID: userID}); err != nil {
		a.logger.Warn("failed to record click event", zap.String("notification_id", notificationID), zap.Error(err))
	}
	return nil
}

// RecordPushOutcome applies a terminal push result. A delivery flips the
// recipient's delivered flag and bumps successCount; a failure bumps failureCount.
func (a *Aggregator) RecordPushOutcome(ctx context.Context, notificationID, userID string, delivered bool) error {
	if !delivered {
		return a.store.IncrementPushCounters(ctx, notificationID, 0, 1)
	}

	if _, err := a.store.MarkDelivered(ctx, notificationID, userID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return a.store.IncrementPushCounters(ctx, notificationID, 1, 0)
}

// Summary builds the analytics view for the notification's sender.
func (a *Aggregator) Summary(ctx context.Context, notificationID, requesterID string) (*Summary, error) {
	n, err := a.store.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.SenderID != requesterID {
		return nil, ErrNotSender
	}

	stats, err := a.store.DeliveryStats(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	meta := n.Metadata()
	summary := &Summary{
		NotificationID:    n.ID,
		TotalRecipients:   n.TotalRecipients,
		Delivered:         stats.Delivered,
		Read:              stats.Read,
		ClickedRecipients: stats.Clicked,
		Clicks:            meta.Clicks,
		PushNotifications: meta.PushNotifications,
	}
	if n.TotalRecipients > 0 {
		summary.ReadRate = float64(stats.Read) / float64(n.TotalRecipients)
	}

	attempts, err := a.activity.PushAttempts(ctx, notificationID, recentAttemptLimit)
	if err != nil {
		a.logger.Warn("failed to load push attempts", zap.String("notification_id", notificationID), zap.Error(err))
	}
	summary.RecentAttempts = attempts
	return summary, nil
}
