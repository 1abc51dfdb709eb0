package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a notification or delivery row does not exist
var ErrNotFound = errors.New("not found")

// deliveryBatchSize bounds the rows per INSERT when fanning out
const deliveryBatchSize = 500

// Pagination is a 1-based page window
type Pagination struct {
	Page  int
	Limit int
}

// Normalize clamps the window to sane bounds
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.Limit
}

// NotificationRepository owns notifications and their per-recipient delivery rows
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification, recipientIDs []string, awaitingPush map[string]bool) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	GetReceived(ctx context.Context, userID string, page Pagination) ([]models.ReceivedNotification, error)
	GetSent(ctx context.Context, senderID string, page Pagination) ([]models.Notification, error)
	Deliveries(ctx context.Context, notificationID string) ([]models.RecipientDelivery, error)
	DeliveryStats(ctx context.Context, notificationID string) (*models.DeliveryStats, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, notificationID, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkDelivered(ctx context.Context, notificationID, userID string) (bool, error)
	MarkClicked(ctx context.Context, notificationID, userID string) (bool, error)
	IncrementClicks(ctx context.Context, notificationID string) error
	IncrementPushCounters(ctx context.Context, notificationID string, success, failure int) error
}

type postgresNotificationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresNotificationRepository creates a NotificationRepository over GORM
func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db, now: time.Now}
}

// Create writes the notification and one delivery row per distinct recipient in a
// single transaction. Recipients in awaitingPush start undelivered; everyone else
// is delivered in-app immediately.
func (r *postgresNotificationRepository) Create(ctx context.Context, n *models.Notification, recipientIDs []string, awaitingPush map[string]bool) error {
	recipients := uniqueIDs(recipientIDs)
	n.TotalRecipients = len(recipients)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if len(recipients) == 0 {
			return nil
		}

		deliveries := make([]models.RecipientDelivery, 0, len(recipients))
		for _, userID := range recipients {
			d := models.RecipientDelivery{
				NotificationID: n.ID,
				UserID:         userID,
				CreatedAt:      n.CreatedAt,
			}
			if !awaitingPush[userID] {
				d.IsDelivered = true
				d.DeliveredAt = &n.CreatedAt
			}
			deliveries = append(deliveries, d)
		}
		return tx.CreateInBatches(&deliveries, deliveryBatchSize).Error
	})
}

func (r *postgresNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *postgresNotificationRepository) GetReceived(ctx context.Context, userID string, page Pagination) ([]models.ReceivedNotification, error) {
	page = page.Normalize()
	var received []models.ReceivedNotification
	err := r.db.WithContext(ctx).
		Table("recipient_deliveries AS d").
		Select("n.*, d.is_read, d.read_at, d.is_clicked").
		Joins("JOIN notifications AS n ON n.id = d.notification_id").
		Where("d.user_id = ?", userID).
		Order("n.created_at DESC").Order("d.id DESC").
		Offset(page.offset()).Limit(page.Limit).
		Scan(&received).Error
	return received, err
}

func (r *postgresNotificationRepository) GetSent(ctx context.Context, senderID string, page Pagination) ([]models.Notification, error) {
	page = page.Normalize()
	var sent []models.Notification
	err := r.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Offset(page.offset()).Limit(page.Limit).
		Find(&sent).Error
	return sent, err
}

func (r *postgresNotificationRepository) Deliveries(ctx context.Context, notificationID string) ([]models.RecipientDelivery, error) {
	var deliveries []models.RecipientDelivery
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("id ASC").
		Find(&deliveries).Error
	return deliveries, err
}

func (r *postgresNotificationRepository) DeliveryStats(ctx context.Context, notificationID string) (*models.DeliveryStats, error) {
	var stats models.DeliveryStats
	err := r.db.WithContext(ctx).
		Model(&models.RecipientDelivery{}).
		Select(`COUNT(*) AS recipients,
			COALESCE(SUM(CASE WHEN is_delivered THEN 1 ELSE 0 END), 0) AS delivered,
			COALESCE(SUM(CASE WHEN is_read THEN 1 ELSE 0 END), 0) AS read,
			COALESCE(SUM(CASE WHEN is_clicked THEN 1 ELSE 0 END), 0) AS clicked`).
		Where("notification_id = ?", notificationID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *postgresNotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RecipientDelivery{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead flips the caller's row to read. It reports false when the row was
// already read, and ErrNotFound when the user is not a recipient.
func (r *postgresNotificationRepository) MarkRead(ctx context.Context, notificationID, userID string) (bool, error) {
	return r.flip(ctx, notificationID, userID, "is_read", "read_at")
}

// readAllChunk bounds the id list of one read-all update
const readAllChunk = 1000

// MarkAllRead marks the rows that are unread when the call starts. Rows created
// after the snapshot are left untouched.
func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.RecipientDelivery{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Chunks commit one by one; a retry after a failure only touches what is
	// still unread.
	readAt := r.now()
	var marked int64
	for start := 0; start < len(ids); start += readAllChunk {
		end := min(start+readAllChunk, len(ids))
		res := r.db.WithContext(ctx).
			Model(&models.RecipientDelivery{}).
			Where("id IN ? AND is_read = ?", ids[start:end], false).
			Updates(map[string]any{"is_read": true, "read_at": readAt})
		if res.Error != nil {
			return marked, res.Error
		}
		marked += res.RowsAffected
	}
	return marked, nil
}

func (r *postgresNotificationRepository) MarkDelivered(ctx context.Context, notificationID, userID string) (bool, error) {
	return r.flip(ctx, notificationID, userID, "is_delivered", "delivered_at")
}

func (r *postgresNotificationRepository) MarkClicked(ctx context.Context, notificationID, userID string) (bool, error) {
	return r.flip(ctx, notificationID, userID, "is_clicked", "clicked_at")
}

// flip sets a monotonic flag and its timestamp once; repeat calls are no-ops.
func (r *postgresNotificationRepository) flip(ctx context.Context, notificationID, userID, flag, stamp string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RecipientDelivery{}).
		Where("notification_id = ? AND user_id = ? AND "+flag+" = ?", notificationID, userID, false).
		Updates(map[string]any{flag: true, stamp: r.now()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RecipientDelivery{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *postgresNotificationRepository) IncrementClicks(ctx context.Context, notificationID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", notificationID).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresNotificationRepository) IncrementPushCounters(ctx context.Context, notificationID string, success, failure int) error {
	if success == 0 && failure == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", notificationID).
		UpdateColumns(map[string]any{
			"push_success_count": gorm.Expr("push_success_count + ?", success),
			"push_failure_count": gorm.Expr("push_failure_count + ?", failure),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
