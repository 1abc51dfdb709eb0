package models

import "time"

// Priority is the urgency a sender attaches to a notification
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a single send by one sender to a resolved audience (PostgreSQL)
type Notification struct {
	ID           string   `json:"id" gorm:"primaryKey;size:36"`
	Title        string   `json:"title" gorm:"size:200;not null"`
	Message      string   `json:"message" gorm:"size:2000;not null"`
	Priority     Priority `json:"priority" gorm:"size:10;not null;default:normal"`
	SenderID     string   `json:"senderId" gorm:"size:64;not null;index"`
	SenderName   string   `json:"senderName" gorm:"size:120"`
	SenderRole   string   `json:"senderRole" gorm:"size:30"`
	DepartmentID string   `json:"departmentId" gorm:"size:64;index"`
	TargetType   string   `json:"targetType" gorm:"size:30;not null"`
	TargetValue  string   `json:"targetValue" gorm:"size:160"`
	// Snapshot of the fan-out size, written once at creation
	TotalRecipients int  `json:"totalRecipients" gorm:"<-:create;not null"`
	PushEnabled     bool `json:"-" gorm:"not null;default:false"`
	// Push and click counters, only ever incremented
	PushSuccessCount int       `json:"-" gorm:"not null;default:0"`
	PushFailureCount int       `json:"-" gorm:"not null;default:0"`
	Clicks           int       `json:"clicks" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"createdAt" gorm:"index"`
}

// PushStats mirrors the pushNotifications block of the notification metadata
type PushStats struct {
	Enabled      bool `json:"enabled"`
	SuccessCount int  `json:"successCount"`
	FailureCount int  `json:"failureCount"`
}

// NotificationMetadata is the delivery and click roll-up exposed to senders
type NotificationMetadata struct {
	PushNotifications PushStats `json:"pushNotifications"`
	Clicks            int       `json:"clicks"`
}

// Metadata builds the roll-up view from the counter columns
func (n *Notification) Metadata() NotificationMetadata {
	return NotificationMetadata{
		PushNotifications: PushStats{
			Enabled:      n.PushEnabled,
			SuccessCount: n.PushSuccessCount,
			FailureCount: n.PushFailureCount,
		},
		Clicks: n.Clicks,
	}
}

// RecipientDelivery is the per-recipient delivery, read and click state of a notification.
// Delivery fields are written by the push pipeline; read/click fields by the read-state
// tracker and click aggregator.
type RecipientDelivery struct {
	ID             uint       `json:"-" gorm:"primaryKey"`
	NotificationID string     `json:"notificationId" gorm:"size:36;not null;uniqueIndex:idx_delivery_recipient"`
	UserID         string     `json:"userId" gorm:"size:64;not null;uniqueIndex:idx_delivery_recipient;index:idx_delivery_inbox"`
	IsDelivered    bool       `json:"delivered" gorm:"not null;default:false"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	IsRead         bool       `json:"read" gorm:"not null;default:false;index:idx_delivery_inbox"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	IsClicked      bool       `json:"clicked" gorm:"not null;default:false"`
	ClickedAt      *time.Time `json:"clickedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ReceivedNotification is a notification joined with the caller's delivery row
type ReceivedNotification struct {
	Notification
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	IsClicked bool       `json:"isClicked"`
}

// DeliveryStats aggregates the delivery rows of one notification
type DeliveryStats struct {
	Recipients int64 `json:"recipients"`
	Delivered  int64 `json:"delivered"`
	Read       int64 `json:"read"`
	Clicked    int64 `json:"clicked"`
}
