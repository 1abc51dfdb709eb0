package models

import "time"

// Supported device platforms
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// DeviceToken is a push-capable app installation registered by a user (PostgreSQL).
// Rows are never deleted; a rejected token is kept with Valid=false.
type DeviceToken struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"userId" gorm:"size:64;not null;uniqueIndex:idx_device_user_token;index"`
	Token        string     `json:"-" gorm:"size:512;not null;uniqueIndex:idx_device_user_token;index:idx_device_token"`
	Platform     string     `json:"platform" gorm:"size:16;not null;default:android"`
	Valid        bool       `json:"valid" gorm:"not null"`
	RegisteredAt time.Time  `json:"registeredAt"`
	LastSeenAt   time.Time  `json:"lastSeenAt"`
	InvalidAt    *time.Time `json:"invalidAt,omitempty"`
}
