package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTokenRevoked is returned when a client re-registers a token the push
// gateway has already rejected
var ErrTokenRevoked = errors.New("device token has been invalidated")

// DeviceTokenRepository is the registry of push-capable devices per user
type DeviceTokenRepository interface {
	Register(ctx context.Context, userID, token, platform string) (*models.DeviceToken, error)
	Invalidate(ctx context.Context, token string) error
	IsValid(ctx context.Context, token string) (bool, error)
	ActiveTokensFor(ctx context.Context, userID string) ([]models.DeviceToken, error)
	ActiveTokensForUsers(ctx context.Context, userIDs []string) (map[string][]models.DeviceToken, error)
}

type postgresDeviceTokenRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresDeviceTokenRepository creates a DeviceTokenRepository over GORM
func NewPostgresDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &postgresDeviceTokenRepository{db: db, now: time.Now}
}

// Register upserts by (user, token). An existing row only has its platform and
// lastSeenAt refreshed; its validity is never restored.
func (r *postgresDeviceTokenRepository) Register(ctx context.Context, userID, token, platform string) (*models.DeviceToken, error) {
	now := r.now()
	row := models.DeviceToken{
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		Valid:        true,
		RegisteredAt: now,
		LastSeenAt:   now,
	}

	db := r.db.WithContext(ctx)
	// A token value the gateway rejected stays dead for every user.
	var revoked int64
	if err := db.Model(&models.DeviceToken{}).
		Where("token = ? AND valid = ?", token, false).
		Count(&revoked).Error; err != nil {
		return nil, err
	}
	if revoked > 0 {
		row.Valid = false
		row.InvalidAt = &now
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"platform":     platform,
			"last_seen_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	var stored models.DeviceToken
	if err := db.Where("user_id = ? AND token = ?", userID, token).First(&stored).Error; err != nil {
		return nil, err
	}
	if !stored.Valid {
		return &stored, ErrTokenRevoked
	}
	return &stored, nil
}

// Invalidate marks every row carrying token as invalid. Rows are kept for audit.
func (r *postgresDeviceTokenRepository) Invalidate(ctx context.Context, token string) error {
	now := r.now()
	return r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("token = ? AND valid = ?", token, true).
		Updates(map[string]any{"valid": false, "invalid_at": now}).Error
}

func (r *postgresDeviceTokenRepository) IsValid(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("token = ? AND valid = ?", token, true).
		Count(&count).Error
	return count > 0, err
}

func (r *postgresDeviceTokenRepository) ActiveTokensFor(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND valid = ?", userID, true).
		Order("last_seen_at DESC").
		Find(&tokens).Error
	return tokens, err
}

// tokenLookupChunk keeps IN lists well under the driver parameter limit
const tokenLookupChunk = 1000

// ActiveTokensForUsers returns the valid tokens of each user that has any.
func (r *postgresDeviceTokenRepository) ActiveTokensForUsers(ctx context.Context, userIDs []string) (map[string][]models.DeviceToken, error) {
	byUser := make(map[string][]models.DeviceToken)
	if len(userIDs) == 0 {
		return byUser, nil
	}

	for start := 0; start < len(userIDs); start += tokenLookupChunk {
		end := min(start+tokenLookupChunk, len(userIDs))
		var tokens []models.DeviceToken
		err := r.db.WithContext(ctx).
			Where("user_id IN ? AND valid = ?", userIDs[start:end], true).
			Order("last_seen_at DESC").
			Find(&tokens).Error
		if err != nil {
			return nil, err
		}
		for _, t := range tokens {
			byUser[t.UserID] = append(byUser[t.UserID], t)
		}
	}
	return byUser, nil
}
