package repositories

import (
	"github.com/anonto42/campus-notify/backend/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the relational schema
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.Tables()...)
}
