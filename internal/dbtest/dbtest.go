// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database closed at test cleanup.
// The pool holds a single connection so every session sees the same database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.Tables()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// User describes a directory row to seed.
type User struct {
	ID             string
	Role           string
	DepartmentID   string
	Year           int
	Section        string
	AcademicYearID string
	Inactive       bool
}

// SeedUsers inserts directory rows with strictly increasing creation times so
// directory order equals slice order.
func SeedUsers(t testing.TB, db *gorm.DB, users ...User) {
	t.Helper()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, u := range users {
		row := models.User{
			ID:             u.ID,
			Name:           u.ID,
			Role:           u.Role,
			DepartmentID:   u.DepartmentID,
			Section:        u.Section,
			AcademicYearID: u.AcademicYearID,
			IsActive:       !u.Inactive,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if u.Year > 0 {
			year := u.Year
			row.Year = &year
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}
