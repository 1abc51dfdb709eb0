package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"gorm.io/gorm"
)

// UserRepository is the read-only directory of portal accounts
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
	QueryUsers(ctx context.Context, q targeting.Query) ([]string, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// GetUserByID retrieves a user by ID from PostgreSQL
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByFirebaseUID retrieves a user by Firebase UID from PostgreSQL
func (r *PostgresUserRepository) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// QueryUsers returns the ids of active users matching q in directory order
// (creation time, then id)
func (r *PostgresUserRepository) QueryUsers(ctx context.Context, q targeting.Query) ([]string, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true).
		Where("role = ? AND department_id = ?", q.Role, q.DepartmentID)
	if q.Year != nil {
		tx = tx.Where("year = ?", *q.Year)
	}
	if q.Section != "" {
		tx = tx.Where("section = ?", q.Section)
	}
	if q.AcademicYearID != "" {
		tx = tx.Where("academic_year_id = ?", q.AcademicYearID)
	}

	var ids []string
	if err := tx.Order("created_at ASC").Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
