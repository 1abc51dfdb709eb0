package models

import "time"

// Directory roles
const (
	RoleStudent    = "student"
	RoleTeacher    = "teacher"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin" // head of department
)

// User is the directory view of a portal account (PostgreSQL).
// Accounts are owned by the portal; this service only queries them.
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	Name           string    `json:"name"`
	Email          string    `json:"email" gorm:"size:160"`
	Role           string    `json:"role" gorm:"size:20;index:idx_users_directory"`
	DepartmentID   string    `json:"departmentId" gorm:"size:64;index:idx_users_directory"`
	Year           *int      `json:"year,omitempty"`
	Section        string    `json:"section,omitempty" gorm:"size:10"`
	AcademicYearID string    `json:"academicYearId,omitempty" gorm:"size:64"`
	IsActive       bool      `json:"isActive" gorm:"not null"`
	FirebaseUID    string    `json:"firebase_uid,omitempty" gorm:"index"`
	CreatedAt      time.Time `json:"createdAt"`
}
