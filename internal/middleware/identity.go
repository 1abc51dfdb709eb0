package middleware

import (
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	DepartmentID string `json:"departmentId"`
}

// Sender converts the caller into a targeting sender context
func (i Identity) Sender() targeting.Sender {
	return targeting.Sender{
		UserID:       i.UserID,
		Name:         i.Name,
		Role:         i.Role,
		DepartmentID: i.DepartmentID,
	}
}

// SetIdentity stores the caller on the request context
func SetIdentity(c echo.Context, id *Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller, if any
func IdentityFrom(c echo.Context) (*Identity, bool) {
	id, ok := c.Get(identityKey).(*Identity)
	return id, ok && id != nil && id.UserID != ""
}
