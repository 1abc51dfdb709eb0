package targeting

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/models"
)

// Query is a directory filter. Nil/empty optional fields are not filtered on.
type Query struct {
	Role           string
	DepartmentID   string
	Year           *int
	Section        string
	AcademicYearID string
}

// Directory resolves a filter to the ids of active users, in directory order.
type Directory interface {
	QueryUsers(ctx context.Context, q Query) ([]string, error)
}

// Sender is the identity context of whoever is sending.
type Sender struct {
	UserID       string
	Name         string
	Role         string
	DepartmentID string
}

// DefaultTimeout bounds a single directory query.
const DefaultTimeout = 5 * time.Second

// Resolver expands target specs against the directory.
type Resolver struct {
	directory Directory
	timeout   time.Duration
}

// NewResolver creates a Resolver. A non-positive timeout uses DefaultTimeout.
func NewResolver(directory Directory, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{directory: directory, timeout: timeout}
}

// Resolve returns the de-duplicated recipient ids for spec as of now. It issues
// exactly one directory query. The result is a snapshot: later directory changes
// never affect it.
func (r *Resolver) Resolve(ctx context.Context, spec Spec, sender Sender) ([]string, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	if sender.DepartmentID == "" {
		return nil, fmt.Errorf("%w: sender has no department", ErrInvalidTargetSpec)
	}

	q := Query{DepartmentID: sender.DepartmentID}
	switch s := spec.(type) {
	case AllStudents:
		q.Role = models.RoleStudent
	case AllTeachers:
		q.Role = models.RoleTeacher
	case SpecificYear:
		year := s.Year
		q.Role = models.RoleStudent
		q.Year = &year
	case SpecificSection:
		year := s.Year
		q.Role = models.RoleStudent
		q.Year = &year
		q.Section = s.Section
		q.AcademicYearID = s.AcademicYearID
	case HeadOfDepartment:
		q.Role = models.RoleSuperAdmin
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ids, err := r.directory.QueryUsers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	ids = dedupe(ids)

	if _, ok := spec.(HeadOfDepartment); ok {
		switch len(ids) {
		case 0:
			return nil, fmt.Errorf("%w in department %s", ErrNoHoD, sender.DepartmentID)
		case 1:
		default:
			return nil, fmt.Errorf("%w in department %s (%d found)", ErrAmbiguousHoD, sender.DepartmentID, len(ids))
		}
	}
	return ids, nil
}

// dedupe drops repeated and empty ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
