package authz

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
)

func TestBuiltinPolicy(t *testing.T) {
	t.Parallel()

	policy, err := NewPolicy("")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	allTargets := []string{
		targeting.TypeAllStudents,
		targeting.TypeAllTeachers,
		targeting.TypeSpecificYear,
		targeting.TypeSpecificSection,
		targeting.TypeHOD,
	}
	allowed := map[string]map[string]bool{
		models.RoleSuperAdmin: {targeting.TypeAllStudents: true, targeting.TypeAllTeachers: true, targeting.TypeSpecificYear: true, targeting.TypeSpecificSection: true, targeting.TypeHOD: true},
		models.RoleAdmin:      {targeting.TypeAllStudents: true, targeting.TypeAllTeachers: true, targeting.TypeSpecificYear: true, targeting.TypeSpecificSection: true, targeting.TypeHOD: true},
		models.RoleTeacher:    {targeting.TypeAllStudents: true, targeting.TypeSpecificYear: true, targeting.TypeSpecificSection: true, targeting.TypeHOD: true},
		models.RoleStudent:    {},
		"guest":               {},
	}

	for role, targets := range allowed {
		for _, target := range allTargets {
			t.Run(role+"/"+target, func(t *testing.T) {
				err := policy.Authorize(role, target)
				if targets[target] && err != nil {
					t.Errorf("Authorize = %v, want allowed", err)
				}
				if !targets[target] && !errors.Is(err, ErrForbiddenTarget) {
					t.Errorf("Authorize = %v, want ErrForbiddenTarget", err)
				}
			})
		}
	}
}

func TestPolicyFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rbac_policy.csv")
	csv := "p, teacher, all_students, send\np, student, hod, send\n"
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := NewPolicy(path)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if err := policy.Authorize(models.RoleStudent, targeting.TypeHOD); err != nil {
		t.Errorf("student -> hod = %v, want allowed", err)
	}
	if err := policy.Authorize(models.RoleTeacher, targeting.TypeSpecificYear); !errors.Is(err, ErrForbiddenTarget) {
		t.Errorf("teacher -> specific_year = %v, want forbidden by file policy", err)
	}

	if _, err := NewPolicy(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("NewPolicy with missing file succeeded")
	}
}
