// Package authz decides which roles may send to which audiences.
package authz

import (
	"errors"
	"fmt"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// ErrForbiddenTarget is returned when the sender's role may not reach the audience.
var ErrForbiddenTarget = errors.New("role is not allowed to send to this target")

// ActSend is the only action the policy grants
const ActSend = "send"

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && r.act == p.act
`

// builtinPolicies: administrators reach every audience, teachers reach
// students and the head of department, students send nothing.
var builtinPolicies = [][]string{
	{"department_admin", "*", ActSend},
	{models.RoleTeacher, targeting.TypeAllStudents, ActSend},
	{models.RoleTeacher, targeting.TypeSpecificYear, ActSend},
	{models.RoleTeacher, targeting.TypeSpecificSection, ActSend},
	{models.RoleTeacher, targeting.TypeHOD, ActSend},
}

var builtinGroups = [][]string{
	{models.RoleSuperAdmin, "department_admin"},
	{models.RoleAdmin, "department_admin"},
}

// Policy wraps a Casbin enforcer.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy loads the policy CSV at path, or the built-in policy when path is empty.
func NewPolicy(path string) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rbac model: %w", err)
	}

	if path != "" {
		enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load rbac policy %s: %w", path, err)
		}
		return &Policy{enforcer: enforcer}, nil
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(builtinPolicies); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicies(builtinGroups); err != nil {
		return nil, err
	}
	return &Policy{enforcer: enforcer}, nil
}

// CanSend reports whether role may send to targetType.
func (p *Policy) CanSend(role, targetType string) (bool, error) {
	return p.enforcer.Enforce(role, targetType, ActSend)
}

// Authorize returns ErrForbiddenTarget when role may not send to targetType.
func (p *Policy) Authorize(role, targetType string) error {
	ok, err := p.CanSend(role, targetType)
	if err != nil {
		return fmt.Errorf("rbac enforce: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrForbiddenTarget, role, targetType)
	}
	return nil
}
