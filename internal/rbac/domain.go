package rbac

import (
	"errors"
	"time"
)

// RoleAssignment grants a role to a user, optionally narrowed to a scope such as a department.
type RoleAssignment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	Scope      *string   `json:"scope,omitempty"`
	IsActive   bool      `json:"is_active"`
	AssignedBy *string   `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssignInput describes a new assignment request.
type AssignInput struct {
	UserID     string
	Role       Role
	Scope      *string
	AssignedBy string
}

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateAssignment indicates the user already holds an active assignment for the role.
	ErrDuplicateAssignment = errors.New("rbac: active assignment already exists")
	// ErrUnknownRole indicates an assignment for a role the catalog does not define.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrForbidden indicates the caller may not manage assignments.
	ErrForbidden = errors.New("rbac: forbidden")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("rbac: invalid input")
)

// RolesFromAssignments returns the roles of the active assignments, deduplicated in input order.
func RolesFromAssignments(assignments []RoleAssignment) []Role {
	seen := make(map[Role]struct{}, len(assignments))
	roles := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		roles = append(roles, a.Role)
	}
	return roles
}
