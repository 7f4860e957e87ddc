package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/campusflow/campusflow/internal/auth"
	"github.com/campusflow/campusflow/internal/rbac"
)

// AccountsCLI creates accounts and grants roles directly against the stores,
// for bootstrapping before any administrator can sign in.
type AccountsCLI struct {
	users       auth.UserStore
	assignments rbac.AssignmentRepository
}

// NewAccountsCLI constructs the helpers.
func NewAccountsCLI(users auth.UserStore, assignments rbac.AssignmentRepository) *AccountsCLI {
	return &AccountsCLI{users: users, assignments: assignments}
}

// UserAddOptions defines flags for the user add command.
type UserAddOptions struct {
	Account auth.NewAccount
	Roles   []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// GrantOptions defines flags for the grant command.
type GrantOptions struct {
	UserID     string
	Role       string
	Scope      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// UserAddCommand creates an account and grants the listed roles.
func (c *AccountsCLI) UserAddCommand(ctx context.Context, opts UserAddOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	roles, err := parseRoles(opts.Roles)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "user add: %v\n", err)
		return 1
	}
	user, err := auth.CreateAccount(ctx, c.users, opts.Account)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "user add: %v\n", err)
		if errors.Is(err, auth.ErrUserExists) {
			return 2
		}
		return 1
	}
	for _, role := range roles {
		if _, err := c.assignments.CreateAssignment(ctx, rbac.RoleAssignment{UserID: user.ID, Role: role}); err != nil {
			_, _ = fmt.Fprintf(stderr, "user add: grant %s: %v\n", role, err)
			return 1
		}
	}
	_, _ = fmt.Fprintf(stdout, "created %s (%s) roles=%s\n", user.ID, user.Email, joinRoles(roles))
	return 0
}

// GrantCommand assigns a role without the administrator checks of rbac.Service.
func (c *AccountsCLI) GrantCommand(ctx context.Context, opts GrantOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		_, _ = fmt.Fprintln(stderr, "grant: --user is required")
		return 1
	}
	if strings.TrimSpace(opts.Role) == "" {
		_, _ = fmt.Fprintln(stderr, "grant: --role is required")
		return 1
	}
	roles, err := parseRoles([]string{opts.Role})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "grant: %v\n", err)
		return 1
	}
	a := rbac.RoleAssignment{UserID: userID, Role: roles[0]}
	if scope := strings.TrimSpace(opts.Scope); scope != "" {
		a.Scope = &scope
	}
	created, err := c.assignments.CreateAssignment(ctx, a)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "grant: %v\n", err)
		if errors.Is(err, rbac.ErrDuplicateAssignment) {
			return 2
		}
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(created); err != nil {
			_, _ = fmt.Fprintf(stderr, "grant: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "granted %s to %s\n", created.Role, created.UserID)
	return 0
}

func parseRoles(raw []string) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		role, ok := rbac.ParseRole(r)
		if !ok {
			return nil, fmt.Errorf("%w: %s", rbac.ErrUnknownRole, r)
		}
		out = append(out, role)
	}
	return out, nil
}

func joinRoles(roles []rbac.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
