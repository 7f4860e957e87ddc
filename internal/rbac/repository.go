package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssignmentRepository describes persistence of role assignments.
type AssignmentRepository interface {
	LoadActiveRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
	ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
	CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	DeactivateAssignment(ctx context.Context, userID string, role Role) error
}

// Repository provides PostgreSQL backed persistence for role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `id, user_id, role_id, scope, is_active, assigned_by, assigned_at`

// LoadActiveRoleAssignments returns the active assignments of a user.
func (r *Repository) LoadActiveRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments WHERE user_id=$1 AND is_active ORDER BY assigned_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// ListAssignments returns every assignment of a user including inactive ones.
func (r *Repository) ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments WHERE user_id=$1 ORDER BY assigned_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// CreateAssignment inserts an active assignment. The partial unique index on
// (user_id, role_id) WHERE is_active rejects a second active row.
func (r *Repository) CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	a.IsActive = true
	_, err := r.pool.Exec(ctx, `INSERT INTO role_assignments (`+assignmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, a.ID, a.UserID, string(a.Role), a.Scope, a.IsActive, a.AssignedBy, a.AssignedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return RoleAssignment{}, ErrDuplicateAssignment
		}
		return RoleAssignment{}, err
	}
	return a, nil
}

// DeactivateAssignment soft-closes the active assignment of a role.
func (r *Repository) DeactivateAssignment(ctx context.Context, userID string, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE role_assignments SET is_active=false
WHERE user_id=$1 AND role_id=$2 AND is_active`, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAssignments(rows pgx.Rows) ([]RoleAssignment, error) {
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		var (
			a    RoleAssignment
			role string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &role, &a.Scope, &a.IsActive, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		// Persisted ids outside the catalog are kept; they resolve to no capability.
		a.Role, _ = ParseRole(role)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ AssignmentRepository = (*Repository)(nil)
