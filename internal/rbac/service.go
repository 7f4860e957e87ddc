package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/campusflow/campusflow/internal/shared"
)

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// defaultLookupTimeout bounds a shared capability load once it no longer
// follows any single caller's context.
const defaultLookupTimeout = 5 * time.Second

// Service resolves and administers role assignments.
type Service struct {
	repo          AssignmentRepository
	audit         AuditPort
	logger        *slog.Logger
	group         singleflight.Group
	lookupTimeout time.Duration
	now           func() time.Time
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo AssignmentRepository, audit AuditPort) *Service {
	return &Service{
		repo:          repo,
		audit:         audit,
		logger:        slog.Default(),
		lookupTimeout: defaultLookupTimeout,
		now:           time.Now,
	}
}

// SetLogger replaces the logger used for best-effort failures.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ActiveRoles loads the user's active roles from the store. Results are never
// cached so that eligibility reflects the assignments at call time.
func (s *Service) ActiveRoles(ctx context.Context, userID string) ([]Role, error) {
	assignments, err := s.repo.LoadActiveRoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: load assignments: %w", err)
	}
	return RolesFromAssignments(assignments), nil
}

// Principal resolves the caller identity with fresh roles.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	roles, err := s.ActiveRoles(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Roles: roles}, nil
}

// Capabilities returns the capability summary for display. Concurrent lookups
// for the same user share one in-flight load. The shared load is detached from
// the caller that started it, so one caller giving up only ends its own wait.
func (s *Service) Capabilities(ctx context.Context, userID string) (Capabilities, error) {
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lookupTimeout)
		defer cancel()
		roles, err := s.ActiveRoles(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		return ResolveCapabilities(roles), nil
	})
	select {
	case <-ctx.Done():
		return Capabilities{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Capabilities{}, res.Err
		}
		return res.Val.(Capabilities), nil
	}
}

// ListAssignments returns a user's assignments. Callers other than the user need users.view.
func (s *Service) ListAssignments(ctx context.Context, by Principal, userID string) ([]RoleAssignment, error) {
	if by.UserID != userID && !by.Can(PermUsersView) {
		return nil, ErrForbidden
	}
	return s.repo.ListAssignments(ctx, userID)
}

// Assign grants a role to a user.
func (s *Service) Assign(ctx context.Context, by Principal, in AssignInput) (RoleAssignment, error) {
	if !by.Can(PermUsersAssignRoles) {
		return RoleAssignment{}, ErrForbidden
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return RoleAssignment{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if !in.Role.Known() {
		return RoleAssignment{}, ErrUnknownRole
	}
	if in.Role == RoleSuperAdmin && !HasPermission(by.Roles, PermSystemSettings) {
		return RoleAssignment{}, ErrForbidden
	}
	active, err := s.repo.LoadActiveRoleAssignments(ctx, in.UserID)
	if err != nil {
		return RoleAssignment{}, err
	}
	for _, a := range active {
		if a.Role == in.Role {
			return RoleAssignment{}, ErrDuplicateAssignment
		}
	}
	assignedBy := by.UserID
	created, err := s.repo.CreateAssignment(ctx, RoleAssignment{
		UserID:     in.UserID,
		Role:       in.Role,
		Scope:      in.Scope,
		IsActive:   true,
		AssignedBy: &assignedBy,
		AssignedAt: s.now().UTC(),
	})
	if err != nil {
		return RoleAssignment{}, err
	}
	s.recordAudit(ctx, by.UserID, "ROLE_ASSIGN", in.UserID, map[string]any{"role": string(in.Role), "scope": in.Scope})
	return created, nil
}

// Revoke deactivates a user's active assignment of a role.
func (s *Service) Revoke(ctx context.Context, by Principal, userID string, role Role) error {
	if !by.Can(PermUsersAssignRoles) {
		return ErrForbidden
	}
	if err := s.repo.DeactivateAssignment(ctx, userID, role); err != nil {
		return err
	}
	s.recordAudit(ctx, by.UserID, "ROLE_REVOKE", userID, map[string]any{"role": string(role)})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role_assignment",
		EntityID: userID,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record role audit",
			slog.String("action", action),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}
