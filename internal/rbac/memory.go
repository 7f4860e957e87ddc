package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps assignments in process memory. It backs local
// development (APP_STORE=memory) and tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	assignments []RoleAssignment
}

// NewMemoryRepository constructs an empty repository, optionally seeded.
func NewMemoryRepository(seed ...RoleAssignment) *MemoryRepository {
	repo := &MemoryRepository{}
	for _, a := range seed {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		repo.assignments = append(repo.assignments, a)
	}
	return repo
}

// LoadActiveRoleAssignments returns the active assignments of a user.
func (m *MemoryRepository) LoadActiveRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAssignments returns every assignment of a user.
func (m *MemoryRepository) ListAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateAssignment stores a new active assignment.
func (m *MemoryRepository) CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.UserID == a.UserID && existing.Role == a.Role && existing.IsActive {
			return RoleAssignment{}, ErrDuplicateAssignment
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	a.IsActive = true
	m.assignments = append(m.assignments, a)
	return a, nil
}

// DeactivateAssignment soft-closes the active assignment of a role.
func (m *MemoryRepository) DeactivateAssignment(ctx context.Context, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.assignments {
		a := &m.assignments[i]
		if a.UserID == userID && a.Role == role && a.IsActive {
			a.IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

var _ AssignmentRepository = (*MemoryRepository)(nil)
