package rbac

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/internal/shared"
)

type memoryAudit struct {
	logs []shared.AuditLog
	err  error
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func active(userID string, role Role) RoleAssignment {
	return RoleAssignment{UserID: userID, Role: role, IsActive: true}
}

func newTestService(seed ...RoleAssignment) (*Service, *memoryAudit) {
	audit := &memoryAudit{}
	svc := NewService(NewMemoryRepository(seed...), audit)
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC) })
	return svc, audit
}

func TestServiceAssignAndRevoke(t *testing.T) {
	svc, audit := newTestService(active("principal1", RolePrincipal))
	ctx := context.Background()
	by, err := svc.Principal(ctx, "principal1")
	require.NoError(t, err)

	dept := "science"
	created, err := svc.Assign(ctx, by, AssignInput{UserID: "teacherA", Role: RoleHOD, Scope: &dept})
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.Equal(t, "principal1", *created.AssignedBy)
	require.Equal(t, "science", *created.Scope)

	roles, err := svc.ActiveRoles(ctx, "teacherA")
	require.NoError(t, err)
	require.Equal(t, []Role{RoleHOD}, roles)

	_, err = svc.Assign(ctx, by, AssignInput{UserID: "teacherA", Role: RoleHOD})
	require.ErrorIs(t, err, ErrDuplicateAssignment)

	require.NoError(t, svc.Revoke(ctx, by, "teacherA", RoleHOD))
	roles, err = svc.ActiveRoles(ctx, "teacherA")
	require.NoError(t, err)
	require.Empty(t, roles)

	require.ErrorIs(t, svc.Revoke(ctx, by, "teacherA", RoleHOD), ErrNotFound)

	// a fresh active assignment is allowed once the previous one is inactive
	_, err = svc.Assign(ctx, by, AssignInput{UserID: "teacherA", Role: RoleHOD})
	require.NoError(t, err)

	require.Len(t, audit.logs, 3)
	require.Equal(t, "ROLE_ASSIGN", audit.logs[0].Action)
	require.Equal(t, "ROLE_REVOKE", audit.logs[1].Action)
	require.Equal(t, "teacherA", audit.logs[1].EntityID)
}

func TestServiceAssignGuards(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	principal := Principal{UserID: "principal1", Roles: []Role{RolePrincipal}}
	teacher := Principal{UserID: "teacherA", Roles: []Role{RoleSubjectTeacher}}

	_, err := svc.Assign(ctx, teacher, AssignInput{UserID: "teacherB", Role: RoleHOD})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Assign(ctx, principal, AssignInput{UserID: "teacherB", Role: Role("chancellor")})
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = svc.Assign(ctx, principal, AssignInput{UserID: "  ", Role: RoleHOD})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Assign(ctx, principal, AssignInput{UserID: "teacherB", Role: RoleSuperAdmin})
	require.ErrorIs(t, err, ErrForbidden)

	root := Principal{UserID: "root", Roles: []Role{RoleSuperAdmin}}
	_, err = svc.Assign(ctx, root, AssignInput{UserID: "teacherB", Role: RoleSuperAdmin})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Revoke(ctx, teacher, "teacherB", RoleSuperAdmin), ErrForbidden)
}

func TestServiceRolesAreReadFresh(t *testing.T) {
	svc, _ := newTestService(active("hod1", RoleHOD), active("principal1", RolePrincipal))
	ctx := context.Background()

	before, err := svc.Principal(ctx, "hod1")
	require.NoError(t, err)
	require.True(t, before.Can(PermApproveDiaryLevel1))

	by := Principal{UserID: "principal1", Roles: []Role{RolePrincipal}}
	require.NoError(t, svc.Revoke(ctx, by, "hod1", RoleHOD))

	after, err := svc.Principal(ctx, "hod1")
	require.NoError(t, err)
	require.False(t, after.Can(PermApproveDiaryLevel1))

	caps, err := svc.Capabilities(ctx, "hod1")
	require.NoError(t, err)
	require.Nil(t, caps.HighestRole)
}

func TestServiceListAssignmentsVisibility(t *testing.T) {
	svc, _ := newTestService(active("teacherA", RoleSubjectTeacher), active("teacherB", RoleClassTeacher))
	ctx := context.Background()

	own, err := svc.ListAssignments(ctx, Principal{UserID: "teacherA", Roles: []Role{RoleSubjectTeacher}}, "teacherA")
	require.NoError(t, err)
	require.Len(t, own, 1)

	_, err = svc.ListAssignments(ctx, Principal{UserID: "teacherA", Roles: []Role{RoleSubjectTeacher}}, "teacherB")
	require.ErrorIs(t, err, ErrForbidden)

	other, err := svc.ListAssignments(ctx, Principal{UserID: "hod1", Roles: []Role{RoleHOD}}, "teacherB")
	require.NoError(t, err)
	require.Equal(t, RoleClassTeacher, other[0].Role)
}

func TestServiceAuditFailureIsLogged(t *testing.T) {
	svc, audit := newTestService()
	audit.err = errors.New("audit table missing")
	var buf bytes.Buffer
	svc.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	root := Principal{UserID: "root", Roles: []Role{RoleSuperAdmin}}
	_, err := svc.Assign(context.Background(), root, AssignInput{UserID: "teacherA", Role: RoleHOD})
	require.NoError(t, err)

	require.Contains(t, buf.String(), `"msg":"record role audit"`)
	require.Contains(t, buf.String(), `"action":"ROLE_ASSIGN"`)
	require.Contains(t, buf.String(), "audit table missing")
}

// blockingAssignments holds LoadActiveRoleAssignments until release is closed.
type blockingAssignments struct {
	*MemoryRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	ctxErrs []error
}

func (b *blockingAssignments) LoadActiveRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.mu.Lock()
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	b.mu.Unlock()
	return b.MemoryRepository.LoadActiveRoleAssignments(ctx, userID)
}

func TestCapabilitiesSharedLoadOutlivesCancelledCaller(t *testing.T) {
	repo := &blockingAssignments{
		MemoryRepository: NewMemoryRepository(active("hod1", RoleHOD)),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := NewService(repo, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Capabilities(first, "hod1")
		firstErr <- err
	}()
	<-repo.entered
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan error, 1)
	var caps Capabilities
	go func() {
		var err error
		caps, err = svc.Capabilities(context.Background(), "hod1")
		second <- err
	}()
	close(repo.release)
	require.NoError(t, <-second)
	require.Equal(t, RoleHOD, *caps.HighestRole)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, err := range repo.ctxErrs {
		require.NoError(t, err)
	}
}
