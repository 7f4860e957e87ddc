package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allPermissions() []Permission {
	seen := map[Permission]struct{}{"made.up.permission": {}}
	for _, def := range catalog {
		for _, p := range def.Permissions {
			seen[p] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

func TestSuperAdminShortCircuit(t *testing.T) {
	roles := []Role{RoleSuperAdmin}
	for _, p := range allPermissions() {
		require.Truef(t, HasPermission(roles, p), "permission %s", p)
	}
	for _, m := range append(Modules(), Module("made_up")) {
		require.Truef(t, CanAccessModule(roles, m), "module %s", m)
	}
	require.Equal(t, Modules(), AccessibleModules(roles))
}

func TestUnknownRoleGrantsNothing(t *testing.T) {
	roles := []Role{Role("chancellor")}
	require.Empty(t, UserPermissions(roles))
	require.Empty(t, AccessibleModules(roles))
	for _, p := range allPermissions() {
		require.False(t, HasPermission(roles, p))
	}

	role, ok := ParseRole("chancellor")
	require.False(t, ok)
	require.Equal(t, Role("chancellor"), role)
	require.Equal(t, "chancellor", role.Label())
}

func TestHighestRole(t *testing.T) {
	top, ok := HighestRole([]Role{RoleFinanceAdmin, RoleHOD})
	require.True(t, ok)
	require.Equal(t, RoleHOD, top)

	top, ok = HighestRole([]Role{RoleMentor, RoleClassTeacher})
	require.True(t, ok)
	require.Equal(t, RoleMentor, top)

	top, ok = HighestRole([]Role{Role("chancellor"), RoleCanteenAdmin})
	require.True(t, ok)
	require.Equal(t, RoleCanteenAdmin, top)

	_, ok = HighestRole(nil)
	require.False(t, ok)
}

func TestApprovalPermissionHolders(t *testing.T) {
	cases := []struct {
		perm    Permission
		holders []Role
	}{
		{PermApprovePlannerLevel1, []Role{RoleHOD}},
		{PermApprovePlannerFinal, []Role{RolePrincipal}},
		{PermApproveDiaryLevel1, []Role{RoleHOD}},
		{PermApproveDiaryFinal, []Role{RolePrincipal}},
		{PermDecideLeave, []Role{RoleClassTeacher, RoleMentor}},
		{PermDecideSubstitution, []Role{RoleHOD, RoleDepartmentAdmin}},
	}
	for _, tc := range cases {
		for _, role := range Roles() {
			if role == RoleSuperAdmin {
				continue
			}
			want := false
			for _, h := range tc.holders {
				if h == role {
					want = true
				}
			}
			require.Equalf(t, want, HasPermission([]Role{role}, tc.perm), "%s holding %s", role, tc.perm)
		}
	}
}

func TestCatalogCoverage(t *testing.T) {
	require.Len(t, Roles(), len(catalog))
	for _, role := range Roles() {
		require.True(t, role.Known())
		def, ok := Definition(role)
		require.True(t, ok)
		require.NotEmpty(t, def.Label)
	}
	for _, m := range Modules() {
		_, ok := moduleAccess[m]
		require.Truef(t, ok, "module %s has no access list", m)
	}
}

func TestUserPermissionsSortedUnion(t *testing.T) {
	perms := UserPermissions([]Role{RoleMentor, RoleClassTeacher})
	require.Contains(t, perms, PermDecideLeave)
	require.Contains(t, perms, PermAcademicPlannerWrite)
	for i := 1; i < len(perms); i++ {
		require.Less(t, string(perms[i-1]), string(perms[i]))
	}
}

func TestResolveCapabilities(t *testing.T) {
	caps := ResolveCapabilities([]Role{RoleSubjectTeacher, RoleHOD})
	require.NotNil(t, caps.HighestRole)
	require.Equal(t, RoleHOD, *caps.HighestRole)
	require.Contains(t, caps.Modules, ModuleLessonPlanner)
	require.NotContains(t, caps.Modules, ModuleFinance)

	empty := ResolveCapabilities(nil)
	require.Nil(t, empty.HighestRole)
	require.Empty(t, empty.Modules)
}

func TestRolesFromAssignmentsSkipsInactive(t *testing.T) {
	roles := RolesFromAssignments([]RoleAssignment{
		{UserID: "u1", Role: RoleHOD, IsActive: true},
		{UserID: "u1", Role: RolePrincipal, IsActive: false},
		{UserID: "u1", Role: RoleHOD, IsActive: true},
		{UserID: "u1", Role: RoleMentor, IsActive: true},
	})
	require.Equal(t, []Role{RoleHOD, RoleMentor}, roles)
}
