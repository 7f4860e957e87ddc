package rbac

import "sort"

// HasPermission reports whether any held role grants the permission.
// Holding RoleSuperAdmin always grants.
func HasPermission(roles []Role, perm Permission) bool {
	if isSuper(roles) {
		return true
	}
	for _, role := range roles {
		if _, ok := permissionIndex[role][perm]; ok {
			return true
		}
	}
	return false
}

// CanAccessModule reports whether any held role is allowed into the module.
// Holding RoleSuperAdmin always grants.
func CanAccessModule(roles []Role, module Module) bool {
	if isSuper(roles) {
		return true
	}
	allowed := moduleAccess[module]
	for _, role := range roles {
		for _, candidate := range allowed {
			if role == candidate {
				return true
			}
		}
	}
	return false
}

// HighestRole returns the first held role in priority order, falling back to
// the first held role. ok is false when roles is empty.
func HighestRole(roles []Role) (Role, bool) {
	if len(roles) == 0 {
		return "", false
	}
	held := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	for _, candidate := range rolePriority {
		if _, ok := held[candidate]; ok {
			return candidate, true
		}
	}
	return roles[0], true
}

// UserPermissions returns the sorted union of the held roles' permission sets.
// It is meant for display and audit; gating must go through HasPermission.
func UserPermissions(roles []Role) []Permission {
	set := make(map[Permission]struct{})
	for _, role := range roles {
		for p := range permissionIndex[role] {
			set[p] = struct{}{}
		}
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// AccessibleModules filters the module list through CanAccessModule.
func AccessibleModules(roles []Role) []Module {
	modules := make([]Module, 0, len(allModules))
	for _, m := range allModules {
		if CanAccessModule(roles, m) {
			modules = append(modules, m)
		}
	}
	return modules
}

// Capabilities summarises what a role set may do.
type Capabilities struct {
	Roles       []Role       `json:"roles"`
	HighestRole *Role        `json:"highest_role"`
	Permissions []Permission `json:"permissions"`
	Modules     []Module     `json:"modules"`
}

// ResolveCapabilities builds the capability summary for a role set.
func ResolveCapabilities(roles []Role) Capabilities {
	caps := Capabilities{
		Roles:       append([]Role{}, roles...),
		Permissions: UserPermissions(roles),
		Modules:     AccessibleModules(roles),
	}
	if top, ok := HighestRole(roles); ok {
		caps.HighestRole = &top
	}
	return caps
}

func isSuper(roles []Role) bool {
	for _, r := range roles {
		if r == RoleSuperAdmin {
			return true
		}
	}
	return false
}
