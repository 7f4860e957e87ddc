package rbac

// Principal is the authenticated caller together with the roles resolved for this request.
type Principal struct {
	UserID string
	Roles  []Role
}

// Can reports whether the principal holds the permission.
func (p Principal) Can(perm Permission) bool {
	return HasPermission(p.Roles, perm)
}

// CanAccess reports whether the principal may enter the module.
func (p Principal) CanAccess(module Module) bool {
	return CanAccessModule(p.Roles, module)
}
