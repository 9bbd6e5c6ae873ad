package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleManager    = "manager"
	RoleFrontDesk  = "front_desk"
	RoleStylist    = "stylist"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleOwner, RoleManager, RoleFrontDesk, RoleStylist, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Capability answers a yes/no question about what a role may do with leads.
type Capability func(role string) bool

// CanSelfClaim reports whether the role may take an unassigned lead for itself.
func CanSelfClaim(role string) bool {
	switch role {
	case RoleOwner, RoleManager, RoleFrontDesk, RoleStylist, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// CanAssignOthers reports whether the role may hand a lead to another staff member.
func CanAssignOthers(role string) bool {
	switch role {
	case RoleOwner, RoleManager, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
