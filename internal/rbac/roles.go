package rbac

// Role names. Keep these stable; the dashboard mints tokens with them.
const (
	RoleOwner      = "owner"
	RoleStaff      = "staff"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
