package enums

// AdminRole is the role claim carried by admin API tokens.
type AdminRole string

const (
	AdminRoleAdmin    AdminRole = "admin"
	AdminRoleOperator AdminRole = "operator"
	AdminRoleViewer   AdminRole = "viewer"
)

var adminRoles = []AdminRole{AdminRoleAdmin, AdminRoleOperator, AdminRoleViewer}

func (r AdminRole) String() string { return string(r) }

func (r AdminRole) IsValid() bool { return member(adminRoles, r) }

// CanWrite reports whether the role may trigger syncs or edit products.
func (r AdminRole) CanWrite() bool {
	return r == AdminRoleAdmin || r == AdminRoleOperator
}

func ParseAdminRole(raw string) (AdminRole, error) {
	return parse(adminRoles, "admin role", raw)
}
