package rbac

// Role names. Keep these stable; they are baked into issued operator tokens.
const (
	RoleViewer   = "viewer"   // list and read recorded calls
	RoleOperator = "operator" // viewer + forward
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}
