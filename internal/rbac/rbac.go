package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionProgress Action = "progress"
	ActionUpload   Action = "upload"
	ActionTheme    Action = "theme"
)

// Can reports whether role may perform action. Admins may do everything;
// viewers may read content and keep their own progress.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return action == ActionRead || action == ActionProgress
	default:
		return false
	}
}

func Normalize(role string) Role {
	if Role(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleViewer
}
