package shared

// Action strings required by the administrative surface. The decision engine
// compares them by exact match; the verb:resource shape is convention only.
const (
	ActionReadUser   = "read:user"
	ActionDeleteUser = "delete:user"

	ActionCreateRole = "create:role"
	ActionReadRole   = "read:role"
	ActionDeleteRole = "delete:role"
	ActionAssignRole = "assign:role"

	ActionCreatePermission = "create:permission"
	ActionReadPermission   = "read:permission"
	ActionDeletePermission = "delete:permission"
	ActionAssignPermission = "assign:permission"

	ActionCheckAccess = "check:access"
)

// CoreActions lists every action the platform itself requires, in the order
// the seed script provisions them.
func CoreActions() []string {
	return []string{
		ActionReadUser,
		ActionDeleteUser,
		ActionCreateRole,
		ActionReadRole,
		ActionDeleteRole,
		ActionAssignRole,
		ActionCreatePermission,
		ActionReadPermission,
		ActionDeletePermission,
		ActionAssignPermission,
		ActionCheckAccess,
	}
}
