package rbac

import "time"

// Role represents a named grouping of permissions. Roles are soft-deleted:
// DeletedAt marks a role inert without removing its assignment history.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Permission represents an atomic capability identified by an action string.
type Permission struct {
	ID        string
	Action    string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// UserRole links a user to a role. Join rows hard-delete on removal.
type UserRole struct {
	ID        string
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

// RolePermission grants a permission to a role. Join rows hard-delete on removal.
type RolePermission struct {
	ID           string
	RoleID       string
	PermissionID string
	CreatedAt    time.Time
}

// Active reports whether the role has not been soft-deleted.
func (r Role) Active() bool {
	return r.DeletedAt == nil
}

// Active reports whether the permission has not been soft-deleted.
func (p Permission) Active() bool {
	return p.DeletedAt == nil
}
