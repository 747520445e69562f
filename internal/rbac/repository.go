package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-iam/aegis/internal/platform/db"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations evaluated against a single transactional
// snapshot. Every read filters soft-deleted rows.
type TxRepository interface {
	ActiveUserExists(ctx context.Context, userID string) (bool, error)
	ActiveRoleExists(ctx context.Context, roleID string) (bool, error)
	ActivePermissionExists(ctx context.Context, permissionID string) (bool, error)

	InsertRole(ctx context.Context, role Role) error
	SoftDeleteRole(ctx context.Context, roleID string, at time.Time) error
	InsertPermission(ctx context.Context, permission Permission) error
	SoftDeletePermission(ctx context.Context, permissionID string, at time.Time) error

	InsertUserRole(ctx context.Context, row UserRole) error
	DeleteUserRole(ctx context.Context, userID, roleID string) error
	InsertRolePermission(ctx context.Context, row RolePermission) error
	DeleteRolePermission(ctx context.Context, roleID, permissionID string) error

	HasActiveAction(ctx context.Context, userID, action string) (bool, error)
	ActiveActionsForUser(ctx context.Context, userID string) ([]string, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a serializable transaction with bounded retry on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListActiveRoles returns a page of non-deleted roles ordered by creation,
// along with the total count of active roles.
func (r *Repository) ListActiveRoles(ctx context.Context, limit, offset int) ([]Role, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, created_at, deleted_at FROM roles WHERE deleted_at IS NULL ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.DeletedAt); err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

// ListActivePermissions returns a page of non-deleted permissions ordered by
// creation, along with the total count of active permissions.
func (r *Repository) ListActivePermissions(ctx context.Context, limit, offset int) ([]Permission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, action, created_at, deleted_at FROM permissions WHERE deleted_at IS NULL ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Action, &perm.CreatedAt, &perm.DeletedAt); err != nil {
			return nil, 0, err
		}
		perms = append(perms, perm)
	}
	return perms, total, rows.Err()
}

// GetActiveRole fetches a non-deleted role by ID.
func (r *Repository) GetActiveRole(ctx context.Context, roleID string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, deleted_at FROM roles WHERE id = $1 AND deleted_at IS NULL`, roleID).
		Scan(&role.ID, &role.Name, &role.CreatedAt, &role.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetActivePermission fetches a non-deleted permission by ID.
func (r *Repository) GetActivePermission(ctx context.Context, permissionID string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `SELECT id, action, created_at, deleted_at FROM permissions WHERE id = $1 AND deleted_at IS NULL`, permissionID).
		Scan(&perm.ID, &perm.Action, &perm.CreatedAt, &perm.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

func (t *txRepo) ActiveUserExists(ctx context.Context, userID string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, userID)
}

func (t *txRepo) ActiveRoleExists(ctx context.Context, roleID string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1 AND deleted_at IS NULL)`, roleID)
}

func (t *txRepo) ActivePermissionExists(ctx context.Context, permissionID string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE id = $1 AND deleted_at IS NULL)`, permissionID)
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)`, role.ID, role.Name, role.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("role name %q: %w", role.Name, shared.ErrConflict)
	}
	return err
}

func (t *txRepo) SoftDeleteRole(ctx context.Context, roleID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE roles SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, roleID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertPermission(ctx context.Context, permission Permission) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO permissions (id, action, created_at) VALUES ($1, $2, $3)`, permission.ID, permission.Action, permission.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("permission action %q: %w", permission.Action, shared.ErrConflict)
	}
	return err
}

func (t *txRepo) SoftDeletePermission(ctx context.Context, permissionID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE permissions SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, permissionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertUserRole(ctx context.Context, row UserRole) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO user_roles (id, user_id, role_id, created_at) VALUES ($1, $2, $3, $4)`, row.ID, row.UserID, row.RoleID, row.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("role already assigned: %w", shared.ErrConflict)
	}
	return err
}

func (t *txRepo) DeleteUserRole(ctx context.Context, userID, roleID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertRolePermission(ctx context.Context, row RolePermission) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO role_permissions (id, role_id, permission_id, created_at) VALUES ($1, $2, $3, $4)`, row.ID, row.RoleID, row.PermissionID, row.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("permission already assigned: %w", shared.ErrConflict)
	}
	return err
}

func (t *txRepo) DeleteRolePermission(ctx context.Context, roleID, permissionID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasActiveAction walks user -> user_roles -> roles -> role_permissions ->
// permissions, restricted to non-deleted rows at every hop.
func (t *txRepo) HasActiveAction(ctx context.Context, userID, action string) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1
	FROM user_roles ur
	JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL
	JOIN role_permissions rp ON rp.role_id = r.id
	JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
	WHERE ur.user_id = $1 AND p.action = $2
)`
	var allowed bool
	if err := t.tx.QueryRow(ctx, query, userID, action).Scan(&allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

// ActiveActionsForUser returns the distinct action strings reachable from the
// user through active roles and permissions.
func (t *txRepo) ActiveActionsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
SELECT DISTINCT p.action
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
WHERE ur.user_id = $1
ORDER BY p.action`
	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []string
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (t *txRepo) exists(ctx context.Context, query, id string) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
