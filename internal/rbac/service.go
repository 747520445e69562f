package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-iam/aegis/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListActiveRoles(ctx context.Context, limit, offset int) ([]Role, int, error)
	ListActivePermissions(ctx context.Context, limit, offset int) ([]Permission, int, error)
	GetActiveRole(ctx context.Context, roleID string) (Role, error)
	GetActivePermission(ctx context.Context, permissionID string) (Permission, error)
}

// Service orchestrates role and permission management and access decisions.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateRole inserts a new role. Name uniqueness spans soft-deleted rows, so
// a collision with a deleted role still fails with conflict.
func (s *Service) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrInvalidInput)
	}
	role := Role{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertRole(ctx, role)
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns a page of active roles with pagination metadata.
func (s *Service) ListRoles(ctx context.Context, page, perPage int) ([]Role, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	roles, total, err := s.repo.ListActiveRoles(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return roles, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetRole fetches an active role by ID.
func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	if err := validateID(roleID); err != nil {
		return Role{}, err
	}
	return s.repo.GetActiveRole(ctx, roleID)
}

// SoftDeleteRole marks a role deleted. Join rows referencing the role persist
// but become inert for access decisions.
func (s *Service) SoftDeleteRole(ctx context.Context, roleID string) error {
	if err := validateID(roleID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeleteRole(ctx, roleID, time.Now().UTC())
	})
}

// CreatePermission inserts a new permission for the given action string.
func (s *Service) CreatePermission(ctx context.Context, action string) (Permission, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return Permission{}, fmt.Errorf("permission action required: %w", shared.ErrInvalidInput)
	}
	perm := Permission{ID: uuid.NewString(), Action: action, CreatedAt: time.Now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertPermission(ctx, perm)
	})
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns a page of active permissions with pagination metadata.
func (s *Service) ListPermissions(ctx context.Context, page, perPage int) ([]Permission, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	perms, total, err := s.repo.ListActivePermissions(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return perms, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetPermission fetches an active permission by ID.
func (s *Service) GetPermission(ctx context.Context, permissionID string) (Permission, error) {
	if err := validateID(permissionID); err != nil {
		return Permission{}, err
	}
	return s.repo.GetActivePermission(ctx, permissionID)
}

// SoftDeletePermission marks a permission deleted.
func (s *Service) SoftDeletePermission(ctx context.Context, permissionID string) error {
	if err := validateID(permissionID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDeletePermission(ctx, permissionID, time.Now().UTC())
	})
}

// AssignRole creates a user-role join row. Fails with not found when either
// side is absent or soft-deleted, and with conflict when the pair exists.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	if err := validateID(userID); err != nil {
		return UserRole{}, err
	}
	if err := validateID(roleID); err != nil {
		return UserRole{}, err
	}
	row := UserRole{ID: uuid.NewString(), UserID: userID, RoleID: roleID, CreatedAt: time.Now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := requireActiveRole(ctx, tx, roleID); err != nil {
			return err
		}
		return tx.InsertUserRole(ctx, row)
	})
	if err != nil {
		return UserRole{}, err
	}
	return row, nil
}

// RemoveRole hard-deletes a user-role join row.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := validateID(userID); err != nil {
		return err
	}
	if err := validateID(roleID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := requireActiveRole(ctx, tx, roleID); err != nil {
			return err
		}
		return tx.DeleteUserRole(ctx, userID, roleID)
	})
}

// AssignPermission creates a role-permission join row.
func (s *Service) AssignPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	if err := validateID(roleID); err != nil {
		return RolePermission{}, err
	}
	if err := validateID(permissionID); err != nil {
		return RolePermission{}, err
	}
	row := RolePermission{ID: uuid.NewString(), RoleID: roleID, PermissionID: permissionID, CreatedAt: time.Now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveRole(ctx, tx, roleID); err != nil {
			return err
		}
		if err := requireActivePermission(ctx, tx, permissionID); err != nil {
			return err
		}
		return tx.InsertRolePermission(ctx, row)
	})
	if err != nil {
		return RolePermission{}, err
	}
	return row, nil
}

// RemovePermission hard-deletes a role-permission join row.
func (s *Service) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	if err := validateID(roleID); err != nil {
		return err
	}
	if err := validateID(permissionID); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveRole(ctx, tx, roleID); err != nil {
			return err
		}
		if err := requireActivePermission(ctx, tx, permissionID); err != nil {
			return err
		}
		return tx.DeleteRolePermission(ctx, roleID, permissionID)
	})
}

// Check reports whether the user may perform the action. The whole traversal
// runs against one transactional snapshot so an in-flight mutation can never
// leak a partially applied assignment into the decision. A user with no
// roles, or roles without a matching permission, yields false, not an error;
// an absent or soft-deleted user yields not found.
func (s *Service) Check(ctx context.Context, userID, action string) (bool, error) {
	if err := validateID(userID); err != nil {
		return false, err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, fmt.Errorf("action required: %w", shared.ErrInvalidInput)
	}
	var allowed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		allowed, err = tx.HasActiveAction(ctx, userID, action)
		return err
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// EffectiveActions returns the distinct action strings granted to the user.
func (s *Service) EffectiveActions(ctx context.Context, userID string) ([]string, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	var actions []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireActiveUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		actions, err = tx.ActiveActionsForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func requireActiveUser(ctx context.Context, tx TxRepository, userID string) error {
	ok, err := tx.ActiveUserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, shared.ErrNotFound)
	}
	return nil
}

func requireActiveRole(ctx context.Context, tx TxRepository, roleID string) error {
	ok, err := tx.ActiveRoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("role %s: %w", roleID, shared.ErrNotFound)
	}
	return nil
}

func requireActivePermission(ctx context.Context, tx TxRepository, permissionID string) error {
	ok, err := tx.ActivePermissionExists(ctx, permissionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("permission %s: %w", permissionID, shared.ErrNotFound)
	}
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("malformed id %q: %w", id, shared.ErrInvalidInput)
	}
	return nil
}
