package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-iam/aegis/internal/shared"
)

// memoryRepo emulates the postgres repository, including the uniqueness
// rules that span soft-deleted rows. The transaction mutex serializes every
// WithTx body the way serializable isolation does.
type memoryRepo struct {
	mu            sync.Mutex
	users         map[string]bool // id -> active
	roles         map[string]*Role
	rolesByName   map[string]string
	perms         map[string]*Permission
	permsByAction map[string]string
	userRoles     map[string]UserRole
	rolePerms     map[string]RolePermission
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:         make(map[string]bool),
		roles:         make(map[string]*Role),
		rolesByName:   make(map[string]string),
		perms:         make(map[string]*Permission),
		permsByAction: make(map[string]string),
		userRoles:     make(map[string]UserRole),
		rolePerms:     make(map[string]RolePermission),
	}
}

func (r *memoryRepo) addUser(active bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.users[id] = active
	return id
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListActiveRoles(ctx context.Context, limit, offset int) ([]Role, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Role
	for _, role := range r.roles {
		if role.Active() {
			out = append(out, *role)
		}
	}
	return pageOf(out, limit, offset), len(out), nil
}

func (r *memoryRepo) ListActivePermissions(ctx context.Context, limit, offset int) ([]Permission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Permission
	for _, perm := range r.perms {
		if perm.Active() {
			out = append(out, *perm)
		}
	}
	return pageOf(out, limit, offset), len(out), nil
}

func pageOf[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (r *memoryRepo) GetActiveRole(ctx context.Context, roleID string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[roleID]
	if !ok || !role.Active() {
		return Role{}, shared.ErrNotFound
	}
	return *role, nil
}

func (r *memoryRepo) GetActivePermission(ctx context.Context, permissionID string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	perm, ok := r.perms[permissionID]
	if !ok || !perm.Active() {
		return Permission{}, shared.ErrNotFound
	}
	return *perm, nil
}

func (t *memoryTx) ActiveUserExists(ctx context.Context, userID string) (bool, error) {
	return t.repo.users[userID], nil
}

func (t *memoryTx) ActiveRoleExists(ctx context.Context, roleID string) (bool, error) {
	role, ok := t.repo.roles[roleID]
	return ok && role.Active(), nil
}

func (t *memoryTx) ActivePermissionExists(ctx context.Context, permissionID string) (bool, error) {
	perm, ok := t.repo.perms[permissionID]
	return ok && perm.Active(), nil
}

func (t *memoryTx) InsertRole(ctx context.Context, role Role) error {
	if _, taken := t.repo.rolesByName[role.Name]; taken {
		return shared.ErrConflict
	}
	stored := role
	t.repo.roles[role.ID] = &stored
	t.repo.rolesByName[role.Name] = role.ID
	return nil
}

func (t *memoryTx) SoftDeleteRole(ctx context.Context, roleID string, at time.Time) error {
	role, ok := t.repo.roles[roleID]
	if !ok || !role.Active() {
		return shared.ErrNotFound
	}
	role.DeletedAt = &at
	return nil
}

func (t *memoryTx) InsertPermission(ctx context.Context, permission Permission) error {
	if _, taken := t.repo.permsByAction[permission.Action]; taken {
		return shared.ErrConflict
	}
	stored := permission
	t.repo.perms[permission.ID] = &stored
	t.repo.permsByAction[permission.Action] = permission.ID
	return nil
}

func (t *memoryTx) SoftDeletePermission(ctx context.Context, permissionID string, at time.Time) error {
	perm, ok := t.repo.perms[permissionID]
	if !ok || !perm.Active() {
		return shared.ErrNotFound
	}
	perm.DeletedAt = &at
	return nil
}

func (t *memoryTx) InsertUserRole(ctx context.Context, row UserRole) error {
	key := row.UserID + "|" + row.RoleID
	if _, exists := t.repo.userRoles[key]; exists {
		return shared.ErrConflict
	}
	t.repo.userRoles[key] = row
	return nil
}

func (t *memoryTx) DeleteUserRole(ctx context.Context, userID, roleID string) error {
	key := userID + "|" + roleID
	if _, exists := t.repo.userRoles[key]; !exists {
		return shared.ErrNotFound
	}
	delete(t.repo.userRoles, key)
	return nil
}

func (t *memoryTx) InsertRolePermission(ctx context.Context, row RolePermission) error {
	key := row.RoleID + "|" + row.PermissionID
	if _, exists := t.repo.rolePerms[key]; exists {
		return shared.ErrConflict
	}
	t.repo.rolePerms[key] = row
	return nil
}

func (t *memoryTx) DeleteRolePermission(ctx context.Context, roleID, permissionID string) error {
	key := roleID + "|" + permissionID
	if _, exists := t.repo.rolePerms[key]; !exists {
		return shared.ErrNotFound
	}
	delete(t.repo.rolePerms, key)
	return nil
}

func (t *memoryTx) HasActiveAction(ctx context.Context, userID, action string) (bool, error) {
	actions, err := t.ActiveActionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, granted := range actions {
		if granted == action {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) ActiveActionsForUser(ctx context.Context, userID string) ([]string, error) {
	var actions []string
	for key, ur := range t.repo.userRoles {
		if !strings.HasPrefix(key, userID+"|") {
			continue
		}
		role, ok := t.repo.roles[ur.RoleID]
		if !ok || !role.Active() {
			continue
		}
		for _, rp := range t.repo.rolePerms {
			if rp.RoleID != ur.RoleID {
				continue
			}
			perm, ok := t.repo.perms[rp.PermissionID]
			if !ok || !perm.Active() {
				continue
			}
			actions = append(actions, perm.Action)
		}
	}
	return actions, nil
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, role.ID, perm.ID)
	require.NoError(t, err)

	allowed, err := svc.Check(ctx, userID, "edit:post")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.Check(ctx, userID, "delete:post")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))

	allowed, err = svc.Check(ctx, userID, "edit:post")
	require.NoError(t, err)
	assert.False(t, allowed, "soft-deleted role must not grant access")

	// Join rows persist; only the role is inert.
	assert.Len(t, repo.userRoles, 1)
	assert.Len(t, repo.rolePerms, 1)
}

func TestCheckUserWithoutRoles(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	allowed, err := svc.Check(ctx, userID, "read:post")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo())

	_, err := svc.Check(ctx, uuid.NewString(), "read:post")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckDeletedUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(false)

	_, err := svc.Check(ctx, userID, "read:post")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckMalformedID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo())

	_, err := svc.Check(ctx, "not-a-uuid", "read:post")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCheckIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, role.ID, perm.ID)
	require.NoError(t, err)

	allowed, err := svc.Check(ctx, userID, "Edit:Post")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSoftDeletedPermissionDeniesAccess(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, role.ID, perm.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeletePermission(ctx, perm.ID))

	allowed, err := svc.Check(ctx, userID, "edit:post")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Len(t, repo.rolePerms, 1, "join row survives the soft delete")
}

func TestDuplicateRoleAssignmentConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, userID, role.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, repo.userRoles, 1)
}

func TestAssignRoleToMissingParticipants(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, uuid.NewString(), role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.AssignRole(ctx, userID, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))
	_, err = svc.AssignRole(ctx, userID, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "soft-deleted role behaves as absent")
}

func TestRemoveRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	err = svc.RemoveRole(ctx, userID, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "nothing assigned yet")

	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveRole(ctx, userID, role.ID))
	assert.Empty(t, repo.userRoles)
}

func TestRemovePermission(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)

	err = svc.RemovePermission(ctx, role.ID, perm.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.AssignPermission(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemovePermission(ctx, role.ID, perm.ID))
	assert.Empty(t, repo.rolePerms)
}

func TestCreateRoleNameReuseAfterSoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))

	_, err = svc.CreateRole(ctx, "editor")
	assert.ErrorIs(t, err, shared.ErrConflict, "uniqueness spans soft-deleted rows")
}

func TestCreatePermissionActionReuseAfterSoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeletePermission(ctx, perm.ID))

	_, err = svc.CreatePermission(ctx, "edit:post")
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestGetRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	got, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.Name, got.Name)

	_, err = svc.GetRole(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))
	_, err = svc.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetPermission(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)

	got, err := svc.GetPermission(ctx, perm.ID)
	require.NoError(t, err)
	assert.Equal(t, perm.Action, got.Action)

	_, err = svc.GetPermission(ctx, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.SoftDeletePermission(ctx, perm.ID))
	_, err = svc.GetPermission(ctx, perm.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRoleEmptyName(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryRepo())

	_, err := svc.CreateRole(ctx, "   ")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSoftDeleteRoleTwice(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))
	assert.ErrorIs(t, svc.SoftDeleteRole(ctx, role.ID), shared.ErrNotFound)
}

func TestConcurrentAssignRole(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AssignRole(ctx, userID, role.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var conflicts, successes int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, shared.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, repo.userRoles, 1)
}

func TestEffectiveActions(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := NewService(repo)
	userID := repo.addUser(true)

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, "edit:post")
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, userID, role.ID)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, role.ID, perm.ID)
	require.NoError(t, err)

	actions, err := svc.EffectiveActions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit:post"}, actions)
}
