package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-iam/aegis/internal/platform/httpx"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Handler exposes role, permission, assignment and access-check endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		guard:    guard,
	}
}

type roleResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type permissionResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

type userRoleResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

type rolePermissionResponse struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

type createPermissionRequest struct {
	Action string `json:"action" validate:"required"`
}

type checkAccessRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Action string `json:"action" validate:"required"`
}

type checkAccessResponse struct {
	Allowed bool `json:"allowed"`
}

// MountRoleRoutes registers role management routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionReadRole))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionCreateRole))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionDeleteRole))
		r.Delete("/{roleID}", h.deleteRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionAssignPermission))
		r.Post("/{roleID}/permissions/{permissionID}", h.assignPermission)
		r.Delete("/{roleID}/permissions/{permissionID}", h.removePermission)
	})
}

// MountPermissionRoutes registers permission management routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionReadPermission))
		r.Get("/", h.listPermissions)
		r.Get("/{permissionID}", h.getPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionCreatePermission))
		r.Post("/", h.createPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionDeletePermission))
		r.Delete("/{permissionID}", h.deletePermission)
	})
}

// MountUserAssignmentRoutes registers role assignment routes under /users.
func (h *Handler) MountUserAssignmentRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionAssignRole))
		r.Post("/{userID}/roles/{roleID}", h.assignRole)
		r.Delete("/{userID}/roles/{roleID}", h.removeRole)
	})
}

// MountAccessRoutes registers the access evaluation route.
func (h *Handler) MountAccessRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.ActionCheckAccess))
		r.Post("/check", h.checkAccess)
		r.Get("/users/{userID}/actions", h.effectiveActions)
	})
}

type listEnvelope struct {
	Items      any               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.ParsePageQuery(r.URL.Query())
	roles, pg, err := h.service.ListRoles(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = roleResponse{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt}
	}
	httpx.JSON(w, http.StatusOK, listEnvelope{Items: out, Pagination: pg})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SoftDeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.ParsePageQuery(r.URL.Query())
	perms, pg, err := h.service.ListPermissions(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, perm := range perms {
		out[i] = permissionResponse{ID: perm.ID, Action: perm.Action, CreatedAt: perm.CreatedAt}
	}
	httpx.JSON(w, http.StatusOK, listEnvelope{Items: out, Pagination: pg})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Action)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, Action: perm.Action, CreatedAt: perm.CreatedAt})
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermission(r.Context(), chi.URLParam(r, "permissionID"))
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionResponse{ID: perm.ID, Action: perm.Action, CreatedAt: perm.CreatedAt})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SoftDeletePermission(r.Context(), chi.URLParam(r, "permissionID")); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, userRoleResponse{ID: row.ID, UserID: row.UserID, RoleID: row.RoleID, CreatedAt: row.CreatedAt})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.AssignPermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID"))
	if err != nil {
		h.fail(w, "assign permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rolePermissionResponse{ID: row.ID, RoleID: row.RoleID, PermissionID: row.PermissionID, CreatedAt: row.CreatedAt})
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID")); err != nil {
		h.fail(w, "remove permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req checkAccessRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	allowed, err := h.service.Check(r.Context(), req.UserID, req.Action)
	if err != nil {
		h.fail(w, "check access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkAccessResponse{Allowed: allowed})
}

func (h *Handler) effectiveActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.EffectiveActions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, "effective actions", err)
		return
	}
	if actions == nil {
		actions = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"actions": actions})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("malformed body: %w", shared.ErrInvalidInput)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), shared.ErrInvalidInput)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil && !isClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isClientError(err error) bool {
	for _, sentinel := range []error{shared.ErrNotFound, shared.ErrConflict, shared.ErrForbidden, shared.ErrInvalidInput, shared.ErrUnauthorized} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
