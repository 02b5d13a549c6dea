package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/propdesk/propdesk/internal/audit"
	"github.com/propdesk/propdesk/internal/platform/httpx"
	"github.com/propdesk/propdesk/internal/shared"
)

// Handler exposes the RBAC core over the JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     *audit.Logger
	validator *validator.Validate
	mw        Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auditLogger *audit.Logger, mw Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		audit:     auditLogger,
		validator: validator.New(),
		mw:        mw,
	}
}

// MountRoutes registers RBAC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionRead, ResourcePermission))
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionManage, ResourcePermission))
		r.Post("/permissions", h.createPermission)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionRead, ResourceRole))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/by-name/{name}", h.getRoleByName)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionManage, ResourceRole))
		r.Post("/roles", h.createRole)
		r.Patch("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deleteRole)
		r.Post("/roles/{id}/permissions", h.assignPermission)
		r.Delete("/roles/{id}/permissions/{permissionID}", h.removePermission)
	})

	// Assignment mutations require UPDATE ROLE; the engine itself does not
	// gate callers.
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionUpdate, ResourceRole))
		r.Post("/users/{id}/roles", h.assignRole)
		r.Delete("/users/{id}/roles/{roleID}", h.removeRole)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequirePermission(ActionRead, ResourceUser))
		r.Get("/users/{id}/rbac-context", h.getContext)
		r.Get("/users/{id}/role-assignments", h.listAssignments)
	})

	r.Get("/me/rbac-context", h.getOwnContext)
}

type createPermissionRequest struct {
	Action      string `json:"action" validate:"required"`
	Resource    string `json:"resource" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	action, resource := Action(req.Action), Resource(req.Resource)
	if !action.Valid() || !resource.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown action or resource")
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), action, resource, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission.created", "permission", strconv.FormatInt(perm.ID, 10), map[string]any{
		"action": perm.Action, "resource": perm.Resource,
	})
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "1"
	perms, err := h.service.ListPermissions(r.Context(), activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateRoleParams{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsSystem:    req.IsSystem,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "role.created", "role", strconv.FormatInt(role.ID, 10), map[string]any{"name": role.Name})
	httpx.JSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=64"`
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
	IsSystem    *bool   `json:"is_system"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), UpdateRoleParams{
		ID:          id,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    req.IsActive,
		IsSystem:    req.IsSystem,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "role.updated", "role", strconv.FormatInt(role.ID, 10), nil)
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	// System roles are deletable through the same path; isSystem is an
	// informational flag surfaced to the caller beforehand.
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "role.deleted", "role", strconv.FormatInt(id, 10), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getRoleByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	role, err := h.service.GetRoleByName(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if role == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "1"
	roles, err := h.service.ListRoles(r.Context(), activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type assignRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var assignedBy *int64
	if actor, ok := CurrentUserID(r); ok {
		assignedBy = &actor
	}
	assignment, err := h.service.AssignRole(r.Context(), userID, req.RoleID, assignedBy, req.ExpiresAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "role.assigned", "user", strconv.FormatInt(userID, 10), map[string]any{
		"role_id": req.RoleID, "expires_at": req.ExpiresAt,
	})
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	roleID, ok := pathID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "role.removed", "user", strconv.FormatInt(userID, 10), map[string]any{"role_id": roleID})
	w.WriteHeader(http.StatusNoContent)
}

type assignPermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req assignPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignPermissionToRole(r.Context(), roleID, req.PermissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission.linked", "role", strconv.FormatInt(roleID, 10), map[string]any{
		"permission_id": req.PermissionID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	permissionID, ok := pathID(r, "permissionID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id")
		return
	}
	if err := h.service.RemovePermissionFromRole(r.Context(), roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission.unlinked", "role", strconv.FormatInt(roleID, 10), map[string]any{
		"permission_id": permissionID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	rbacCtx, err := h.service.GetContext(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rbacCtx)
}

func (h *Handler) getOwnContext(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	rbacCtx, err := h.service.GetContext(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rbacCtx)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	assignments, err := h.service.ListUserAssignments(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []UserRole{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (h *Handler) record(r *http.Request, action, entity, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actorID, _ := CurrentUserID(r)
	if err := h.audit.Record(r.Context(), audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil && h.logger != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
