package rbac

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store defines data access methods the evaluation engine depends on. The
// pgx-backed Repository is the production implementation; tests substitute an
// in-memory stub.
type Store interface {
	CreatePermission(ctx context.Context, action Action, resource Resource, description string) (Permission, error)
	GetPermission(ctx context.Context, action Action, resource Resource) (*Permission, error)
	ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error)
	DeactivatePermission(ctx context.Context, id int64) error

	CreateRole(ctx context.Context, params CreateRoleParams) (Role, error)
	UpdateRole(ctx context.Context, params UpdateRoleParams) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, activeOnly bool) ([]Role, error)

	InsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error)
	DeleteUserRolesByPair(ctx context.Context, userID, roleID int64) (int64, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	GetUserGrants(ctx context.Context, userID int64, at time.Time) ([]Role, error)
	ListUserAssignments(ctx context.Context, userID int64) ([]UserRole, error)
}

// Service is the RBAC evaluation engine plus the catalog, registry, and
// assignment operations. It holds no state between calls: every query re-reads
// current store state, so it is safe to invoke concurrently.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatePermission registers a new (action, resource) capability.
func (s *Service) CreatePermission(ctx context.Context, action Action, resource Resource, description string) (Permission, error) {
	if !action.Valid() {
		return Permission{}, errors.New("rbac: invalid action")
	}
	if !resource.Valid() {
		return Permission{}, errors.New("rbac: invalid resource")
	}
	return s.store.CreatePermission(ctx, action, resource, strings.TrimSpace(description))
}

// GetPermission fetches a permission by pair; a miss returns (nil, nil).
func (s *Service) GetPermission(ctx context.Context, action Action, resource Resource) (*Permission, error) {
	return s.store.GetPermission(ctx, action, resource)
}

// ListPermissions returns the catalog ordered by (resource, action).
func (s *Service) ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error) {
	return s.store.ListPermissions(ctx, activeOnly)
}

// DeactivatePermission soft-deletes a permission; existing role links stay in
// place but stop contributing to evaluations.
func (s *Service) DeactivatePermission(ctx context.Context, id int64) error {
	return s.store.DeactivatePermission(ctx, id)
}

// CreateRole registers a new role bundle.
func (s *Service) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	if params.DisplayName == "" {
		params.DisplayName = params.Name
	}
	return s.store.CreateRole(ctx, params)
}

// UpdateRole applies a partial update.
func (s *Service) UpdateRole(ctx context.Context, params UpdateRoleParams) (Role, error) {
	if params.Name != nil {
		trimmed := strings.TrimSpace(*params.Name)
		if trimmed == "" {
			return Role{}, errors.New("rbac: role name required")
		}
		params.Name = &trimmed
	}
	return s.store.UpdateRole(ctx, params)
}

// DeleteRole hard-deletes a role. The isSystem flag is informational; callers
// deciding whether deletion of a built-in role is acceptable check it
// themselves.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.store.DeleteRole(ctx, id)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// GetRoleByName fetches a role with its permissions; a miss returns (nil, nil).
func (s *Service) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.store.GetRoleByName(ctx, name)
}

// ListRoles returns roles ordered by name.
func (s *Service) ListRoles(ctx context.Context, activeOnly bool) ([]Role, error) {
	return s.store.ListRoles(ctx, activeOnly)
}

// AssignRole grants a role to a user, optionally time-bounded. A user may
// hold the same role twice with different expirations, so no duplicate check
// is performed.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	return s.store.InsertUserRole(ctx, userID, roleID, assignedBy, expiresAt)
}

// RemoveRole deletes every assignment row for the (user, role) pair, expired
// and duplicated grants included. Removing a pair that was never assigned is
// a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.store.DeleteUserRolesByPair(ctx, userID, roleID)
	return err
}

// AssignPermissionToRole links a permission to a role.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	return s.store.AttachPermission(ctx, roleID, permissionID)
}

// RemovePermissionFromRole unlinks a permission from a role.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	return s.store.DetachPermission(ctx, roleID, permissionID)
}

// ListUserAssignments returns all assignment rows for a user, expired
// included, for audit views.
func (s *Service) ListUserAssignments(ctx context.Context, userID int64) ([]UserRole, error) {
	return s.store.ListUserAssignments(ctx, userID)
}

// getUserRBACData is the core primitive: the currently valid, active roles of
// a user and the union of their active permissions, deduplicated by
// permission identity. An unknown user or a user with no grants yields empty
// slices, never an error.
func (s *Service) getUserRBACData(ctx context.Context, userID int64) ([]Role, []Permission, error) {
	roles, err := s.store.GetUserGrants(ctx, userID, s.now())
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[int64]struct{})
	var perms []Permission
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, ok := seen[perm.ID]; ok {
				continue
			}
			seen[perm.ID] = struct{}{}
			perms = append(perms, perm)
		}
	}
	return roles, perms, nil
}

// GetUserRoles returns the user's currently valid active roles.
func (s *Service) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	roles, _, err := s.getUserRBACData(ctx, userID)
	return roles, err
}

// GetUserPermissions returns the user's effective permission set.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	_, perms, err := s.getUserRBACData(ctx, userID)
	return perms, err
}

// HasPermission reports whether the effective set contains an exact
// (action, resource) match. MANAGE is not expanded into the other actions.
func (s *Service) HasPermission(ctx context.Context, userID int64, action Action, resource Resource) (bool, error) {
	_, perms, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return false, err
	}
	return matchAny(perms, Check{Action: action, Resource: resource}), nil
}

// HasAnyPermission reports whether at least one check matches (logical OR).
func (s *Service) HasAnyPermission(ctx context.Context, userID int64, checks []Check) (bool, error) {
	_, perms, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, check := range checks {
		if matchAny(perms, check) {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every check matches (logical AND).
func (s *Service) HasAllPermissions(ctx context.Context, userID int64, checks []Check) (bool, error) {
	_, perms, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, check := range checks {
		if !matchAny(perms, check) {
			return false, nil
		}
	}
	return true, nil
}

// HasRole reports whether the user currently holds the named role.
func (s *Service) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	roles, _, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the user holds at least one of the named roles.
func (s *Service) HasAnyRole(ctx context.Context, userID int64, roleNames []string) (bool, error) {
	roles, _, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return false, err
	}
	names := make(map[string]struct{}, len(roleNames))
	for _, name := range roleNames {
		names[name] = struct{}{}
	}
	for _, role := range roles {
		if _, ok := names[role.Name]; ok {
			return true, nil
		}
	}
	return false, nil
}

// GetContext packages the user's roles and effective permissions for
// downstream consumption, e.g. attaching to a request context so later
// pipeline stages need not re-query.
func (s *Service) GetContext(ctx context.Context, userID int64) (Context, error) {
	roles, perms, err := s.getUserRBACData(ctx, userID)
	if err != nil {
		return Context{}, err
	}
	if roles == nil {
		roles = []Role{}
	}
	if perms == nil {
		perms = []Permission{}
	}
	return Context{UserID: userID, UserRoles: roles, Permissions: perms}, nil
}

func matchAny(perms []Permission, check Check) bool {
	for _, perm := range perms {
		if perm.Action == check.Action && perm.Resource == check.Resource {
			return true
		}
	}
	return false
}
