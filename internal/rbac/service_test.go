package rbac

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	permissions      map[int64]*Permission
	permissionByPair map[Check]int64
	nextPermissionID int64

	roles      map[int64]*Role
	roleByName map[string]int64
	rolePerms  map[int64]map[int64]struct{}
	nextRoleID int64

	assignments      []UserRole
	nextAssignmentID int64
}

func newMockStore() *mockStore {
	return &mockStore{
		permissions:      make(map[int64]*Permission),
		permissionByPair: make(map[Check]int64),
		nextPermissionID: 1,
		roles:            make(map[int64]*Role),
		roleByName:       make(map[string]int64),
		rolePerms:        make(map[int64]map[int64]struct{}),
		nextRoleID:       1,
		nextAssignmentID: 1,
	}
}

func (m *mockStore) CreatePermission(ctx context.Context, action Action, resource Resource, description string) (Permission, error) {
	pair := Check{Action: action, Resource: resource}
	if _, ok := m.permissionByPair[pair]; ok {
		return Permission{}, shared.ErrConflict
	}
	perm := Permission{
		ID: m.nextPermissionID, Action: action, Resource: resource,
		Description: description, IsActive: true,
	}
	m.permissions[perm.ID] = &perm
	m.permissionByPair[pair] = perm.ID
	m.nextPermissionID++
	return perm, nil
}

func (m *mockStore) GetPermission(ctx context.Context, action Action, resource Resource) (*Permission, error) {
	id, ok := m.permissionByPair[Check{Action: action, Resource: resource}]
	if !ok {
		return nil, nil
	}
	perm := *m.permissions[id]
	return &perm, nil
}

func (m *mockStore) ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error) {
	var out []Permission
	for _, perm := range m.permissions {
		if activeOnly && !perm.IsActive {
			continue
		}
		out = append(out, *perm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (m *mockStore) DeactivatePermission(ctx context.Context, id int64) error {
	perm, ok := m.permissions[id]
	if !ok {
		return shared.ErrNotFound
	}
	perm.IsActive = false
	return nil
}

func (m *mockStore) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	if _, ok := m.roleByName[params.Name]; ok {
		return Role{}, shared.ErrConflict
	}
	role := Role{
		ID: m.nextRoleID, Name: params.Name, DisplayName: params.DisplayName,
		Description: params.Description, IsSystem: params.IsSystem, IsActive: true,
	}
	m.roles[role.ID] = &role
	m.roleByName[role.Name] = role.ID
	m.rolePerms[role.ID] = make(map[int64]struct{})
	m.nextRoleID++
	return role, nil
}

func (m *mockStore) UpdateRole(ctx context.Context, params UpdateRoleParams) (Role, error) {
	role, ok := m.roles[params.ID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	if params.Name != nil {
		delete(m.roleByName, role.Name)
		role.Name = *params.Name
		m.roleByName[role.Name] = role.ID
	}
	if params.DisplayName != nil {
		role.DisplayName = *params.DisplayName
	}
	if params.Description != nil {
		role.Description = *params.Description
	}
	if params.IsActive != nil {
		role.IsActive = *params.IsActive
	}
	if params.IsSystem != nil {
		role.IsSystem = *params.IsSystem
	}
	return *role, nil
}

func (m *mockStore) DeleteRole(ctx context.Context, id int64) error {
	role, ok := m.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	for _, ur := range m.assignments {
		if ur.RoleID == id {
			return shared.ErrRoleInUse
		}
	}
	delete(m.roleByName, role.Name)
	delete(m.roles, id)
	delete(m.rolePerms, id)
	return nil
}

func (m *mockStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return *role, nil
}

func (m *mockStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	id, ok := m.roleByName[name]
	if !ok {
		return nil, nil
	}
	role := *m.roles[id]
	role.Permissions = m.activePermissionsOf(id)
	return &role, nil
}

func (m *mockStore) ListRoles(ctx context.Context, activeOnly bool) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if activeOnly && !role.IsActive {
			continue
		}
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockStore) InsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	if _, ok := m.roles[roleID]; !ok {
		return UserRole{}, shared.ErrNotFound
	}
	ur := UserRole{
		ID: m.nextAssignmentID, UserID: userID, RoleID: roleID,
		AssignedAt: time.Now(), AssignedBy: assignedBy, ExpiresAt: expiresAt,
	}
	m.assignments = append(m.assignments, ur)
	m.nextAssignmentID++
	return ur, nil
}

func (m *mockStore) DeleteUserRolesByPair(ctx context.Context, userID, roleID int64) (int64, error) {
	var kept []UserRole
	var removed int64
	for _, ur := range m.assignments {
		if ur.UserID == userID && ur.RoleID == roleID {
			removed++
			continue
		}
		kept = append(kept, ur)
	}
	m.assignments = kept
	return removed, nil
}

func (m *mockStore) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	perms, ok := m.rolePerms[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	if _, dup := perms[permissionID]; dup {
		return shared.ErrConflict
	}
	perms[permissionID] = struct{}{}
	return nil
}

func (m *mockStore) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	perms, ok := m.rolePerms[roleID]
	if !ok {
		return shared.ErrNotFound
	}
	delete(perms, permissionID)
	return nil
}

func (m *mockStore) GetUserGrants(ctx context.Context, userID int64, at time.Time) ([]Role, error) {
	seen := make(map[int64]struct{})
	var out []Role
	for _, ur := range m.assignments {
		if ur.UserID != userID || !ur.ValidAt(at) {
			continue
		}
		role, ok := m.roles[ur.RoleID]
		if !ok || !role.IsActive {
			continue
		}
		if _, dup := seen[role.ID]; dup {
			continue
		}
		seen[role.ID] = struct{}{}
		copied := *role
		copied.Permissions = m.activePermissionsOf(role.ID)
		out = append(out, copied)
	}
	return out, nil
}

func (m *mockStore) ListUserAssignments(ctx context.Context, userID int64) ([]UserRole, error) {
	var out []UserRole
	for _, ur := range m.assignments {
		if ur.UserID == userID {
			out = append(out, ur)
		}
	}
	return out, nil
}

func (m *mockStore) activePermissionsOf(roleID int64) []Permission {
	var out []Permission
	for permID := range m.rolePerms[roleID] {
		perm := m.permissions[permID]
		if perm != nil && perm.IsActive {
			out = append(out, *perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// FIXTURES
// ============================================================================

func mustPermission(t *testing.T, svc *Service, action Action, resource Resource) Permission {
	t.Helper()
	perm, err := svc.CreatePermission(context.Background(), action, resource, "")
	require.NoError(t, err)
	return perm
}

func mustRole(t *testing.T, svc *Service, name string, perms ...Permission) Role {
	t.Helper()
	role, err := svc.CreateRole(context.Background(), CreateRoleParams{Name: name})
	require.NoError(t, err)
	for _, perm := range perms {
		require.NoError(t, svc.AssignPermissionToRole(context.Background(), role.ID, perm.ID))
	}
	return role
}

// ============================================================================
// CATALOG
// ============================================================================

func TestCreatePermissionRejectsDuplicatePair(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, ActionRead, ResourceTrade, "read trades")
	require.NoError(t, err)

	_, err = svc.CreatePermission(ctx, ActionRead, ResourceTrade, "again")
	assert.ErrorIs(t, err, shared.ErrConflict)

	// Same action on another resource is a distinct permission.
	_, err = svc.CreatePermission(ctx, ActionRead, ResourceSymbol, "")
	assert.NoError(t, err)
}

func TestCreatePermissionValidatesEnums(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, Action("DESTROY"), ResourceTrade, "")
	assert.Error(t, err)

	_, err = svc.CreatePermission(ctx, ActionRead, Resource("WAREHOUSE"), "")
	assert.Error(t, err)
}

func TestGetPermissionMissReturnsNil(t *testing.T) {
	svc := NewService(newMockStore())

	perm, err := svc.GetPermission(context.Background(), ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.Nil(t, perm)
}

// ============================================================================
// EVALUATION
// ============================================================================

func TestHasPermissionExactMatchOnly(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	manage := mustPermission(t, svc, ActionManage, ResourceTrade)
	role := mustRole(t, svc, "trade_admin", manage)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionManage, ResourceTrade)
	require.NoError(t, err)
	assert.True(t, ok)

	// MANAGE does not imply the other actions.
	for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		ok, err := svc.HasPermission(ctx, 1, action, ResourceTrade)
		require.NoError(t, err)
		assert.False(t, ok, "MANAGE must not grant %s", action)
	}
}

func TestUnknownUserYieldsEmptyDenials(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, 404, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.False(t, ok)

	roles, err := svc.GetUserRoles(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, roles)

	rc, err := svc.GetContext(ctx, 404)
	require.NoError(t, err)
	assert.NotNil(t, rc.UserRoles)
	assert.NotNil(t, rc.Permissions)
	assert.Empty(t, rc.UserRoles)
	assert.Empty(t, rc.Permissions)
}

func TestExpiredAssignmentStopsGranting(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	role := mustRole(t, svc, "temp_reader", read)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	expiry := now.Add(time.Hour)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, &expiry)
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.True(t, ok)

	// Advance past the expiry: the grant lapses with no write.
	svc.WithClock(func() time.Time { return now.Add(2 * time.Hour) })

	ok, err = svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.False(t, ok)

	// The row is retained for audit.
	history, err := svc.ListUserAssignments(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAssignmentExpiringExactlyNowIsInvalid(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	role := mustRole(t, svc, "reader", read)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	_, err := svc.AssignRole(ctx, 1, role.ID, nil, &now)
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.False(t, ok, "expires_at == now must not grant")
}

func TestPermissionUnionDeduplicatesAcrossRoles(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	create := mustPermission(t, svc, ActionCreate, ResourceTrade)

	first := mustRole(t, svc, "reader", read)
	second := mustRole(t, svc, "writer", read, create)

	_, err := svc.AssignRole(ctx, 1, first.ID, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, 1, second.ID, nil, nil)
	require.NoError(t, err)

	perms, err := svc.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, perms, 2, "shared permission must appear once")
}

func TestDeactivatedPermissionLeavesEffectiveSet(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	role := mustRole(t, svc, "reader", read)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.DeactivatePermission(ctx, read.ID))

	ok, err = svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.False(t, ok, "soft-deleted permission must stop granting everywhere")
}

func TestInactiveRoleContributesNothing(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	role := mustRole(t, svc, "reader", read)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateRole(ctx, UpdateRoleParams{ID: role.ID, IsActive: &inactive})
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.False(t, ok)

	roles, err := svc.GetUserRoles(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestHasAnyAndHasAllPermissions(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	read := mustPermission(t, svc, ActionRead, ResourceTrade)
	mustPermission(t, svc, ActionDelete, ResourceTrade)
	role := mustRole(t, svc, "reader", read)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	checks := []Check{
		{ActionRead, ResourceTrade},
		{ActionDelete, ResourceTrade},
	}

	any, err := svc.HasAnyPermission(ctx, 1, checks)
	require.NoError(t, err)
	assert.True(t, any)

	all, err := svc.HasAllPermissions(ctx, 1, checks)
	require.NoError(t, err)
	assert.False(t, all)

	all, err = svc.HasAllPermissions(ctx, 1, checks[:1])
	require.NoError(t, err)
	assert.True(t, all)

	none, err := svc.HasAnyPermission(ctx, 1, nil)
	require.NoError(t, err)
	assert.False(t, none, "empty OR is a denial")

	vacuous, err := svc.HasAllPermissions(ctx, 1, nil)
	require.NoError(t, err)
	assert.True(t, vacuous, "empty AND is satisfied")
}

func TestHasRoleAndHasAnyRole(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	role := mustRole(t, svc, "moderator")
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	ok, err := svc.HasRole(ctx, 1, "moderator")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasRole(ctx, 1, "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAnyRole(ctx, 1, []string{"admin", "moderator"})
	require.NoError(t, err)
	assert.True(t, ok)
}

// ============================================================================
// REGISTRY AND ASSIGNMENTS
// ============================================================================

func TestCreateRoleDefaultsAndConflicts(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleParams{Name: "  analyst  "})
	require.NoError(t, err)
	assert.Equal(t, "analyst", role.Name)
	assert.Equal(t, "analyst", role.DisplayName)

	_, err = svc.CreateRole(ctx, CreateRoleParams{Name: "analyst"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateRole(ctx, CreateRoleParams{Name: "   "})
	assert.Error(t, err)
}

func TestDeleteRoleInUseIsRejected(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	role := mustRole(t, svc, "sticky")
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrRoleInUse)

	require.NoError(t, svc.RemoveRole(ctx, 1, role.ID))
	assert.NoError(t, svc.DeleteRole(ctx, role.ID))
}

func TestRemoveRoleDeletesAllPairRowsAndToleratesAbsence(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	role := mustRole(t, svc, "dup")
	expired := time.Now().Add(-time.Hour)
	_, err := svc.AssignRole(ctx, 1, role.ID, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, 1, role.ID, nil, &expired)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveRole(ctx, 1, role.ID))

	history, err := svc.ListUserAssignments(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, history, "removal clears live, duplicate, and expired rows")

	// Removing again is not an error.
	assert.NoError(t, svc.RemoveRole(ctx, 1, role.ID))
}

func TestAssignRoleToMissingRoleFails(t *testing.T) {
	svc := NewService(newMockStore())

	_, err := svc.AssignRole(context.Background(), 1, 999, nil, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// END TO END
// ============================================================================

func TestLifecycleAcrossRolesAndExpiry(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()

	readTrade := mustPermission(t, svc, ActionRead, ResourceTrade)
	createTrade := mustPermission(t, svc, ActionCreate, ResourceTrade)
	manageUser := mustPermission(t, svc, ActionManage, ResourceUser)

	trader := mustRole(t, svc, "trader", readTrade, createTrade)
	moderator := mustRole(t, svc, "moderator", readTrade, manageUser)

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	const alice int64 = 7
	_, err := svc.AssignRole(ctx, alice, trader.ID, nil, nil)
	require.NoError(t, err)

	modExpiry := now.Add(24 * time.Hour)
	admin := int64(1)
	_, err = svc.AssignRole(ctx, alice, moderator.ID, &admin, &modExpiry)
	require.NoError(t, err)

	rc, err := svc.GetContext(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, rc.UserRoles, 2)
	assert.Len(t, rc.Permissions, 3, "shared READ TRADE deduplicated")

	ok, err := svc.HasPermission(ctx, alice, ActionManage, ResourceUser)
	require.NoError(t, err)
	assert.True(t, ok)

	// Two days later the moderator grant has lapsed on its own.
	svc.WithClock(func() time.Time { return now.Add(48 * time.Hour) })

	ok, err = svc.HasPermission(ctx, alice, ActionManage, ResourceUser)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasPermission(ctx, alice, ActionRead, ResourceTrade)
	require.NoError(t, err)
	assert.True(t, ok, "permanent trader grant keeps working")

	roles, err := svc.GetUserRoles(ctx, alice)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "trader", roles[0].Name)
}
