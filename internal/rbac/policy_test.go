package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPolicyIntoMock(t *testing.T, svc *Service) map[string]Role {
	t.Helper()
	ctx := context.Background()

	var catalog []Permission
	for _, check := range defaultCatalog() {
		perm, err := svc.CreatePermission(ctx, check.Action, check.Resource, describePermission(check))
		require.NoError(t, err)
		catalog = append(catalog, perm)
	}

	roles := make(map[string]Role)
	for _, seed := range defaultRoleSeeds() {
		role, err := svc.CreateRole(ctx, CreateRoleParams{
			Name: seed.Name, DisplayName: seed.DisplayName,
			Description: seed.Description, IsSystem: true,
		})
		require.NoError(t, err)
		for _, perm := range catalog {
			if seed.Grants(perm) {
				require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, perm.ID))
			}
		}
		roles[seed.Name] = role
	}
	return roles
}

func TestDefaultCatalogCoversEveryPair(t *testing.T) {
	catalog := defaultCatalog()
	assert.Len(t, catalog, len(Actions())*len(Resources()))

	seen := make(map[Check]struct{}, len(catalog))
	for _, check := range catalog {
		assert.True(t, check.Action.Valid())
		assert.True(t, check.Resource.Valid())
		_, dup := seen[check]
		assert.False(t, dup, "duplicate pair %s", check)
		seen[check] = struct{}{}
	}
}

func TestDefaultRolePredicates(t *testing.T) {
	seeds := defaultRoleSeeds()
	byName := make(map[string]roleSeed, len(seeds))
	for _, seed := range seeds {
		byName[seed.Name] = seed
	}
	require.Len(t, byName, 5)

	perm := func(a Action, r Resource) Permission {
		return Permission{Action: a, Resource: r}
	}

	// super_admin takes everything.
	for _, check := range defaultCatalog() {
		assert.True(t, byName[RoleSuperAdmin].Grants(perm(check.Action, check.Resource)))
	}

	// admin takes everything except role administration.
	admin := byName[RoleAdmin]
	assert.False(t, admin.Grants(perm(ActionManage, ResourceRole)))
	assert.True(t, admin.Grants(perm(ActionUpdate, ResourceRole)))
	assert.True(t, admin.Grants(perm(ActionManage, ResourceAdmin)))

	// moderator manages users and reads trades and the dashboard.
	moderator := byName[RoleModerator]
	assert.True(t, moderator.Grants(perm(ActionManage, ResourceUser)))
	assert.True(t, moderator.Grants(perm(ActionRead, ResourceTrade)))
	assert.True(t, moderator.Grants(perm(ActionRead, ResourceDashboard)))
	assert.False(t, moderator.Grants(perm(ActionDelete, ResourceUser)))
	assert.False(t, moderator.Grants(perm(ActionCreate, ResourceTrade)))

	// trader works trading resources plus the dashboard read.
	trader := byName[RoleTrader]
	assert.True(t, trader.Grants(perm(ActionCreate, ResourceTradingAccount)))
	assert.True(t, trader.Grants(perm(ActionDelete, ResourceTrade)))
	assert.True(t, trader.Grants(perm(ActionRead, ResourceDashboard)))
	assert.False(t, trader.Grants(perm(ActionUpdate, ResourceDashboard)))
	assert.False(t, trader.Grants(perm(ActionRead, ResourceUser)))

	// viewer reads only.
	viewer := byName[RoleViewer]
	assert.True(t, viewer.Grants(perm(ActionRead, ResourceTrade)))
	assert.True(t, viewer.Grants(perm(ActionRead, ResourceDashboard)))
	assert.False(t, viewer.Grants(perm(ActionCreate, ResourceTrade)))
	assert.False(t, viewer.Grants(perm(ActionRead, ResourceUser)))
}

func TestEvaluateNamedPolicies(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()
	roles := seedPolicyIntoMock(t, svc)

	const (
		rootUser   int64 = 1
		traderUser int64 = 2
	)
	_, err := svc.AssignRole(ctx, rootUser, roles[RoleSuperAdmin].ID, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, traderUser, roles[RoleTrader].ID, nil, nil)
	require.NoError(t, err)

	cases := []struct {
		policy string
		user   int64
		want   bool
	}{
		{PolicyIsSuperAdmin, rootUser, true},
		{PolicyIsSuperAdmin, traderUser, false},
		{PolicyIsAdmin, rootUser, true},
		{PolicyIsAdmin, traderUser, false},
		{PolicyCanAccessAdmin, rootUser, true},
		{PolicyCanAccessAdmin, traderUser, false},
		{PolicyCanManageTrades, traderUser, true},
		{PolicyCanViewDashboard, traderUser, true},
		{PolicyCanManageUsers, traderUser, false},
		{PolicyCanManageRoles, rootUser, true},
	}
	for _, tc := range cases {
		got, err := svc.Evaluate(ctx, tc.policy, tc.user)
		require.NoError(t, err, tc.policy)
		assert.Equal(t, tc.want, got, "policy %s user %d", tc.policy, tc.user)
	}

	_, err = svc.Evaluate(ctx, "no_such_policy", rootUser)
	assert.Error(t, err)
}

func TestSeededAdminLacksRoleAdministration(t *testing.T) {
	svc := NewService(newMockStore())
	ctx := context.Background()
	roles := seedPolicyIntoMock(t, svc)

	_, err := svc.AssignRole(ctx, 1, roles[RoleAdmin].ID, nil, nil)
	require.NoError(t, err)

	ok, err := svc.HasPermission(ctx, 1, ActionManage, ResourceRole)
	require.NoError(t, err)
	assert.False(t, ok)

	perms, err := svc.GetUserPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, perms, len(Actions())*len(Resources())-1)
}
