package rbac

import (
	"context"
	"fmt"
)

// Default system role names.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleModerator  = "moderator"
	RoleTrader     = "trader"
	RoleViewer     = "viewer"
)

// PolicyRule encodes one named business rule as data: either a set of role
// names (satisfied when the user holds any of them) or a set of permission
// checks (satisfied when any matches). Keeping the rules in a table keeps the
// policy auditable instead of scattering (action, resource) pairs through
// call sites.
type PolicyRule struct {
	Roles  []string
	Checks []Check
}

// PolicyIsSuperAdmin and friends name the composite policy queries exposed by
// Evaluate.
const (
	PolicyIsSuperAdmin       = "is_super_admin"
	PolicyIsAdmin            = "is_admin"
	PolicyCanAccessAdmin     = "can_access_admin_panel"
	PolicyCanManageUsers     = "can_manage_users"
	PolicyCanManageTrades    = "can_manage_trades"
	PolicyCanViewDashboard   = "can_view_dashboard"
	PolicyCanManageRoles     = "can_manage_roles"
	PolicyCanAssignRoles     = "can_assign_roles"
	PolicyCanViewPermissions = "can_view_permissions"
)

var policyRules = map[string]PolicyRule{
	PolicyIsSuperAdmin:       {Roles: []string{RoleSuperAdmin}},
	PolicyIsAdmin:            {Roles: []string{RoleSuperAdmin, RoleAdmin}},
	PolicyCanAccessAdmin:     {Checks: []Check{{ActionManage, ResourceAdmin}}},
	PolicyCanManageUsers:     {Checks: []Check{{ActionManage, ResourceUser}}},
	PolicyCanManageTrades:    {Checks: []Check{{ActionManage, ResourceTrade}}},
	PolicyCanViewDashboard:   {Checks: []Check{{ActionRead, ResourceDashboard}}},
	PolicyCanManageRoles:     {Checks: []Check{{ActionManage, ResourceRole}}},
	PolicyCanAssignRoles:     {Checks: []Check{{ActionUpdate, ResourceRole}}},
	PolicyCanViewPermissions: {Checks: []Check{{ActionRead, ResourcePermission}}},
}

// PolicyNames returns the registered composite policy names.
func PolicyNames() []string {
	names := make([]string, 0, len(policyRules))
	for name := range policyRules {
		names = append(names, name)
	}
	return names
}

// Evaluate answers a named composite policy query for the user.
func (s *Service) Evaluate(ctx context.Context, name string, userID int64) (bool, error) {
	rule, ok := policyRules[name]
	if !ok {
		return false, fmt.Errorf("rbac: unknown policy %q", name)
	}
	if len(rule.Roles) > 0 {
		return s.HasAnyRole(ctx, userID, rule.Roles)
	}
	return s.HasAnyPermission(ctx, userID, rule.Checks)
}

// roleSeed declares one default role: identity fields plus a predicate over
// the permission catalog. Membership is recomputed from the predicate on
// every seeder run, so a new catalog entry automatically flows into the roles
// whose rule it satisfies.
type roleSeed struct {
	Name        string
	DisplayName string
	Description string
	Grants      func(Permission) bool
}

func defaultRoleSeeds() []roleSeed {
	moderatorGrants := map[Check]struct{}{
		{ActionCreate, ResourceUser}:    {},
		{ActionRead, ResourceUser}:      {},
		{ActionUpdate, ResourceUser}:    {},
		{ActionManage, ResourceUser}:    {},
		{ActionRead, ResourceTrade}:     {},
		{ActionRead, ResourceDashboard}: {},
	}
	traderResources := map[Resource]struct{}{
		ResourceTradingAccount: {},
		ResourceTrade:          {},
		ResourcePropfirm:       {},
		ResourceBroker:         {},
		ResourceSymbol:         {},
	}
	viewerResources := map[Resource]struct{}{
		ResourceTrade:     {},
		ResourcePropfirm:  {},
		ResourceBroker:    {},
		ResourceSymbol:    {},
		ResourceDashboard: {},
	}

	return []roleSeed{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Administrator",
			Description: "Unrestricted access to every capability.",
			Grants:      func(Permission) bool { return true },
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "Full access except role administration.",
			Grants: func(p Permission) bool {
				return !(p.Action == ActionManage && p.Resource == ResourceRole)
			},
		},
		{
			Name:        RoleModerator,
			DisplayName: "Moderator",
			Description: "User management plus read access to trades and the dashboard.",
			Grants: func(p Permission) bool {
				_, ok := moderatorGrants[Check{p.Action, p.Resource}]
				return ok
			},
		},
		{
			Name:        RoleTrader,
			DisplayName: "Trader",
			Description: "Full access to trading resources and the dashboard.",
			Grants: func(p Permission) bool {
				if p.Action == ActionRead && p.Resource == ResourceDashboard {
					return true
				}
				_, ok := traderResources[p.Resource]
				return ok
			},
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access to trading data and the dashboard.",
			Grants: func(p Permission) bool {
				if p.Action != ActionRead {
					return false
				}
				_, ok := viewerResources[p.Resource]
				return ok
			},
		},
	}
}

// defaultCatalog enumerates the seeded permission catalog: every action
// applied to every resource.
func defaultCatalog() []Check {
	var checks []Check
	for _, resource := range Resources() {
		for _, action := range Actions() {
			checks = append(checks, Check{Action: action, Resource: resource})
		}
	}
	return checks
}

func describePermission(c Check) string {
	return fmt.Sprintf("%s access to %s records", c.Action, c.Resource)
}
