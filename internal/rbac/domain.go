// Package rbac implements the role-based access control core: the permission
// catalog, role registry, time-bounded user-role assignments, and the
// evaluation engine answering authorization queries.
package rbac

import (
	"fmt"
	"time"
)

// Action enumerates the atomic operations a permission can grant.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionManage marks administrative control over a resource. It does NOT
	// imply CREATE/READ/UPDATE/DELETE; each action is granted and checked
	// separately.
	ActionManage Action = "MANAGE"
)

// Actions lists every valid action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage}
}

// Valid reports whether the action is a member of the closed enumeration.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

// Resource enumerates the domain nouns permissions apply to.
type Resource string

const (
	ResourceUser           Resource = "USER"
	ResourceRole           Resource = "ROLE"
	ResourcePermission     Resource = "PERMISSION"
	ResourceTradingAccount Resource = "TRADING_ACCOUNT"
	ResourceTrade          Resource = "TRADE"
	ResourcePropfirm       Resource = "PROPFIRM"
	ResourceBroker         Resource = "BROKER"
	ResourceSymbol         Resource = "SYMBOL"
	ResourceSubscription   Resource = "SUBSCRIPTION"
	ResourceDashboard      Resource = "DASHBOARD"
	ResourceAdmin          Resource = "ADMIN"
)

// Resources lists every valid resource.
func Resources() []Resource {
	return []Resource{
		ResourceUser, ResourceRole, ResourcePermission, ResourceTradingAccount,
		ResourceTrade, ResourcePropfirm, ResourceBroker, ResourceSymbol,
		ResourceSubscription, ResourceDashboard, ResourceAdmin,
	}
}

// Valid reports whether the resource is a member of the closed enumeration.
func (r Resource) Valid() bool {
	switch r {
	case ResourceUser, ResourceRole, ResourcePermission, ResourceTradingAccount,
		ResourceTrade, ResourcePropfirm, ResourceBroker, ResourceSymbol,
		ResourceSubscription, ResourceDashboard, ResourceAdmin:
		return true
	}
	return false
}

// Permission is an atomic capability identified by its (action, resource) pair.
type Permission struct {
	ID          int64     `json:"id"`
	Action      Action    `json:"action"`
	Resource    Resource  `json:"resource"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named, reusable bundle of permissions.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Permissions is populated on joined reads (GetRoleByName, evaluation).
	Permissions []Permission `json:"permissions,omitempty"`
}

// UserRole binds a user to a role with optional temporal bounds. Expired rows
// are excluded from evaluation but kept as historical records.
type UserRole struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ValidAt reports whether the assignment is in force at the given instant.
func (ur UserRole) ValidAt(at time.Time) bool {
	return ur.ExpiresAt == nil || ur.ExpiresAt.After(at)
}

// Check pairs an action with a resource for evaluation queries.
type Check struct {
	Action   Action   `json:"action"`
	Resource Resource `json:"resource"`
}

func (c Check) String() string {
	return fmt.Sprintf("%s %s", c.Action, c.Resource)
}

// Context is the point-in-time read model for one user: the currently valid
// active roles and the deduplicated union of their active permissions.
type Context struct {
	UserID      int64        `json:"user_id"`
	UserRoles   []Role       `json:"user_roles"`
	Permissions []Permission `json:"permissions"`
}
