package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdesk/propdesk/internal/platform/db"
	"github.com/propdesk/propdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the RBAC tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, action, resource, description, is_active, created_at, updated_at`

// CreatePermission inserts a permission. A duplicate (action, resource) pair
// surfaces as shared.ErrConflict via the unique constraint, never as a silent
// overwrite.
func (r *Repository) CreatePermission(ctx context.Context, action Action, resource Resource, description string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (action, resource, description)
		VALUES ($1, $2, $3)
		RETURNING `+permissionColumns, action, resource, description)
	perm, err := scanPermission(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, shared.ErrConflict
		}
		return Permission{}, err
	}
	return perm, nil
}

// GetPermission fetches a permission by its natural key. A miss returns
// (nil, nil).
func (r *Repository) GetPermission(ctx context.Context, action Action, resource Resource) (*Permission, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+permissionColumns+` FROM permissions
		WHERE action = $1 AND resource = $2`, action, resource)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

// ListPermissions returns permissions ordered by (resource, action).
func (r *Repository) ListPermissions(ctx context.Context, activeOnly bool) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY resource, action`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// DeactivatePermission soft-deletes a permission.
func (r *Repository) DeactivatePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE permissions SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const roleColumns = `id, name, display_name, description, is_active, is_system, created_at, updated_at`

// CreateRoleParams carries fields for role creation.
type CreateRoleParams struct {
	Name        string
	DisplayName string
	Description string
	IsSystem    bool
}

// CreateRole inserts a new role. Duplicate names surface as shared.ErrConflict
// from the unique constraint; the repository does not pre-check.
func (r *Repository) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, description, is_system)
		VALUES ($1, $2, $3, $4)
		RETURNING `+roleColumns, params.Name, params.DisplayName, params.Description, params.IsSystem)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, shared.ErrConflict
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRoleParams carries a partial role update; nil fields are left as-is.
type UpdateRoleParams struct {
	ID          int64
	Name        *string
	DisplayName *string
	Description *string
	IsActive    *bool
	IsSystem    *bool
}

// UpdateRole applies a partial update and returns the stored row.
func (r *Repository) UpdateRole(ctx context.Context, params UpdateRoleParams) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET
			name = COALESCE($2, name),
			display_name = COALESCE($3, display_name),
			description = COALESCE($4, description),
			is_active = COALESCE($5, is_active),
			is_system = COALESCE($6, is_system),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		params.ID, params.Name, params.DisplayName, params.Description, params.IsActive, params.IsSystem)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Role{}, shared.ErrConflict
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole hard-deletes a role. Role-permission links cascade via the
// schema; user assignments do not, so a role still held by users fails the
// foreign key check and is reported as shared.ErrRoleInUse.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrRoleInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetRoleByName fetches a role with its permissions joined. A miss returns
// (nil, nil).
func (r *Repository) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.action, p.resource, p.description, p.is_active, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.resource, p.action`, role.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		role.Permissions = append(role.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRole fetches a role by id without joined permissions.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context, activeOnly bool) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// InsertUserRole records a role grant. Duplicate (user, role) pairs are
// allowed: a temporary escalation may coexist with a permanent grant.
func (r *Repository) InsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, role_id, assigned_at, assigned_by, expires_at`,
		userID, roleID, assignedBy, expiresAt)
	var ur UserRole
	if err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedAt, &ur.AssignedBy, &ur.ExpiresAt); err != nil {
		if db.IsForeignKeyViolation(err) {
			return UserRole{}, shared.ErrNotFound
		}
		return UserRole{}, err
	}
	return ur, nil
}

// DeleteUserRolesByPair removes every assignment row for the pair, including
// expired or duplicated grants, and returns the number of rows deleted.
func (r *Repository) DeleteUserRolesByPair(ctx context.Context, userID, roleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AttachPermission links a permission to a role. The (role_id, permission_id)
// primary key makes a duplicate link surface as shared.ErrConflict.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permissionID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrConflict
		}
		if db.IsForeignKeyViolation(err) {
			return shared.ErrNotFound
		}
		return err
	}
	return nil
}

// DetachPermission unlinks a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetUserGrants returns the active roles currently assigned to the user, each
// populated with its active permissions. The temporal filter runs in SQL so
// validity is judged against a single instant.
func (r *Repository) GetUserGrants(ctx context.Context, userID int64, at time.Time) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.display_name, r.description, r.is_active, r.is_system, r.created_at, r.updated_at,
		       p.id, p.action, p.resource, p.description, p.is_active, p.created_at, p.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.is_active
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.is_active
		WHERE ur.user_id = $1 AND (ur.expires_at IS NULL OR ur.expires_at > $2)
		ORDER BY r.name, p.resource, p.action`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles   []Role
		byID    = make(map[int64]int)
		permSet = make(map[int64]map[int64]struct{})
	)
	for rows.Next() {
		var (
			role     Role
			permID   *int64
			action   *Action
			resource *Resource
			permDesc *string
			permAct  *bool
			permCr   *time.Time
			permUp   *time.Time
		)
		if err := rows.Scan(
			&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.IsActive, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
			&permID, &action, &resource, &permDesc, &permAct, &permCr, &permUp,
		); err != nil {
			return nil, err
		}
		idx, seen := byID[role.ID]
		if !seen {
			idx = len(roles)
			byID[role.ID] = idx
			roles = append(roles, role)
			permSet[role.ID] = make(map[int64]struct{})
		}
		if permID == nil {
			continue
		}
		// A role assigned twice yields repeated join rows for each permission.
		if _, dup := permSet[role.ID][*permID]; dup {
			continue
		}
		permSet[role.ID][*permID] = struct{}{}
		roles[idx].Permissions = append(roles[idx].Permissions, Permission{
			ID:          *permID,
			Action:      *action,
			Resource:    *resource,
			Description: *permDesc,
			IsActive:    *permAct,
			CreatedAt:   *permCr,
			UpdatedAt:   *permUp,
		})
	}
	return roles, rows.Err()
}

// ListUserAssignments returns every assignment row for a user, including
// expired ones, for audit views.
func (r *Repository) ListUserAssignments(ctx context.Context, userID int64) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, role_id, assigned_at, assigned_by, expires_at
		FROM user_roles WHERE user_id = $1 ORDER BY assigned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedAt, &ur.AssignedBy, &ur.ExpiresAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, ur)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Action, &p.Resource, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanRole(row rowScanner) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsActive, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
