package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdesk/propdesk/internal/platform/db"
)

// Seeder establishes the baseline policy: the full permission catalog, the
// five system roles, their permission links, and a default trader grant for
// users holding no role at all. Safe to run any number of times; every write
// upserts by natural key.
type Seeder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(pool *pgxpool.Pool, logger *slog.Logger) *Seeder {
	return &Seeder{pool: pool, logger: logger}
}

// Run applies the default policy inside a single transaction so an
// interrupted run never leaves a partially-applied policy behind.
func (s *Seeder) Run(ctx context.Context) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.seedPermissions(ctx, tx); err != nil {
			return fmt.Errorf("rbac: seed permissions: %w", err)
		}
		if err := s.seedRoles(ctx, tx); err != nil {
			return fmt.Errorf("rbac: seed roles: %w", err)
		}
		if _, err := s.assignDefaultRole(ctx, tx); err != nil {
			return fmt.Errorf("rbac: default role grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("rbac policy seeded")
	}
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context, tx pgx.Tx) error {
	for _, check := range defaultCatalog() {
		_, err := tx.Exec(ctx, `
			INSERT INTO permissions (action, resource, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (action, resource) DO NOTHING`,
			check.Action, check.Resource, describePermission(check))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedRoles(ctx context.Context, tx pgx.Tx) error {
	catalog, err := loadCatalog(ctx, tx)
	if err != nil {
		return err
	}

	for _, seed := range defaultRoleSeeds() {
		var roleID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (name, display_name, description, is_system)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name
			RETURNING id`,
			seed.Name, seed.DisplayName, seed.Description).Scan(&roleID)
		if err != nil {
			return err
		}

		// Membership is recomputed from the declarative rule on every run so
		// catalog additions flow into matching roles.
		for _, perm := range catalog {
			if !seed.Grants(perm) {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				VALUES ($1, $2)
				ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, perm.ID)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// BackfillDefaultRole grants the default role to users holding no role at
// all, outside a full seed run. Returns the number of grants made.
func (s *Seeder) BackfillDefaultRole(ctx context.Context) (int64, error) {
	var granted int64
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		granted, err = s.assignDefaultRole(ctx, tx)
		return err
	})
	return granted, err
}

// assignDefaultRole grants trader to every user with zero role links so no
// account is left with an empty, fully-locked-out permission set.
func (s *Seeder) assignDefaultRole(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT u.id, r.id
		FROM users u
		CROSS JOIN roles r
		WHERE r.name = $1
		  AND NOT EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id)`,
		RoleTrader)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func loadCatalog(ctx context.Context, tx pgx.Tx) ([]Permission, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, action, resource, description, is_active, created_at, updated_at
		FROM permissions ORDER BY resource, action`)
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
