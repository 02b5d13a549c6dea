package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdesk/propdesk/internal/platform/db"
	"github.com/propdesk/propdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPropfirms returns all propfirms ordered by name.
func (r *Repository) ListPropfirms(ctx context.Context) ([]Propfirm, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, website, description, is_active, created_at, updated_at
		FROM propfirms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var firms []Propfirm
	for rows.Next() {
		var f Propfirm
		if err := rows.Scan(&f.ID, &f.Name, &f.Website, &f.Description, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		firms = append(firms, f)
	}
	return firms, rows.Err()
}

// CreatePropfirm inserts a propfirm; duplicate names conflict.
func (r *Repository) CreatePropfirm(ctx context.Context, firm Propfirm) (Propfirm, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO propfirms (name, website, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, website, description, is_active, created_at, updated_at`,
		firm.Name, firm.Website, firm.Description)
	var f Propfirm
	if err := row.Scan(&f.ID, &f.Name, &f.Website, &f.Description, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Propfirm{}, shared.ErrConflict
		}
		return Propfirm{}, err
	}
	return f, nil
}

// DeletePropfirm removes a propfirm unless trading accounts reference it.
func (r *Repository) DeletePropfirm(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM propfirms WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListBrokers returns all brokers ordered by name.
func (r *Repository) ListBrokers(ctx context.Context) ([]Broker, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, website, description, is_active, created_at, updated_at
		FROM brokers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var brokers []Broker
	for rows.Next() {
		var b Broker
		if err := rows.Scan(&b.ID, &b.Name, &b.Website, &b.Description, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

// CreateBroker inserts a broker; duplicate names conflict.
func (r *Repository) CreateBroker(ctx context.Context, broker Broker) (Broker, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO brokers (name, website, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, website, description, is_active, created_at, updated_at`,
		broker.Name, broker.Website, broker.Description)
	var b Broker
	if err := row.Scan(&b.ID, &b.Name, &b.Website, &b.Description, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Broker{}, shared.ErrConflict
		}
		return Broker{}, err
	}
	return b, nil
}

// DeleteBroker removes a broker unless trading accounts reference it.
func (r *Repository) DeleteBroker(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM brokers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListSymbols returns all symbols ordered by code.
func (r *Repository) ListSymbols(ctx context.Context) ([]Symbol, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, asset_class, is_active, created_at, updated_at
		FROM symbols ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []Symbol
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.AssetClass, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// CreateSymbol inserts a symbol; duplicate codes conflict.
func (r *Repository) CreateSymbol(ctx context.Context, symbol Symbol) (Symbol, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO symbols (code, name, asset_class)
		VALUES ($1, $2, $3)
		RETURNING id, code, name, asset_class, is_active, created_at, updated_at`,
		symbol.Code, symbol.Name, symbol.AssetClass)
	var s Symbol
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.AssetClass, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Symbol{}, shared.ErrConflict
		}
		return Symbol{}, err
	}
	return s, nil
}

// GetSymbolByCode fetches one symbol; a miss returns shared.ErrNotFound.
func (r *Repository) GetSymbolByCode(ctx context.Context, code string) (Symbol, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, name, asset_class, is_active, created_at, updated_at
		FROM symbols WHERE code = $1`, code)
	var s Symbol
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.AssetClass, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Symbol{}, shared.ErrNotFound
		}
		return Symbol{}, err
	}
	return s, nil
}
