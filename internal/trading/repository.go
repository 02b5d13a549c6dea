package trading

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

const accountColumns = `id, user_id, propfirm_id, label, phase, balance, currency, is_active, created_at, updated_at`

// ListAccountsByUser returns the user's trading accounts.
func (r *Repository) ListAccountsByUser(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM trading_accounts
		WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetAccount fetches one trading account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM trading_accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// CreateAccount inserts a trading account.
func (r *Repository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO trading_accounts (user_id, propfirm_id, label, phase, balance, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+accountColumns,
		account.UserID, account.PropfirmID, account.Label, account.Phase, account.Balance, account.Currency)
	created, err := scanAccount(row)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return created, nil
}

// ListTradesByAccount returns trades newest first.
func (r *Repository) ListTradesByAccount(ctx context.Context, accountID int64) ([]Trade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, symbol_id, side, quantity, entry_price, exit_price, pnl, opened_at, closed_at
		FROM trades WHERE account_id = $1 ORDER BY opened_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.AccountID, &t.SymbolID, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.Pnl, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CreateTrade records a trade against an account.
func (r *Repository) CreateTrade(ctx context.Context, trade Trade) (Trade, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO trades (account_id, symbol_id, side, quantity, entry_price, exit_price, pnl, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, account_id, symbol_id, side, quantity, entry_price, exit_price, pnl, opened_at, closed_at`,
		trade.AccountID, trade.SymbolID, trade.Side, trade.Quantity, trade.EntryPrice,
		trade.ExitPrice, trade.Pnl, trade.OpenedAt, trade.ClosedAt)
	var t Trade
	if err := row.Scan(&t.ID, &t.AccountID, &t.SymbolID, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.Pnl, &t.OpenedAt, &t.ClosedAt); err != nil {
		if db.IsForeignKeyViolation(err) {
			return Trade{}, shared.ErrNotFound
		}
		return Trade{}, err
	}
	return t, nil
}

// ListLinksByAccount returns the broker links for one account.
func (r *Repository) ListLinksByAccount(ctx context.Context, accountID int64) ([]AccountLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, broker_id, external_login, server, linked_at
		FROM account_links WHERE account_id = $1 ORDER BY linked_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []AccountLink
	for rows.Next() {
		var l AccountLink
		if err := rows.Scan(&l.ID, &l.AccountID, &l.BrokerID, &l.ExternalLogin, &l.Server, &l.LinkedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CreateLink connects an account to a broker login; a duplicate
// (account, broker, login) triple conflicts.
func (r *Repository) CreateLink(ctx context.Context, link AccountLink) (AccountLink, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO account_links (account_id, broker_id, external_login, server)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, broker_id, external_login, server, linked_at`,
		link.AccountID, link.BrokerID, link.ExternalLogin, link.Server)
	var l AccountLink
	if err := row.Scan(&l.ID, &l.AccountID, &l.BrokerID, &l.ExternalLogin, &l.Server, &l.LinkedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return AccountLink{}, shared.ErrConflict
		}
		if db.IsForeignKeyViolation(err) {
			return AccountLink{}, shared.ErrNotFound
		}
		return AccountLink{}, err
	}
	return l, nil
}

// DeleteLink removes a broker link.
func (r *Repository) DeleteLink(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_links WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.PropfirmID, &a.Label, &a.Phase, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
