// Package subscriptions tracks the billing plan a user is on.
package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdesk/propdesk/internal/platform/db"
	"github.com/propdesk/propdesk/internal/shared"
)

// Subscription is one plan enrollment for a user.
type Subscription struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetActiveByUser returns the user's active subscription, or ErrNotFound.
func (r *Repository) GetActiveByUser(ctx context.Context, userID int64) (Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, plan, status, started_at, expires_at
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY started_at DESC LIMIT 1`, userID)
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.StartedAt, &sub.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, shared.ErrNotFound
		}
		return Subscription{}, err
	}
	return sub, nil
}

// Create enrolls a user in a plan. One active subscription per user is
// enforced by a partial unique index.
func (r *Repository) Create(ctx context.Context, userID int64, plan string, expiresAt *time.Time) (Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan, status, expires_at)
		VALUES ($1, $2, 'active', $3)
		RETURNING id, user_id, plan, status, started_at, expires_at`,
		userID, plan, expiresAt)
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.StartedAt, &sub.ExpiresAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Subscription{}, shared.ErrConflict
		}
		if db.IsForeignKeyViolation(err) {
			return Subscription{}, shared.ErrNotFound
		}
		return Subscription{}, err
	}
	return sub, nil
}

// Cancel marks a subscription cancelled.
func (r *Repository) Cancel(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = 'cancelled' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
