package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetActiveByUser returns the user's active subscription, or nil.
func (r *Repository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var s Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, plan_type, plan_duration, amount, status, payment_method, expires_at, auto_renew, created_at
		FROM subscriptions WHERE user_id = $1 AND status = 'active'
	`, userID).Scan(&s.ID, &s.UserID, &s.PlanType, &s.PlanDuration, &s.Amount, &s.Status, &s.PaymentMethod, &s.ExpiresAt, &s.AutoRenew, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateTx inserts a new active subscription. The partial unique index on
// (user_id) WHERE status = 'active' rejects a racing duplicate.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, s *Subscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = StatusActive
	s.AutoRenew = true
	return tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_type, plan_duration, amount, status, payment_method, expires_at, auto_renew)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, TRUE)
		RETURNING created_at
	`, s.ID, s.UserID, s.PlanType, s.PlanDuration, s.Amount, s.PaymentMethod, s.ExpiresAt).Scan(&s.CreatedAt)
}

// CancelTx transitions active -> cancelled. stopAutoRenew additionally turns
// off renewal (user-initiated cancellation); upgrades leave it untouched.
// Returns false if the row was no longer active.
func (r *Repository) CancelTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, stopAutoRenew bool) (bool, error) {
	query := `UPDATE subscriptions SET status = 'cancelled' WHERE id = $1 AND status = 'active'`
	if stopAutoRenew {
		query = `UPDATE subscriptions SET status = 'cancelled', auto_renew = FALSE WHERE id = $1 AND status = 'active'`
	}
	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountActive counts active subscriptions across all users.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`).Scan(&n)
	return n, err
}
