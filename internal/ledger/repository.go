package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the append-only interface over the transactions table.
// There is deliberately no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordTx appends a transaction inside the caller's database transaction.
func (r *Repository) RecordTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, job_id, type, amount, description, payment_method, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.UserID, t.JobID, t.Type, t.Amount, t.Description, t.PaymentMethod, t.TransactionID).Scan(&t.CreatedAt)
}

// ListByUser returns the user's statement, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, job_id, type, amount, description, payment_method, transaction_id, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.JobID, &t.Type, &t.Amount, &t.Description, &t.PaymentMethod, &t.TransactionID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// SumByTypeBetween totals the absolute amounts of one transaction type in a
// date range. Used for revenue reporting.
func (r *Repository) SumByTypeBetween(ctx context.Context, txType string, start, end time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0) FROM transactions
		WHERE type = $1 AND created_at >= $2 AND created_at <= $3
	`, txType, start, end).Scan(&sum)
	return sum, err
}

// SumFeaturedListingsBetween totals featured-listing purchases in a range.
// These are payment-type rows written by the feature_job action.
func (r *Repository) SumFeaturedListingsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0) FROM transactions
		WHERE type = 'payment' AND description LIKE 'Featured job listing%'
		AND created_at >= $1 AND created_at <= $2
	`, start, end).Scan(&sum)
	return sum, err
}
