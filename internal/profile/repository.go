package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no profile exists for the given user.
var ErrNotFound = errors.New("profile not found")

// Repository reads and writes the cached aggregate fields on user profiles.
// The authoritative money records live in the transaction log; these columns
// exist so listing pages don't recompute sums.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AddWorkerStatsTx bumps the worker's cumulative earnings and completed-job
// count. Idempotency is the escrow state machine's responsibility: this is
// only reached once per job because only one release transition can commit.
func (r *Repository) AddWorkerStatsTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID, earnings int64, jobsCompleted int) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles
		SET total_earnings = COALESCE(total_earnings, 0) + $1,
		    total_jobs_completed = COALESCE(total_jobs_completed, 0) + $2,
		    updated_at = now()
		WHERE id = $3
	`, earnings, jobsCompleted, workerID)
	return err
}

// SetSubscriptionTx caches the active plan type and expiry on the profile.
func (r *Repository) SetSubscriptionTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, planType string, expiresAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles SET subscription_type = $1, subscription_expires_at = $2, updated_at = now()
		WHERE id = $3
	`, planType, expiresAt, userID)
	return err
}

// UserType returns the profile's user_type (worker, employer or admin).
func (r *Repository) UserType(ctx context.Context, userID uuid.UUID) (string, error) {
	var userType string
	err := r.pool.QueryRow(ctx, `SELECT user_type FROM profiles WHERE id = $1`, userID).Scan(&userType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return userType, err
}

// CountCreatedBetween counts profiles created inside a date range.
func (r *Repository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM profiles WHERE created_at >= $1 AND created_at <= $2
	`, start, end).Scan(&n)
	return n, err
}
