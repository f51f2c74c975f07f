package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Job is the slice of the job record the payment core reads and writes:
// ownership for authorization checks, and the derived status fields the
// escrow engine maintains.
type Job struct {
	ID            uuid.UUID
	EmployerID    uuid.UUID
	Title         string
	Status        string
	PaymentStatus string
	Featured      bool
	FeaturedUntil *time.Time
	CreatedAt     time.Time
}

// ErrNotFound is returned when no job exists with the given id.
var ErrNotFound = errors.New("job not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var j Job
	err := r.pool.QueryRow(ctx, `
		SELECT id, employer_id, title, status, payment_status, featured, featured_until, created_at
		FROM jobs WHERE id = $1
	`, jobID).Scan(&j.ID, &j.EmployerID, &j.Title, &j.Status, &j.PaymentStatus, &j.Featured, &j.FeaturedUntil, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SetPaymentStatusTx updates only the derived payment status.
func (r *Repository) SetPaymentStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, paymentStatus string) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET payment_status = $1, updated_at = now() WHERE id = $2
	`, paymentStatus, jobID)
	return err
}

// SetStatusTx updates the job status and payment status together, e.g.
// completed/released on escrow release, cancelled/refunded on refund.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status, paymentStatus string) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $1, payment_status = $2, updated_at = now() WHERE id = $3
	`, status, paymentStatus, jobID)
	return err
}

// SetFeaturedTx marks a job as featured until the given time.
func (r *Repository) SetFeaturedTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, until time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET featured = TRUE, featured_until = $1, updated_at = now() WHERE id = $2
	`, until, jobID)
	return err
}

// CountPostedSince counts jobs the employer created at or after since.
func (r *Repository) CountPostedSince(ctx context.Context, employerID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE employer_id = $1 AND created_at >= $2
	`, employerID, since).Scan(&n)
	return n, err
}

// CountApplicationsSince counts applications the user submitted at or after since.
func (r *Repository) CountApplicationsSince(ctx context.Context, applicantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM job_applications WHERE applicant_id = $1 AND created_at >= $2
	`, applicantID, since).Scan(&n)
	return n, err
}

// CountCompletedBetween counts jobs completed inside a date range.
func (r *Repository) CountCompletedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = 'completed' AND updated_at >= $1 AND updated_at <= $2
	`, start, end).Scan(&n)
	return n, err
}
