package escrow

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

// CreateTx inserts a new escrow payment in status escrowed. The partial
// unique index on (job_id) WHERE status IN ('escrowed','disputed') makes a
// racing duplicate deposit fail with a unique violation.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, p *EscrowPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusEscrowed
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_payments (id, job_id, employer_id, worker_id, amount, platform_fee, status, payment_method, escrowed_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'escrowed', $7, now())
		RETURNING escrowed_at
	`, p.ID, p.JobID, p.EmployerID, p.WorkerID, p.Amount, p.PlatformFee, p.PaymentMethod).Scan(&p.EscrowedAt)
}

// GetByJob returns the most recent escrow payment for a job, or nil if the
// job never had one.
func (r *Repository) GetByJob(ctx context.Context, jobID uuid.UUID) (*EscrowPayment, error) {
	var p EscrowPayment
	err := r.pool.QueryRow(ctx, `
		SELECT id, job_id, employer_id, worker_id, amount, platform_fee, status, payment_method, escrowed_at, released_at, refunded_at
		FROM escrow_payments WHERE job_id = $1 ORDER BY escrowed_at DESC LIMIT 1
	`, jobID).Scan(&p.ID, &p.JobID, &p.EmployerID, &p.WorkerID, &p.Amount, &p.PlatformFee, &p.Status, &p.PaymentMethod, &p.EscrowedAt, &p.ReleasedAt, &p.RefundedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HasActiveByJobTx reports whether a non-terminal (escrowed or disputed)
// record exists for the job.
func (r *Repository) HasActiveByJobTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM escrow_payments WHERE job_id = $1 AND status IN ('escrowed', 'disputed')
		)
	`, jobID).Scan(&exists)
	return exists, err
}

// MarkReleasedTx transitions escrowed -> released. Returns false when the
// record is no longer escrowed, which is how the loser of a concurrent
// transition race finds out.
func (r *Repository) MarkReleasedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = 'released', released_at = now()
		WHERE id = $1 AND status = 'escrowed'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRefundedTx transitions escrowed -> refunded, overwriting platform_fee
// with the flat refund processing fee.
func (r *Repository) MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundFee int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = 'refunded', platform_fee = $1, refunded_at = now()
		WHERE id = $2 AND status = 'escrowed'
	`, refundFee, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDisputedTx transitions escrowed -> disputed.
func (r *Repository) MarkDisputedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_payments SET status = 'disputed'
		WHERE id = $1 AND status = 'escrowed'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateDisputeTx inserts the dispute row for a frozen payment.
func (r *Repository) CreateDisputeTx(ctx context.Context, tx pgx.Tx, d *Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = DisputeStatusOpen
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, job_id, raised_by, against_user, reason, status)
		VALUES ($1, $2, $3, $4, $5, 'open')
		RETURNING created_at
	`, d.ID, d.JobID, d.RaisedBy, d.AgainstUser, d.Reason).Scan(&d.CreatedAt)
}
