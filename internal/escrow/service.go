package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/empowerwork/backend/internal/commission"
	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/jobs"
	"github.com/empowerwork/backend/internal/ledger"
	"github.com/empowerwork/backend/internal/metrics"
	"github.com/empowerwork/backend/internal/notify"
)

// Store is the escrow repository interface the service needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, p *EscrowPayment) error
	GetByJob(ctx context.Context, jobID uuid.UUID) (*EscrowPayment, error)
	HasActiveByJobTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (bool, error)
	MarkReleasedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundFee int64) (bool, error)
	MarkDisputedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	CreateDisputeTx(ctx context.Context, tx pgx.Tx, d *Dispute) error
}

// JobStore reads job ownership and writes back derived status fields.
type JobStore interface {
	GetByID(ctx context.Context, jobID uuid.UUID) (*jobs.Job, error)
	SetPaymentStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, paymentStatus string) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status, paymentStatus string) error
}

// LedgerRecorder appends money movements to the transaction log.
type LedgerRecorder interface {
	RecordTx(ctx context.Context, tx pgx.Tx, t *ledger.Transaction) error
}

// WorkerStats bumps the worker's cached earnings aggregates.
type WorkerStats interface {
	AddWorkerStatsTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID, earnings int64, jobsCompleted int) error
}

// Notifier persists a user notification and schedules delivery.
type Notifier interface {
	SendTx(ctx context.Context, tx pgx.Tx, n *notify.Notification) error
}

// Service is the escrow payment state machine: deposit creates an escrowed
// record, and release/refund/dispute are the only transitions out of it.
// Every operation runs in one database transaction so a failed precondition
// leaves no partial side effects.
type Service struct {
	store    Store
	jobs     JobStore
	ledger   LedgerRecorder
	stats    WorkerStats
	notifier Notifier
}

func NewService(store Store, jobStore JobStore, ledgerRec LedgerRecorder, stats WorkerStats, notifier Notifier) *Service {
	return &Service{store: store, jobs: jobStore, ledger: ledgerRec, stats: stats, notifier: notifier}
}

// ReleaseResult is the fee breakdown returned to the employer on release.
type ReleaseResult struct {
	WorkerAmount int64 `json:"workerAmount"`
	PlatformFee  int64 `json:"platformFee"`
}

// RefundResult is the breakdown returned on refund.
type RefundResult struct {
	RefundAmount int64 `json:"refundAmount"`
	RefundFee    int64 `json:"refundFee"`
}

// Deposit escrows amount for a job. Caller must own the job; the job must
// not already have an active escrow record.
func (s *Service) Deposit(ctx context.Context, callerID, jobID, workerID uuid.UUID, amount int64, paymentMethod string) (*EscrowPayment, commission.Breakdown, error) {
	if paymentMethod == "" {
		return nil, commission.Breakdown{}, fault.New(fault.Precondition, "amount and payment method required for deposit")
	}
	if workerID == uuid.Nil {
		return nil, commission.Breakdown{}, fault.New(fault.Precondition, "worker required for deposit")
	}
	breakdown, err := commission.Calculate(amount)
	if err != nil {
		return nil, commission.Breakdown{}, err
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, commission.Breakdown{}, fault.New(fault.Precondition, "job not found")
		}
		return nil, commission.Breakdown{}, err
	}
	if job.EmployerID != callerID {
		return nil, commission.Breakdown{}, fault.New(fault.Authorization, "only the job owner can deposit payment")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, commission.Breakdown{}, err
	}
	defer tx.Rollback(ctx)

	active, err := s.store.HasActiveByJobTx(ctx, tx, jobID)
	if err != nil {
		return nil, commission.Breakdown{}, err
	}
	if active {
		metrics.StateConflicts.WithLabelValues("escrow_payment").Inc()
		return nil, commission.Breakdown{}, fault.New(fault.StateConflict, "a payment is already escrowed for this job")
	}

	payment := &EscrowPayment{
		JobID:         jobID,
		EmployerID:    callerID,
		WorkerID:      workerID,
		Amount:        breakdown.TotalAmount,
		PlatformFee:   breakdown.PlatformFee,
		PaymentMethod: paymentMethod,
	}
	if err := s.store.CreateTx(ctx, tx, payment); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race against a concurrent deposit.
			metrics.StateConflicts.WithLabelValues("escrow_payment").Inc()
			return nil, commission.Breakdown{}, fault.New(fault.StateConflict, "a payment is already escrowed for this job")
		}
		return nil, commission.Breakdown{}, err
	}

	if err := s.jobs.SetPaymentStatusTx(ctx, tx, jobID, StatusEscrowed); err != nil {
		return nil, commission.Breakdown{}, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        callerID,
		JobID:         &jobID,
		Type:          ledger.TypePayment,
		Amount:        -breakdown.TotalAmount,
		Description:   fmt.Sprintf("Payment deposited for job: %s", job.Title),
		PaymentMethod: paymentMethod,
		TransactionID: payment.ID,
	}); err != nil {
		return nil, commission.Breakdown{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, commission.Breakdown{}, err
	}
	return payment, breakdown, nil
}

// Release pays out an escrowed payment to the worker, using the fee stored
// at deposit time. Only the employer may release, and only once: the
// conditional transition makes a retry or a concurrent call fail cleanly
// with a state conflict instead of double-paying.
func (s *Service) Release(ctx context.Context, callerID, jobID uuid.UUID) (*ReleaseResult, error) {
	payment, err := s.escrowedPayment(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if payment.EmployerID != callerID {
		return nil, fault.New(fault.Authorization, "only the employer can release payment")
	}

	workerAmount := payment.WorkerAmount()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkReleasedTx(ctx, tx, payment.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.StateConflicts.WithLabelValues("escrow_payment").Inc()
		return nil, fault.New(fault.StateConflict, "no escrowed payment found for this job")
	}

	if err := s.jobs.SetStatusTx(ctx, tx, jobID, "completed", StatusReleased); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        payment.WorkerID,
		JobID:         &jobID,
		Type:          ledger.TypeEarning,
		Amount:        workerAmount,
		Description:   "Payment received for completed job",
		TransactionID: payment.ID,
	}); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        payment.EmployerID,
		JobID:         &jobID,
		Type:          ledger.TypeCommission,
		Amount:        payment.PlatformFee,
		Description:   "Platform fee for job completion",
		TransactionID: payment.ID,
	}); err != nil {
		return nil, err
	}
	if err := s.stats.AddWorkerStatsTx(ctx, tx, payment.WorkerID, workerAmount, 1); err != nil {
		return nil, err
	}
	if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
		UserID:    payment.WorkerID,
		Title:     "Payment Released",
		Message:   fmt.Sprintf("You've received ₹%d for completing the job", workerAmount),
		Type:      notify.TypePayment,
		ActionURL: fmt.Sprintf("/jobs/%s", jobID),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ReleaseResult{WorkerAmount: workerAmount, PlatformFee: payment.PlatformFee}, nil
}

// Refund returns an escrowed payment to the employer, retaining the flat
// processing fee. The fee is recomputed here at the refund rate, not reused
// from deposit time.
func (s *Service) Refund(ctx context.Context, callerID, jobID uuid.UUID, reason string) (*RefundResult, error) {
	payment, err := s.escrowedPayment(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if payment.EmployerID != callerID {
		return nil, fault.New(fault.Authorization, "only the employer can request a refund")
	}

	refundFee := commission.RefundFee(payment.Amount)
	refundAmount := payment.Amount - refundFee
	if reason == "" {
		reason = "Worker did not perform"
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkRefundedTx(ctx, tx, payment.ID, refundFee)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.StateConflicts.WithLabelValues("escrow_payment").Inc()
		return nil, fault.New(fault.StateConflict, "no escrowed payment found for this job")
	}

	if err := s.jobs.SetStatusTx(ctx, tx, jobID, "cancelled", StatusRefunded); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        payment.EmployerID,
		JobID:         &jobID,
		Type:          ledger.TypeRefund,
		Amount:        refundAmount,
		Description:   fmt.Sprintf("Refund for cancelled job (%s)", reason),
		TransactionID: payment.ID,
	}); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        payment.EmployerID,
		JobID:         &jobID,
		Type:          ledger.TypeCommission,
		Amount:        refundFee,
		Description:   "Platform fee for refund processing",
		TransactionID: payment.ID,
	}); err != nil {
		return nil, err
	}
	if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
		UserID:    payment.EmployerID,
		Title:     "Payment Refunded",
		Message:   fmt.Sprintf("Refund of ₹%d processed for cancelled job", refundAmount),
		Type:      notify.TypePayment,
		ActionURL: fmt.Sprintf("/jobs/%s", jobID),
	}); err != nil {
		return nil, err
	}
	if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
		UserID:    payment.WorkerID,
		Title:     "Job Cancelled",
		Message:   "Job has been cancelled and payment refunded to employer",
		Type:      notify.TypeSystem,
		ActionURL: fmt.Sprintf("/jobs/%s", jobID),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &RefundResult{RefundAmount: refundAmount, RefundFee: refundFee}, nil
}

// Dispute freezes an escrowed payment pending manual review. Only the two
// parties on the payment may raise one. No money moves.
func (s *Service) Dispute(ctx context.Context, callerID, jobID uuid.UUID, reason string) (*Dispute, error) {
	if reason == "" {
		return nil, fault.New(fault.Precondition, "reason required for dispute")
	}
	payment, err := s.escrowedPayment(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if callerID != payment.EmployerID && callerID != payment.WorkerID {
		return nil, fault.New(fault.Authorization, "only the employer or worker can raise a dispute")
	}
	against := payment.WorkerID
	if callerID == payment.WorkerID {
		against = payment.EmployerID
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkDisputedTx(ctx, tx, payment.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.StateConflicts.WithLabelValues("escrow_payment").Inc()
		return nil, fault.New(fault.StateConflict, "no escrowed payment found for this job")
	}

	dispute := &Dispute{
		JobID:       jobID,
		RaisedBy:    callerID,
		AgainstUser: against,
		Reason:      reason,
	}
	if err := s.store.CreateDisputeTx(ctx, tx, dispute); err != nil {
		return nil, err
	}
	for _, userID := range []uuid.UUID{payment.EmployerID, payment.WorkerID} {
		if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
			UserID:    userID,
			Title:     "Payment Dispute Raised",
			Message:   "A dispute has been raised for this job. Our team will review it.",
			Type:      notify.TypeSystem,
			ActionURL: fmt.Sprintf("/disputes/%s", dispute.ID),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return dispute, nil
}

// escrowedPayment loads the job's payment and checks it is still escrowed.
// A missing record is a precondition failure; a terminal one is a conflict,
// which is also what a retried release/refund sees.
func (s *Service) escrowedPayment(ctx context.Context, jobID uuid.UUID) (*EscrowPayment, error) {
	payment, err := s.store.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fault.New(fault.Precondition, "no payment found for this job")
	}
	if payment.Status != StatusEscrowed {
		return nil, fault.New(fault.StateConflict, "no escrowed payment found for this job")
	}
	return payment, nil
}
