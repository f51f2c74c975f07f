package escrow

import (
	"time"

	"github.com/google/uuid"
)

// EscrowPayment statuses. A record is created directly in escrowed; released
// and refunded are terminal; disputed is terminal for this engine (resolution
// is a manual back-office process).
const (
	StatusEscrowed = "escrowed"
	StatusReleased = "released"
	StatusRefunded = "refunded"
	StatusDisputed = "disputed"
)

// EscrowPayment holds one job's deposited funds. At most one record per job
// may be in a non-terminal status at a time; the partial unique index on
// escrow_payments backs that invariant.
type EscrowPayment struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	EmployerID uuid.UUID `json:"employer_id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	// Amount is the gross deposit; PlatformFee the commission computed at
	// deposit time (overwritten with the flat processing fee on refund).
	Amount        int64      `json:"amount"`
	PlatformFee   int64      `json:"platform_fee"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	EscrowedAt    time.Time  `json:"escrowed_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
}

// WorkerAmount is the payout the worker receives on release.
func (p *EscrowPayment) WorkerAmount() int64 {
	return p.Amount - p.PlatformFee
}

// DisputeStatusOpen is the only status this engine writes; resolution states
// are managed externally.
const DisputeStatusOpen = "open"

// Dispute freezes an escrowed payment pending manual review.
type Dispute struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	RaisedBy    uuid.UUID `json:"raised_by"`
	AgainstUser uuid.UUID `json:"against_user"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
