package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types. Amounts are signed: negative debits the named user,
// positive credits them.
const (
	TypePayment      = "payment"
	TypeEarning      = "earning"
	TypeRefund       = "refund"
	TypeCommission   = "commission"
	TypeSubscription = "subscription"
)

// Transaction is one immutable money movement. Rows are never updated or
// deleted; statements and revenue reports are computed over them.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Description   string     `json:"description"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	// TransactionID correlates this movement to the escrow payment or
	// subscription that caused it.
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}
