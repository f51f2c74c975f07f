package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses. A cancelled subscription stays usable until
// ExpiresAt; the row itself is never mutated back to active.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Subscription is one billing period for a user. Upgrades cancel the old row
// and insert a new one, preserving billing history; at most one row per user
// is active at a time.
type Subscription struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	PlanType      string    `json:"plan_type"`
	PlanDuration  string    `json:"plan_duration"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	ExpiresAt     time.Time `json:"expires_at"`
	AutoRenew     bool      `json:"auto_renew"`
	CreatedAt     time.Time `json:"created_at"`
}
