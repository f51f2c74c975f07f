package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

var (
	// PaymentOps counts escrow engine operations by action and outcome.
	PaymentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "empower_payment_operations_total",
		Help: "Escrow payment operations processed, by action and outcome.",
	}, []string{"action", "outcome"})

	// SubscriptionOps counts subscription billing operations.
	SubscriptionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "empower_subscription_operations_total",
		Help: "Subscription billing operations processed, by action and outcome.",
	}, []string{"action", "outcome"})

	// StateConflicts counts lost optimistic-concurrency races by entity.
	StateConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "empower_state_conflicts_total",
		Help: "Conditional state transitions that found no row in the expected state.",
	}, []string{"entity"})
)
