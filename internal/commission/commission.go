package commission

import "github.com/empowerwork/backend/internal/fault"

// Tiered commission rates, in percent, applied to deposits and reused at
// release time. Amounts are whole rupees.
const (
	tierOneLimit = 5000
	tierTwoLimit = 25000

	tierOnePct   = 12
	tierTwoPct   = 8
	tierThreePct = 5

	// RefundFeePct is the flat processing fee retained when an escrowed
	// payment is refunded to the employer. Intentionally lower than the
	// tiered schedule.
	RefundFeePct = 2
)

// Breakdown is the fee split for a gross job amount.
type Breakdown struct {
	TotalAmount   int64 `json:"totalAmount"`
	FeePercentage int64 `json:"platformFeePercentage"`
	PlatformFee   int64 `json:"platformFee"`
	WorkerAmount  int64 `json:"workerAmount"`
}

// Calculate splits amount into the platform fee and the worker payout using
// the tiered schedule. The fee is rounded half-up to the nearest rupee, so
// PlatformFee + WorkerAmount always equals TotalAmount exactly.
func Calculate(amount int64) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fault.New(fault.Precondition, "amount must be a positive number")
	}
	var pct int64
	switch {
	case amount <= tierOneLimit:
		pct = tierOnePct
	case amount <= tierTwoLimit:
		pct = tierTwoPct
	default:
		pct = tierThreePct
	}
	fee := roundPct(amount, pct)
	return Breakdown{
		TotalAmount:   amount,
		FeePercentage: pct,
		PlatformFee:   fee,
		WorkerAmount:  amount - fee,
	}, nil
}

// RefundFee returns the flat processing fee retained on a refund.
func RefundFee(amount int64) int64 {
	return roundPct(amount, RefundFeePct)
}

// roundPct computes amount*pct/100 rounded half-up, in integer arithmetic.
func roundPct(amount, pct int64) int64 {
	return (amount*pct + 50) / 100
}
