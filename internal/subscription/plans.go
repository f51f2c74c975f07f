package subscription

import (
	"time"

	"github.com/empowerwork/backend/internal/fault"
)

// Plan types and durations.
const (
	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"

	DurationMonthly   = "monthly"
	DurationQuarterly = "quarterly"
	DurationYearly    = "yearly"
)

// Unlimited marks a limit with no cap.
const Unlimited = -1

// FeatureDailyRate is the flat cost per day of featuring a job listing.
const FeatureDailyRate int64 = 50

// Limits are the per-plan usage caps.
type Limits struct {
	JobPostings          int  `json:"jobPostings"`
	ApplicationsPerMonth int  `json:"applicationsPerMonth"`
	VerifiedSkills       int  `json:"verifiedSkills"`
	PrioritySupport      bool `json:"prioritySupport"`
	AutoMatching         bool `json:"autoMatching"`
	Analytics            bool `json:"analytics"`
}

// Plan is one row of the static pricing catalog. Prices are whole rupees.
type Plan struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	MonthlyPrice   int64    `json:"monthlyPrice"`
	QuarterlyPrice int64    `json:"quarterlyPrice"`
	YearlyPrice    int64    `json:"yearlyPrice"`
	Features       []string `json:"features"`
	Limits         Limits   `json:"limits"`
}

var plans = map[string]Plan{
	PlanBasic: {
		Type:           PlanBasic,
		Name:           "Basic Plan",
		MonthlyPrice:   299,
		QuarterlyPrice: 799,
		YearlyPrice:    2999,
		Features: []string{
			"Post up to 5 jobs per month",
			"Basic job matching",
			"Standard support",
			"Basic analytics",
		},
		Limits: Limits{
			JobPostings:          5,
			ApplicationsPerMonth: 50,
			VerifiedSkills:       3,
		},
	},
	PlanPremium: {
		Type:           PlanPremium,
		Name:           "Premium Plan",
		MonthlyPrice:   599,
		QuarterlyPrice: 1599,
		YearlyPrice:    5999,
		Features: []string{
			"Post up to 20 jobs per month",
			"AI-powered auto-matching",
			"Priority support",
			"Advanced analytics",
			"Featured job listings",
			"Skills verification",
		},
		Limits: Limits{
			JobPostings:          20,
			ApplicationsPerMonth: 200,
			VerifiedSkills:       10,
			PrioritySupport:      true,
			AutoMatching:         true,
			Analytics:            true,
		},
	},
	PlanEnterprise: {
		Type:           PlanEnterprise,
		Name:           "Enterprise Plan",
		MonthlyPrice:   1999,
		QuarterlyPrice: 5399,
		YearlyPrice:    19999,
		Features: []string{
			"Unlimited job postings",
			"Custom branding",
			"Dedicated account manager",
			"API access",
			"Custom integrations",
			"White-label solution",
		},
		Limits: Limits{
			JobPostings:          Unlimited,
			ApplicationsPerMonth: Unlimited,
			VerifiedSkills:       Unlimited,
			PrioritySupport:      true,
			AutoMatching:         true,
			Analytics:            true,
		},
	},
}

// PlanFor looks up the catalog entry for a plan type.
func PlanFor(planType string) (Plan, bool) {
	p, ok := plans[planType]
	return p, ok
}

// PriceFor returns the catalog price of a plan for the given duration.
func PriceFor(planType, duration string) (int64, error) {
	plan, ok := plans[planType]
	if !ok {
		return 0, fault.New(fault.Precondition, "invalid plan type")
	}
	switch duration {
	case DurationMonthly:
		return plan.MonthlyPrice, nil
	case DurationQuarterly:
		return plan.QuarterlyPrice, nil
	case DurationYearly:
		return plan.YearlyPrice, nil
	default:
		return 0, fault.New(fault.Precondition, "invalid plan duration")
	}
}

// ExpiryFrom computes the subscription end date for a duration.
func ExpiryFrom(now time.Time, duration string) time.Time {
	switch duration {
	case DurationQuarterly:
		return now.AddDate(0, 3, 0)
	case DurationYearly:
		return now.AddDate(1, 0, 0)
	default:
		return now.AddDate(0, 1, 0)
	}
}
