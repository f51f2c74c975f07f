package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/jobs"
	"github.com/empowerwork/backend/internal/ledger"
	"github.com/empowerwork/backend/internal/metrics"
	"github.com/empowerwork/backend/internal/notify"
)

// Store is the subscription repository interface the service needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	CreateTx(ctx context.Context, tx pgx.Tx, s *Subscription) error
	CancelTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, stopAutoRenew bool) (bool, error)
	CountActive(ctx context.Context) (int, error)
}

// JobStore covers the job reads/writes subscription billing performs:
// ownership for feature_job, and usage/report counters.
type JobStore interface {
	GetByID(ctx context.Context, jobID uuid.UUID) (*jobs.Job, error)
	SetFeaturedTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, until time.Time) error
	CountPostedSince(ctx context.Context, employerID uuid.UUID, since time.Time) (int, error)
	CountApplicationsSince(ctx context.Context, applicantID uuid.UUID, since time.Time) (int, error)
	CountCompletedBetween(ctx context.Context, start, end time.Time) (int, error)
}

// ProfileStore caches plan fields on the user profile and answers the admin
// check for revenue reporting.
type ProfileStore interface {
	SetSubscriptionTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, planType string, expiresAt time.Time) error
	UserType(ctx context.Context, userID uuid.UUID) (string, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)
}

// LedgerStore appends billing transactions and aggregates revenue.
type LedgerStore interface {
	RecordTx(ctx context.Context, tx pgx.Tx, t *ledger.Transaction) error
	SumByTypeBetween(ctx context.Context, txType string, start, end time.Time) (int64, error)
	SumFeaturedListingsBetween(ctx context.Context, start, end time.Time) (int64, error)
}

// Notifier persists a user notification and schedules delivery.
type Notifier interface {
	SendTx(ctx context.Context, tx pgx.Tx, n *notify.Notification) error
}

// Service implements subscription billing: create/upgrade/cancel plus the
// featured-job purchase and revenue reporting. Mirrors the escrow engine's
// one-transaction-per-operation discipline.
type Service struct {
	store    Store
	jobs     JobStore
	profiles ProfileStore
	ledger   LedgerStore
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, jobStore JobStore, profiles ProfileStore, ledgerStore LedgerStore, notifier Notifier) *Service {
	return &Service{
		store:    store,
		jobs:     jobStore,
		profiles: profiles,
		ledger:   ledgerStore,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create activates a new subscription for a user with none active.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, planType, planDuration, paymentMethod string) (*Subscription, Plan, error) {
	if planType == "" || planDuration == "" || paymentMethod == "" {
		return nil, Plan{}, fault.New(fault.Precondition, "plan type, duration, and payment method are required")
	}
	price, err := PriceFor(planType, planDuration)
	if err != nil {
		return nil, Plan{}, err
	}
	plan, _ := PlanFor(planType)

	existing, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, Plan{}, err
	}
	if existing != nil {
		return nil, Plan{}, fault.New(fault.StateConflict, "user already has an active subscription; upgrade or cancel first")
	}

	now := s.now()
	sub := &Subscription{
		UserID:        userID,
		PlanType:      planType,
		PlanDuration:  planDuration,
		Amount:        price,
		PaymentMethod: paymentMethod,
		ExpiresAt:     ExpiryFrom(now, planDuration),
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, Plan{}, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.CreateTx(ctx, tx, sub); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			metrics.StateConflicts.WithLabelValues("subscription").Inc()
			return nil, Plan{}, fault.New(fault.StateConflict, "user already has an active subscription; upgrade or cancel first")
		}
		return nil, Plan{}, err
	}
	if err := s.profiles.SetSubscriptionTx(ctx, tx, userID, planType, sub.ExpiresAt); err != nil {
		return nil, Plan{}, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        userID,
		Type:          ledger.TypeSubscription,
		Amount:        -price,
		Description:   fmt.Sprintf("%s subscription (%s)", plan.Name, planDuration),
		PaymentMethod: paymentMethod,
		TransactionID: sub.ID,
	}); err != nil {
		return nil, Plan{}, err
	}
	if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
		UserID:  userID,
		Title:   "Subscription Activated!",
		Message: fmt.Sprintf("Your %s subscription is now active. Enjoy premium features!", plan.Name),
		Type:    notify.TypeSystem,
	}); err != nil {
		return nil, Plan{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, Plan{}, err
	}
	return sub, plan, nil
}

// UpgradeResult carries the new subscription and the proration breakdown.
type UpgradeResult struct {
	Subscription   *Subscription `json:"subscription"`
	UpgradeAmount  int64         `json:"upgradeAmount"`
	ProratedCredit int64         `json:"proratedCredit"`
}

// Upgrade replaces the active subscription with a new plan, crediting the
// unused remainder of the old one. The proration treats every duration as
// 30-day months; that approximation is part of the product behavior.
func (s *Service) Upgrade(ctx context.Context, userID uuid.UUID, planType, planDuration string) (*UpgradeResult, error) {
	if planType == "" || planDuration == "" {
		return nil, fault.New(fault.Precondition, "plan type and duration are required")
	}
	newPrice, err := PriceFor(planType, planDuration)
	if err != nil {
		return nil, err
	}
	newPlan, _ := PlanFor(planType)

	current, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fault.New(fault.Precondition, "no active subscription found; create a new subscription instead")
	}
	currentPlan, _ := PlanFor(current.PlanType)

	now := s.now()
	daysRemaining := int64(0)
	if remaining := current.ExpiresAt.Sub(now); remaining > 0 {
		daysRemaining = int64((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	proratedCredit := current.Amount * daysRemaining / 30
	upgradeAmount := newPrice - proratedCredit
	if upgradeAmount < 0 {
		upgradeAmount = 0
	}

	sub := &Subscription{
		UserID:        userID,
		PlanType:      planType,
		PlanDuration:  planDuration,
		Amount:        newPrice,
		PaymentMethod: current.PaymentMethod,
		ExpiresAt:     ExpiryFrom(now, planDuration),
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.CancelTx(ctx, tx, current.ID, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.StateConflicts.WithLabelValues("subscription").Inc()
		return nil, fault.New(fault.StateConflict, "no active subscription found")
	}
	if err := s.store.CreateTx(ctx, tx, sub); err != nil {
		return nil, err
	}
	if err := s.profiles.SetSubscriptionTx(ctx, tx, userID, planType, sub.ExpiresAt); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        userID,
		Type:          ledger.TypeSubscription,
		Amount:        -upgradeAmount,
		Description:   fmt.Sprintf("Upgraded from %s to %s", currentPlan.Name, newPlan.Name),
		PaymentMethod: current.PaymentMethod,
		TransactionID: sub.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &UpgradeResult{Subscription: sub, UpgradeAmount: upgradeAmount, ProratedCredit: proratedCredit}, nil
}

// Cancel soft-closes the active subscription: the row is marked cancelled
// with renewal off, but access lasts until the expiry date returned.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if sub == nil {
		return time.Time{}, fault.New(fault.Precondition, "no active subscription found")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.CancelTx(ctx, tx, sub.ID, true)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		metrics.StateConflicts.WithLabelValues("subscription").Inc()
		return time.Time{}, fault.New(fault.StateConflict, "no active subscription found")
	}
	if err := s.notifier.SendTx(ctx, tx, &notify.Notification{
		UserID:  userID,
		Title:   "Subscription Cancelled",
		Message: fmt.Sprintf("Your subscription has been cancelled. You can continue using premium features until %s.", sub.ExpiresAt.Format("2 Jan 2006")),
		Type:    notify.TypeSystem,
	}); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, err
	}
	return sub.ExpiresAt, nil
}

// UsageStats are this calendar month's usage counters against plan limits.
type UsageStats struct {
	JobPostingsThisMonth  int `json:"jobPostingsThisMonth"`
	ApplicationsThisMonth int `json:"applicationsThisMonth"`
	JobPostingsLimit      int `json:"jobPostingsLimit"`
	ApplicationsLimit     int `json:"applicationsLimit"`
}

// Status is the read-only view served by get_subscription.
type Status struct {
	Subscription          *Subscription `json:"subscription"`
	PlanDetails           *Plan         `json:"planDetails"`
	UsageStats            *UsageStats   `json:"usageStats"`
	HasActiveSubscription bool          `json:"hasActiveSubscription"`
}

// Get returns the caller's active subscription, its plan's feature/limit
// table, and usage counters since the start of the current calendar month.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Status, error) {
	sub, err := s.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &Status{Subscription: sub, HasActiveSubscription: sub != nil}
	if sub == nil {
		return status, nil
	}

	plan, ok := PlanFor(sub.PlanType)
	if !ok {
		return status, nil
	}
	status.PlanDetails = &plan

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	posted, err := s.jobs.CountPostedSince(ctx, userID, monthStart)
	if err != nil {
		return nil, err
	}
	applied, err := s.jobs.CountApplicationsSince(ctx, userID, monthStart)
	if err != nil {
		return nil, err
	}
	status.UsageStats = &UsageStats{
		JobPostingsThisMonth:  posted,
		ApplicationsThisMonth: applied,
		JobPostingsLimit:      plan.Limits.JobPostings,
		ApplicationsLimit:     plan.Limits.ApplicationsPerMonth,
	}
	return status, nil
}

// FeatureResult is the receipt for a featured-job purchase.
type FeatureResult struct {
	FeatureCost   int64     `json:"featureCost"`
	FeaturedUntil time.Time `json:"featuredUntil"`
}

// FeatureJob buys a time-boxed visibility boost for a job the caller owns.
// This is a direct platform purchase charged to the account balance; no
// escrow is involved.
func (s *Service) FeatureJob(ctx context.Context, userID, jobID uuid.UUID, durationDays int) (*FeatureResult, error) {
	if durationDays <= 0 {
		return nil, fault.New(fault.Precondition, "job ID and feature duration are required")
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, fault.New(fault.Precondition, "job not found")
		}
		return nil, err
	}
	if job.EmployerID != userID {
		return nil, fault.New(fault.Authorization, "you do not have permission to feature this job")
	}

	cost := int64(durationDays) * FeatureDailyRate
	until := s.now().AddDate(0, 0, durationDays)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.jobs.SetFeaturedTx(ctx, tx, jobID, until); err != nil {
		return nil, err
	}
	if err := s.ledger.RecordTx(ctx, tx, &ledger.Transaction{
		UserID:        userID,
		JobID:         &jobID,
		Type:          ledger.TypePayment,
		Amount:        -cost,
		Description:   fmt.Sprintf("Featured job listing for %d days", durationDays),
		PaymentMethod: "account_balance",
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &FeatureResult{FeatureCost: cost, FeaturedUntil: until}, nil
}

// RevenueStats is the admin-only aggregate over the transaction log.
type RevenueStats struct {
	TotalRevenue            int64     `json:"totalRevenue"`
	SubscriptionRevenue     int64     `json:"subscriptionRevenue"`
	CommissionRevenue       int64     `json:"commissionRevenue"`
	FeaturedListingsRevenue int64     `json:"featuredListingsRevenue"`
	NewUsers                int       `json:"newUsers"`
	ActiveSubscriptions     int       `json:"activeSubscriptions"`
	CompletedJobs           int       `json:"completedJobs"`
	StartDate               time.Time `json:"startDate"`
	EndDate                 time.Time `json:"endDate"`
}

// Revenue aggregates platform revenue by source over a date range. Reads
// only; restricted to admin users.
func (s *Service) Revenue(ctx context.Context, userID uuid.UUID, start, end time.Time) (*RevenueStats, error) {
	userType, err := s.profiles.UserType(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userType != "admin" {
		return nil, fault.New(fault.Authorization, "insufficient privileges to view revenue statistics")
	}

	stats := &RevenueStats{StartDate: start, EndDate: end}
	if stats.SubscriptionRevenue, err = s.ledger.SumByTypeBetween(ctx, ledger.TypeSubscription, start, end); err != nil {
		return nil, err
	}
	if stats.CommissionRevenue, err = s.ledger.SumByTypeBetween(ctx, ledger.TypeCommission, start, end); err != nil {
		return nil, err
	}
	if stats.FeaturedListingsRevenue, err = s.ledger.SumFeaturedListingsBetween(ctx, start, end); err != nil {
		return nil, err
	}
	stats.TotalRevenue = stats.SubscriptionRevenue + stats.CommissionRevenue + stats.FeaturedListingsRevenue

	if stats.NewUsers, err = s.profiles.CountCreatedBetween(ctx, start, end); err != nil {
		return nil, err
	}
	if stats.ActiveSubscriptions, err = s.store.CountActive(ctx); err != nil {
		return nil, err
	}
	if stats.CompletedJobs, err = s.jobs.CountCompletedBetween(ctx, start, end); err != nil {
		return nil, err
	}
	return stats, nil
}
