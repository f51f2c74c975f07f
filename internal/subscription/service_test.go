package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/jobs"
	"github.com/empowerwork/backend/internal/ledger"
	"github.com/empowerwork/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockStore struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (m *mockStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *mockStore) GetActiveByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == StatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CreateTx(_ context.Context, _ pgx.Tx, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.UserID == s.UserID && existing.Status == StatusActive {
			// Same failure the partial unique index produces.
			return &pgconn.PgError{Code: "23505"}
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = StatusActive
	s.AutoRenew = true
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *mockStore) CancelTx(_ context.Context, _ pgx.Tx, id uuid.UUID, stopAutoRenew bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id && s.Status == StatusActive {
			s.Status = StatusCancelled
			if stopAutoRenew {
				s.AutoRenew = false
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CountActive(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) byID(id uuid.UUID) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			cp := *s
			return &cp
		}
	}
	return nil
}

type mockJobs struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*jobs.Job
	posted    int
	applied   int
	completed int
}

func (m *mockJobs) GetByID(_ context.Context, id uuid.UUID) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJobs) SetFeaturedTx(_ context.Context, _ pgx.Tx, id uuid.UUID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Featured = true
		j.FeaturedUntil = &until
	}
	return nil
}

func (m *mockJobs) CountPostedSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return m.posted, nil
}
func (m *mockJobs) CountApplicationsSince(context.Context, uuid.UUID, time.Time) (int, error) {
	return m.applied, nil
}
func (m *mockJobs) CountCompletedBetween(context.Context, time.Time, time.Time) (int, error) {
	return m.completed, nil
}

type mockProfiles struct {
	mu        sync.Mutex
	userTypes map[uuid.UUID]string
	planTypes map[uuid.UUID]string
	created   int
}

func newMockProfiles() *mockProfiles {
	return &mockProfiles{userTypes: make(map[uuid.UUID]string), planTypes: make(map[uuid.UUID]string)}
}

func (m *mockProfiles) SetSubscriptionTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, planType string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planTypes[userID] = planType
	return nil
}

func (m *mockProfiles) UserType(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userTypes[userID], nil
}

func (m *mockProfiles) CountCreatedBetween(context.Context, time.Time, time.Time) (int, error) {
	return m.created, nil
}

type mockLedger struct {
	mu          sync.Mutex
	entries     []*ledger.Transaction
	sums        map[string]int64
	featuredSum int64
}

func (m *mockLedger) RecordTx(_ context.Context, _ pgx.Tx, t *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockLedger) SumByTypeBetween(_ context.Context, txType string, _, _ time.Time) (int64, error) {
	return m.sums[txType], nil
}

func (m *mockLedger) SumFeaturedListingsBetween(context.Context, time.Time, time.Time) (int64, error) {
	return m.featuredSum, nil
}

func (m *mockLedger) last() *ledger.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []*notify.Notification
}

func (m *mockNotifier) SendTx(_ context.Context, _ pgx.Tx, n *notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.sent = append(m.sent, &cp)
	return nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	store    *mockStore
	jobs     *mockJobs
	profiles *mockProfiles
	ledger   *mockLedger
	notifier *mockNotifier
	userID   uuid.UUID
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &mockStore{},
		jobs:     &mockJobs{jobs: make(map[uuid.UUID]*jobs.Job)},
		profiles: newMockProfiles(),
		ledger:   &mockLedger{sums: make(map[string]int64)},
		notifier: &mockNotifier{},
		userID:   uuid.New(),
		now:      time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.jobs, f.profiles, f.ledger, f.notifier)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate(t *testing.T) {
	f := newFixture(t)

	sub, plan, err := f.svc.Create(context.Background(), f.userID, PlanPremium, DurationMonthly, "upi")
	require.NoError(t, err)

	assert.Equal(t, int64(599), sub.Amount)
	assert.Equal(t, StatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, f.now.AddDate(0, 1, 0), sub.ExpiresAt)
	assert.Equal(t, "Premium Plan", plan.Name)

	// Billing entry is a negative subscription charge.
	entry := f.ledger.last()
	require.NotNil(t, entry)
	assert.Equal(t, ledger.TypeSubscription, entry.Type)
	assert.Equal(t, int64(-599), entry.Amount)
	assert.Equal(t, sub.ID, entry.TransactionID)

	// Profile cache updated, activation notification queued.
	assert.Equal(t, PlanPremium, f.profiles.planTypes[f.userID])
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "Subscription Activated!", f.notifier.sent[0].Title)
}

func TestCreate_SecondActive(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Create(context.Background(), f.userID, PlanBasic, DurationMonthly, "upi")
	require.NoError(t, err)

	_, _, err = f.svc.Create(context.Background(), f.userID, PlanPremium, DurationMonthly, "upi")
	require.Error(t, err)
	assert.Equal(t, fault.StateConflict, fault.KindOf(err))

	n, _ := f.store.CountActive(context.Background())
	assert.Equal(t, 1, n, "exactly one active subscription per user")
}

func TestCreate_InvalidPlan(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Create(context.Background(), f.userID, "platinum", DurationMonthly, "upi")
	require.Error(t, err)
	assert.Equal(t, fault.Precondition, fault.KindOf(err))

	_, _, err = f.svc.Create(context.Background(), f.userID, PlanBasic, DurationMonthly, "")
	require.Error(t, err)
	assert.Equal(t, fault.Precondition, fault.KindOf(err))
}

// ---------------------------------------------------------------------------
// Upgrade
// ---------------------------------------------------------------------------

func TestUpgrade_Proration(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Create(context.Background(), f.userID, PlanBasic, DurationMonthly, "upi")
	require.NoError(t, err)
	oldID := f.store.subs[0].ID

	// 15 whole days left on a 299 plan: credit = 299*15/30 = 149 (truncated).
	f.now = f.store.subs[0].ExpiresAt.AddDate(0, 0, -15)

	res, err := f.svc.Upgrade(context.Background(), f.userID, PlanPremium, DurationMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(149), res.ProratedCredit)
	assert.Equal(t, int64(450), res.UpgradeAmount)

	// Old row cancelled with auto-renew intact; new row active.
	old := f.store.byID(oldID)
	assert.Equal(t, StatusCancelled, old.Status)
	assert.True(t, old.AutoRenew)
	active, _ := f.store.GetActiveByUser(context.Background(), f.userID)
	require.NotNil(t, active)
	assert.Equal(t, PlanPremium, active.PlanType)
	assert.Equal(t, f.now.AddDate(0, 1, 0), active.ExpiresAt)

	// Charge is the prorated difference, not the full price.
	entry := f.ledger.last()
	assert.Equal(t, int64(-450), entry.Amount)
	assert.Equal(t, "Upgraded from Basic Plan to Premium Plan", entry.Description)
}

func TestUpgrade_PartialDayRoundsUp(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Create(context.Background(), f.userID, PlanBasic, DurationMonthly, "upi")
	require.NoError(t, err)

	// 14 days + 1 hour remaining counts as 15 days.
	f.now = f.store.subs[0].ExpiresAt.Add(-14*24*time.Hour - time.Hour)

	res, err := f.svc.Upgrade(context.Background(), f.userID, PlanPremium, DurationMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(149), res.ProratedCredit)
}

func TestUpgrade_CreditClampedToZero(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Create(context.Background(), f.userID, PlanEnterprise, DurationYearly, "upi")
	require.NoError(t, err)

	// A big unused credit never turns an upgrade into a payout.
	res, err := f.svc.Upgrade(context.Background(), f.userID, PlanBasic, DurationMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.UpgradeAmount)
	assert.Equal(t, int64(0), f.ledger.last().Amount)
}

func TestUpgrade_ExpiredCredit(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Create(context.Background(), f.userID, PlanBasic, DurationMonthly, "upi")
	require.NoError(t, err)

	// Past expiry: no credit, full price charged.
	f.now = f.store.subs[0].ExpiresAt.AddDate(0, 0, 3)

	res, err := f.svc.Upgrade(context.Background(), f.userID, PlanPremium, DurationMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.ProratedCredit)
	assert.Equal(t, int64(599), res.UpgradeAmount)
}

func TestUpgrade_NoActive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Upgrade(context.Background(), f.userID, PlanPremium, DurationMonthly)
	require.Error(t, err)
	assert.Equal(t, fault.Precondition, fault.KindOf(err))
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancel(t *testing.T) {
	f := newFixture(t)
	sub, _, err := f.svc.Create(context.Background(), f.userID, PlanBasic, DurationQuarterly, "upi")
	require.NoError(t, err)

	expiresAt, err := f.svc.Cancel(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ExpiresAt, expiresAt, "access runs until the original expiry")

	row := f.store.byID(sub.ID)
	assert.Equal(t, StatusCancelled, row.Status)
	assert.False(t, row.AutoRenew)

	require.Len(t, f.notifier.sent, 2) // activation + cancellation
	assert.Equal(t, "Subscription Cancelled", f.notifier.sent[1].Title)

	// Cancelling again is a precondition failure, not a repeat.
	_, err = f.svc.Cancel(context.Background(), f.userID)
	require.Error(t, err)
	assert.Equal(t, fault.Precondition, fault.KindOf(err))
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGet(t *testing.T) {
	f := newFixture(t)

	status, err := f.svc.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.False(t, status.HasActiveSubscription)
	assert.Nil(t, status.Subscription)

	_, _, err = f.svc.Create(context.Background(), f.userID, PlanPremium, DurationMonthly, "upi")
	require.NoError(t, err)
	f.jobs.posted = 3
	f.jobs.applied = 7

	status, err = f.svc.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, status.HasActiveSubscription)
	require.NotNil(t, status.PlanDetails)
	assert.Equal(t, "Premium Plan", status.PlanDetails.Name)
	require.NotNil(t, status.UsageStats)
	assert.Equal(t, 3, status.UsageStats.JobPostingsThisMonth)
	assert.Equal(t, 7, status.UsageStats.ApplicationsThisMonth)
	assert.Equal(t, 20, status.UsageStats.JobPostingsLimit)
}

// ---------------------------------------------------------------------------
// FeatureJob
// ---------------------------------------------------------------------------

func TestFeatureJob(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.jobs[jobID] = &jobs.Job{ID: jobID, EmployerID: f.userID, Title: "Paint fence"}

	res, err := f.svc.FeatureJob(context.Background(), f.userID, jobID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(350), res.FeatureCost) // 7 days at the daily rate
	assert.Equal(t, f.now.AddDate(0, 0, 7), res.FeaturedUntil)

	j, _ := f.jobs.GetByID(context.Background(), jobID)
	assert.True(t, j.Featured)
	require.NotNil(t, j.FeaturedUntil)
	assert.Equal(t, res.FeaturedUntil, *j.FeaturedUntil)

	entry := f.ledger.last()
	assert.Equal(t, int64(-350), entry.Amount)
	assert.Equal(t, "Featured job listing for 7 days", entry.Description)
	assert.Equal(t, "account_balance", entry.PaymentMethod)
}

func TestFeatureJob_NotOwner(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	f.jobs.jobs[jobID] = &jobs.Job{ID: jobID, EmployerID: uuid.New()}

	_, err := f.svc.FeatureJob(context.Background(), f.userID, jobID, 7)
	require.Error(t, err)
	assert.Equal(t, fault.Authorization, fault.KindOf(err))
}

func TestFeatureJob_BadDuration(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FeatureJob(context.Background(), f.userID, uuid.New(), 0)
	require.Error(t, err)
	assert.Equal(t, fault.Precondition, fault.KindOf(err))
}

// ---------------------------------------------------------------------------
// Revenue
// ---------------------------------------------------------------------------

func TestRevenue(t *testing.T) {
	f := newFixture(t)
	f.profiles.userTypes[f.userID] = "admin"
	f.ledger.sums[ledger.TypeSubscription] = 5000
	f.ledger.sums[ledger.TypeCommission] = 1200
	f.ledger.featuredSum = 350
	f.profiles.created = 12
	f.jobs.completed = 4

	start := f.now.AddDate(0, -1, 0)
	stats, err := f.svc.Revenue(context.Background(), f.userID, start, f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(6550), stats.TotalRevenue)
	assert.Equal(t, int64(5000), stats.SubscriptionRevenue)
	assert.Equal(t, int64(1200), stats.CommissionRevenue)
	assert.Equal(t, int64(350), stats.FeaturedListingsRevenue)
	assert.Equal(t, 12, stats.NewUsers)
	assert.Equal(t, 4, stats.CompletedJobs)
}

func TestRevenue_NonAdmin(t *testing.T) {
	f := newFixture(t)
	f.profiles.userTypes[f.userID] = "employer"

	_, err := f.svc.Revenue(context.Background(), f.userID, f.now.AddDate(0, -1, 0), f.now)
	require.Error(t, err)
	assert.Equal(t, fault.Authorization, fault.KindOf(err))
}
