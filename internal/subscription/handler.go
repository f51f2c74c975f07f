package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/metrics"
	"github.com/empowerwork/backend/internal/middleware"
)

// BillingService is the subscription surface the handler dispatches to.
type BillingService interface {
	Create(ctx context.Context, userID uuid.UUID, planType, planDuration, paymentMethod string) (*Subscription, Plan, error)
	Upgrade(ctx context.Context, userID uuid.UUID, planType, planDuration string) (*UpgradeResult, error)
	Cancel(ctx context.Context, userID uuid.UUID) (time.Time, error)
	Get(ctx context.Context, userID uuid.UUID) (*Status, error)
	FeatureJob(ctx context.Context, userID, jobID uuid.UUID, durationDays int) (*FeatureResult, error)
	Revenue(ctx context.Context, userID uuid.UUID, start, end time.Time) (*RevenueStats, error)
}

// Handler serves POST /api/v1/subscriptions with the shared action envelope.
type Handler struct {
	svc BillingService
	log *slog.Logger
}

func NewHandler(svc BillingService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type subscriptionRequest struct {
	Action          string     `json:"action"`
	PlanType        string     `json:"planType,omitempty"`
	PlanDuration    string     `json:"planDuration,omitempty"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	JobID           string     `json:"jobId,omitempty"`
	FeatureDuration int        `json:"featureDuration,omitempty"`
	DateRange       *dateRange `json:"dateRange,omitempty"`
}

func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		writeError(w, fault.New(fault.Authentication, "invalid authentication"))
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.Precondition, "invalid JSON"))
		return
	}

	switch req.Action {
	case "create_subscription":
		sub, plan, err := h.svc.Create(r.Context(), userID, req.PlanType, req.PlanDuration, req.PaymentMethod)
		if err != nil {
			h.reject(w, "create_subscription", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("create_subscription", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"subscription": sub,
			"plan":         plan,
			"message":      "Subscription created successfully",
		})

	case "upgrade_subscription":
		result, err := h.svc.Upgrade(r.Context(), userID, req.PlanType, req.PlanDuration)
		if err != nil {
			h.reject(w, "upgrade_subscription", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("upgrade_subscription", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"subscription":   result.Subscription,
			"upgradeAmount":  result.UpgradeAmount,
			"proratedCredit": result.ProratedCredit,
			"message":        "Subscription upgraded successfully",
		})

	case "cancel_subscription":
		accessUntil, err := h.svc.Cancel(r.Context(), userID)
		if err != nil {
			h.reject(w, "cancel_subscription", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("cancel_subscription", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"message":     "Subscription cancelled successfully",
			"accessUntil": accessUntil,
		})

	case "get_subscription":
		status, err := h.svc.Get(r.Context(), userID)
		if err != nil {
			h.reject(w, "get_subscription", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("get_subscription", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":               true,
			"subscription":          status.Subscription,
			"planDetails":           status.PlanDetails,
			"usageStats":            status.UsageStats,
			"hasActiveSubscription": status.HasActiveSubscription,
		})

	case "feature_job":
		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			h.reject(w, "feature_job", fault.New(fault.Precondition, "job ID and feature duration are required"))
			return
		}
		result, err := h.svc.FeatureJob(r.Context(), userID, jobID, req.FeatureDuration)
		if err != nil {
			h.reject(w, "feature_job", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("feature_job", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"featureCost":   result.FeatureCost,
			"featuredUntil": result.FeaturedUntil,
			"message":       "Job featured successfully",
		})

	case "get_revenue_stats":
		if req.DateRange == nil {
			h.reject(w, "get_revenue_stats", fault.New(fault.Precondition, "date range is required"))
			return
		}
		start, err1 := time.Parse(time.RFC3339, req.DateRange.StartDate)
		end, err2 := time.Parse(time.RFC3339, req.DateRange.EndDate)
		if err1 != nil || err2 != nil {
			h.reject(w, "get_revenue_stats", fault.New(fault.Precondition, "invalid date range"))
			return
		}
		stats, err := h.svc.Revenue(r.Context(), userID, start, end)
		if err != nil {
			h.reject(w, "get_revenue_stats", err)
			return
		}
		metrics.SubscriptionOps.WithLabelValues("get_revenue_stats", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"revenueStats": stats,
		})

	default:
		writeError(w, fault.New(fault.Precondition, "invalid action"))
	}
}

func (h *Handler) reject(w http.ResponseWriter, action string, err error) {
	switch fault.KindOf(err) {
	case fault.StateConflict:
		metrics.SubscriptionOps.WithLabelValues(action, metrics.OutcomeConflict).Inc()
	case fault.Unknown:
		metrics.SubscriptionOps.WithLabelValues(action, metrics.OutcomeError).Inc()
		h.log.Error("subscription action failed", "action", action, "error", err)
	default:
		metrics.SubscriptionOps.WithLabelValues(action, metrics.OutcomeRejected).Inc()
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if fault.KindOf(err) == fault.Unknown {
		msg = "internal error"
	}
	writeJSON(w, fault.HTTPStatus(err), map[string]any{
		"success": false,
		"error":   msg,
	})
}
