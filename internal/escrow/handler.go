package escrow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/empowerwork/backend/internal/commission"
	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/metrics"
	"github.com/empowerwork/backend/internal/middleware"
)

// PaymentService is the escrow engine surface the handler dispatches to.
type PaymentService interface {
	Deposit(ctx context.Context, callerID, jobID, workerID uuid.UUID, amount int64, paymentMethod string) (*EscrowPayment, commission.Breakdown, error)
	Release(ctx context.Context, callerID, jobID uuid.UUID) (*ReleaseResult, error)
	Refund(ctx context.Context, callerID, jobID uuid.UUID, reason string) (*RefundResult, error)
	Dispute(ctx context.Context, callerID, jobID uuid.UUID, reason string) (*Dispute, error)
}

// Handler serves POST /api/v1/payments. All escrow actions share one request
// envelope naming the action and its job.
type Handler struct {
	svc PaymentService
	log *slog.Logger
}

func NewHandler(svc PaymentService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type paymentRequest struct {
	Action        string `json:"action"`
	JobID         string `json:"jobId"`
	WorkerID      string `json:"workerId,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		writeError(w, fault.New(fault.Authentication, "invalid authentication"))
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.Precondition, "invalid JSON"))
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		writeError(w, fault.New(fault.Precondition, "invalid job id"))
		return
	}

	switch req.Action {
	case "deposit":
		var workerID uuid.UUID
		if req.WorkerID != "" {
			if workerID, err = uuid.Parse(req.WorkerID); err != nil {
				h.reject(w, "deposit", fault.New(fault.Precondition, "invalid worker id"))
				return
			}
		}
		payment, breakdown, err := h.svc.Deposit(r.Context(), callerID, jobID, workerID, req.Amount, req.PaymentMethod)
		if err != nil {
			h.reject(w, "deposit", err)
			return
		}
		metrics.PaymentOps.WithLabelValues("deposit", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"data":           payment,
			"feeCalculation": breakdown,
		})

	case "release":
		result, err := h.svc.Release(r.Context(), callerID, jobID)
		if err != nil {
			h.reject(w, "release", err)
			return
		}
		metrics.PaymentOps.WithLabelValues("release", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "Payment released successfully",
			"workerAmount": result.WorkerAmount,
			"platformFee":  result.PlatformFee,
		})

	case "refund":
		result, err := h.svc.Refund(r.Context(), callerID, jobID, req.Reason)
		if err != nil {
			h.reject(w, "refund", err)
			return
		}
		metrics.PaymentOps.WithLabelValues("refund", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "Payment refunded successfully",
			"refundAmount": result.RefundAmount,
			"refundFee":    result.RefundFee,
		})

	case "dispute":
		dispute, err := h.svc.Dispute(r.Context(), callerID, jobID, req.Reason)
		if err != nil {
			h.reject(w, "dispute", err)
			return
		}
		metrics.PaymentOps.WithLabelValues("dispute", metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Dispute raised successfully",
			"disputeId": dispute.ID,
		})

	default:
		writeError(w, fault.New(fault.Precondition, "invalid action"))
	}
}

func (h *Handler) reject(w http.ResponseWriter, action string, err error) {
	switch fault.KindOf(err) {
	case fault.StateConflict:
		metrics.PaymentOps.WithLabelValues(action, metrics.OutcomeConflict).Inc()
	case fault.Unknown:
		metrics.PaymentOps.WithLabelValues(action, metrics.OutcomeError).Inc()
		h.log.Error("escrow action failed", "action", action, "error", err)
	default:
		metrics.PaymentOps.WithLabelValues(action, metrics.OutcomeRejected).Inc()
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
