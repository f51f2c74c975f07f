package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/empowerwork/backend/internal/commission"
	"github.com/empowerwork/backend/internal/fault"
	"github.com/empowerwork/backend/internal/middleware"
)

// stubPayments returns canned results per action so the handler tests only
// cover envelope parsing, dispatch, and error mapping.
type stubPayments struct {
	depositErr error
	releaseErr error
	refundErr  error
	disputeErr error

	lastReason string
}

func (s *stubPayments) Deposit(_ context.Context, _, jobID, workerID uuid.UUID, amount int64, _ string) (*EscrowPayment, commission.Breakdown, error) {
	if s.depositErr != nil {
		return nil, commission.Breakdown{}, s.depositErr
	}
	b, _ := commission.Calculate(amount)
	return &EscrowPayment{ID: uuid.New(), JobID: jobID, WorkerID: workerID, Amount: amount, PlatformFee: b.PlatformFee, Status: StatusEscrowed}, b, nil
}

func (s *stubPayments) Release(context.Context, uuid.UUID, uuid.UUID) (*ReleaseResult, error) {
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	return &ReleaseResult{WorkerAmount: 4400, PlatformFee: 600}, nil
}

func (s *stubPayments) Refund(_ context.Context, _, _ uuid.UUID, reason string) (*RefundResult, error) {
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	s.lastReason = reason
	return &RefundResult{RefundAmount: 4900, RefundFee: 100}, nil
}

func (s *stubPayments) Dispute(_ context.Context, _, _ uuid.UUID, reason string) (*Dispute, error) {
	if s.disputeErr != nil {
		return nil, s.disputeErr
	}
	s.lastReason = reason
	return &Dispute{ID: uuid.New(), Reason: reason, Status: DisputeStatusOpen}, nil
}

func doAction(t *testing.T, h *Handler, caller uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = req.WithContext(middleware.WithUser(req.Context(), caller))
	rec := httptest.NewRecorder()
	h.HandleAction(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleAction_Deposit(t *testing.T) {
	h := NewHandler(&stubPayments{}, nil)

	body := fmt.Sprintf(`{"action":"deposit","jobId":%q,"workerId":%q,"amount":5000,"paymentMethod":"upi"}`,
		uuid.New(), uuid.New())
	rec := doAction(t, h, uuid.New(), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["success"] != true {
		t.Error("expected success true")
	}
	fee, ok := resp["feeCalculation"].(map[string]any)
	if !ok {
		t.Fatal("response missing feeCalculation")
	}
	if fee["platformFee"] != float64(600) { // 12% of 5000
		t.Errorf("platformFee: got %v, want 600", fee["platformFee"])
	}
}

func TestHandleAction_Release(t *testing.T) {
	h := NewHandler(&stubPayments{}, nil)

	body := fmt.Sprintf(`{"action":"release","jobId":%q}`, uuid.New())
	rec := doAction(t, h, uuid.New(), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["workerAmount"] != float64(4400) || resp["platformFee"] != float64(600) {
		t.Errorf("unexpected breakdown: %v", resp)
	}
}

func TestHandleAction_RefundPassesReason(t *testing.T) {
	stub := &stubPayments{}
	h := NewHandler(stub, nil)

	body := fmt.Sprintf(`{"action":"refund","jobId":%q,"reason":"worker unreachable"}`, uuid.New())
	rec := doAction(t, h, uuid.New(), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastReason != "worker unreachable" {
		t.Errorf("reason not forwarded: got %q", stub.lastReason)
	}
}

func TestHandleAction_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"conflict", fault.New(fault.StateConflict, "a payment is already escrowed for this job"), http.StatusConflict, "already escrowed"},
		{"authorization", fault.New(fault.Authorization, "only the employer can release payment"), http.StatusForbidden, "only the employer"},
		{"precondition", fault.New(fault.Precondition, "no payment found for this job"), http.StatusBadRequest, "no payment found"},
		{"unknown", fmt.Errorf("pg: connection reset"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubPayments{releaseErr: tc.err}, nil)
			body := fmt.Sprintf(`{"action":"release","jobId":%q}`, uuid.New())
			rec := doAction(t, h, uuid.New(), body)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("body %q should contain %q", rec.Body.String(), tc.wantBody)
			}
			// Internal detail must never leak.
			if tc.name == "unknown" && strings.Contains(rec.Body.String(), "connection reset") {
				t.Error("internal error detail leaked to the client")
			}
		})
	}
}

func TestHandleAction_BadEnvelope(t *testing.T) {
	h := NewHandler(&stubPayments{}, nil)
	caller := uuid.New()

	if rec := doAction(t, h, caller, `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: expected 400, got %d", rec.Code)
	}
	if rec := doAction(t, h, caller, `{"action":"deposit","jobId":"not-a-uuid"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad job id: expected 400, got %d", rec.Code)
	}
	body := fmt.Sprintf(`{"action":"transfer","jobId":%q}`, uuid.New())
	if rec := doAction(t, h, caller, body); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action: expected 400, got %d", rec.Code)
	}
}

func TestHandleAction_NoIdentity(t *testing.T) {
	h := NewHandler(&stubPayments{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleAction(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
