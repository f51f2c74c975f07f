package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/empowerwork/backend/internal/middleware"
)

// Handler serves GET /api/v1/transactions: the caller's statement.
type Handler struct {
	repo *Repository
	log  *slog.Logger
}

func NewHandler(repo *Repository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"success":false,"error":"invalid authentication"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list transactions", "error", err)
		http.Error(w, `{"success":false,"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "transactions": list})
}
