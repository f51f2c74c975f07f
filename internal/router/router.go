package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/empowerwork/backend/internal/auth"
	"github.com/empowerwork/backend/internal/escrow"
	"github.com/empowerwork/backend/internal/ledger"
	"github.com/empowerwork/backend/internal/middleware"
	"github.com/empowerwork/backend/internal/subscription"
)

// New returns the API handler. Payment, subscription and statement routes
// require a bearer token; auth and metrics do not.
func New(
	authHandler *auth.Handler,
	escrowHandler *escrow.Handler,
	subscriptionHandler *subscription.Handler,
	ledgerHandler *ledger.Handler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.BearerAuth(validator)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("POST /api/v1/payments", authed(http.HandlerFunc(escrowHandler.HandleAction)))
	mux.Handle("POST /api/v1/subscriptions", authed(http.HandlerFunc(subscriptionHandler.HandleAction)))
	mux.Handle("GET /api/v1/transactions", authed(http.HandlerFunc(ledgerHandler.ListMine)))

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
