package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/empowerwork/backend/internal/auth"
	"github.com/empowerwork/backend/internal/config"
	"github.com/empowerwork/backend/internal/escrow"
	"github.com/empowerwork/backend/internal/jobs"
	"github.com/empowerwork/backend/internal/ledger"
	"github.com/empowerwork/backend/internal/middleware"
	"github.com/empowerwork/backend/internal/notify"
	"github.com/empowerwork/backend/internal/profile"
	"github.com/empowerwork/backend/internal/router"
	"github.com/empowerwork/backend/internal/subscription"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running and DATABASE_URL is set", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	// River migrations (queue tables only; application schema is db/schema.sql)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	escrowRepo := escrow.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	jobsRepo := jobs.NewRepository(pool)
	profileRepo := profile.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)
	subscriptionRepo := subscription.NewRepository(pool)

	// Notification delivery worker
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewDeliverWorker(notifyRepo, cfg.NotifyWebhookURL))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(notifyRepo, func(ctx context.Context, tx pgx.Tx, args notify.DeliverNotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	})

	// Services & handlers
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	escrowSvc := escrow.NewService(escrowRepo, jobsRepo, ledgerRepo, profileRepo, dispatcher)
	escrowHandler := escrow.NewHandler(escrowSvc, logger)

	subscriptionSvc := subscription.NewService(subscriptionRepo, jobsRepo, profileRepo, ledgerRepo, dispatcher)
	subscriptionHandler := subscription.NewHandler(subscriptionSvc, logger)

	ledgerHandler := ledger.NewHandler(ledgerRepo, logger)

	apiRouter := router.New(authHandler, escrowHandler, subscriptionHandler, ledgerHandler, authSvc)

	handler := middleware.RequestLogger(logger)(apiRouter)
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	// Start River client (delivers notifications)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
