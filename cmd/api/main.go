package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	billingStore "github.com/luisfernandobanegasro/parcial/internal/billing/store"
	"github.com/luisfernandobanegasro/parcial/internal/config"
	"github.com/luisfernandobanegasro/parcial/internal/database"
	"github.com/luisfernandobanegasro/parcial/internal/events"
	"github.com/luisfernandobanegasro/parcial/internal/export"
	apiHttp "github.com/luisfernandobanegasro/parcial/internal/http"
	chargeHandler "github.com/luisfernandobanegasro/parcial/internal/http/charge"
	exportHandler "github.com/luisfernandobanegasro/parcial/internal/http/export"
	intentHandler "github.com/luisfernandobanegasro/parcial/internal/http/intent"
	matchingHandler "github.com/luisfernandobanegasro/parcial/internal/http/matching"
	paymentHandler "github.com/luisfernandobanegasro/parcial/internal/http/payment"
	reconHandler "github.com/luisfernandobanegasro/parcial/internal/http/reconciliation"
	statementHandler "github.com/luisfernandobanegasro/parcial/internal/http/statement"
	"github.com/luisfernandobanegasro/parcial/internal/matching"
	matchingStore "github.com/luisfernandobanegasro/parcial/internal/matching/store"
	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile/bankcsv"
	reconStore "github.com/luisfernandobanegasro/parcial/internal/reconcile/store"
	"github.com/luisfernandobanegasro/parcial/internal/units"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.ConnectionString(), database.DefaultPool)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	keys, err := qrpay.NewKeyring(cfg.QR.Secret, cfg.QR.KeyVersion, cfg.QR.OldestKeyVersion)
	if err != nil {
		slog.Error("failed to build qr keyring", "error", err)
		os.Exit(1)
	}

	publisher, closePublisher := events.Connect(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer closePublisher()

	unitDirectory := units.NewCache(units.NewStore(db), rdb, cfg.Redis.UnitTTL, logger)

	var (
		billingService = billing.NewService(
			billingStore.New(db),
			unitDirectory,
			qrpay.NewSigner(keys),
			billing.WithPublisher(publisher),
			billing.WithLogger(logger),
			billing.WithSettings(cfg.BillingSettings()),
		)
		matchingService  = matching.NewService(matchingStore.New(db), unitDirectory)
		reconcileService = reconcile.NewService(bankcsv.NewParser(), reconStore.New(db), billingService, matchingService, logger)
		exportService    = export.NewService(billingService, unitDirectory)
	)

	router := apiHttp.New(apiHttp.Options{
		Timeout:          cfg.Server.Timeout,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		Production:       cfg.App.Env == "production",
		WebhookSecret:    []byte(cfg.Webhook.JWTSecret),
		WebhookIssuer:    cfg.Webhook.Issuer,
		WebhookRateLimit: cfg.Webhook.RateLimit,
	}, apiHttp.Handlers{
		Charges:        chargeHandler.NewHandler(billingService, cfg.Billing.LateFeeDailyRate),
		Payments:       paymentHandler.NewHandler(billingService, cfg.Billing.AllowManualValidate),
		Intents:        intentHandler.NewHandler(billingService),
		Statements:     statementHandler.NewHandler(billingService),
		Exports:        exportHandler.NewHandler(exportService),
		Reconciliation: reconHandler.NewHandler(reconcileService),
		PayerMappings:  matchingHandler.NewHandler(matchingService),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", srv.Addr, "env", cfg.App.Env)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
