package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	billingStore "github.com/luisfernandobanegasro/parcial/internal/billing/store"
	"github.com/luisfernandobanegasro/parcial/internal/config"
	"github.com/luisfernandobanegasro/parcial/internal/database"
	"github.com/luisfernandobanegasro/parcial/internal/events"
	"github.com/luisfernandobanegasro/parcial/internal/jobs"
	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
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

	billingService := billing.NewService(
		billingStore.New(db),
		units.NewCache(units.NewStore(db), rdb, cfg.Redis.UnitTTL, logger),
		qrpay.NewSigner(keys),
		billing.WithPublisher(publisher),
		billing.WithLogger(logger),
		billing.WithSettings(cfg.BillingSettings()),
	)

	accrueTask, err := jobs.NewAccrueTask(jobs.AccruePayload{})
	if err != nil {
		slog.Error("failed to build accrual task", "error", err)
		os.Exit(1)
	}

	handlers := jobs.NewHandlers(billingService, billingService, cfg.Billing.LateFeeDailyRate, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Logger:      logger,
		Concurrency: cfg.Jobs.Concurrency,
		Handlers:    handlers.TaskHandlers(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.Jobs.AccrualCron, Task: accrueTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
			{Spec: cfg.Jobs.ExpiryCron, Task: jobs.NewExpireIntentsTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		slog.Error("failed to build worker", "error", err)
		os.Exit(1)
	}

	slog.Info("starting worker",
		"accrual_cron", cfg.Jobs.AccrualCron,
		"expiry_cron", cfg.Jobs.ExpiryCron,
		"concurrency", cfg.Jobs.Concurrency,
	)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
