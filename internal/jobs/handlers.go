package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

type LateFeeAccruer interface {
	AccrueLateFees(ctx context.Context, asOf time.Time, dailyRate decimal.Decimal) (int, error)
}

type IntentExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Handlers adapts billing operations to asynq task handlers.
type Handlers struct {
	accruer     LateFeeAccruer
	expirer     IntentExpirer
	defaultRate decimal.Decimal
	logger      *slog.Logger
	clock       func() time.Time
}

func NewHandlers(accruer LateFeeAccruer, expirer IntentExpirer, defaultRate decimal.Decimal, logger *slog.Logger) *Handlers {
	return &Handlers{
		accruer:     accruer,
		expirer:     expirer,
		defaultRate: defaultRate,
		logger:      logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *Handlers) AccrueLateFees(ctx context.Context, t *asynq.Task) error {
	var payload AccruePayload

	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			h.logger.Error("invalid accrual payload", "error", err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
	}

	asOf, err := payload.asOf(h.clock())
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	rate := h.defaultRate
	if payload.DailyRate != nil {
		rate = *payload.DailyRate
	}

	n, err := h.accruer.AccrueLateFees(ctx, asOf, rate)
	if err != nil {
		h.logger.Error("late fee accrual failed", "as_of", asOf.Format(time.DateOnly), "error", err)
		return err
	}

	h.logger.Info("late fee accrual finished", "as_of", asOf.Format(time.DateOnly), "updated", n)

	return nil
}

func (h *Handlers) ExpireIntents(ctx context.Context, _ *asynq.Task) error {
	n, err := h.expirer.ExpireStale(ctx)
	if err != nil {
		h.logger.Error("intent expiry sweep failed", "error", err)
		return err
	}

	h.logger.Debug("intent expiry sweep finished", "expired", n)

	return nil
}

// TaskHandlers lists the handlers to mount on the worker.
func (h *Handlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskAccrueLateFees, Handler: h.AccrueLateFees},
		{Type: TaskExpireIntents, Handler: h.ExpireIntents},
	}
}
