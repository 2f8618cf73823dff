package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	QueueDefault = "default"

	TaskAccrueLateFees = "billing:accrue_late_fees"
	TaskExpireIntents  = "billing:expire_intents"
)

// AccruePayload overrides the configured rate or the run date. Zero values
// mean "use the default": today in UTC and the configured daily rate.
type AccruePayload struct {
	AsOf      string           `json:"as_of,omitempty"`
	DailyRate *decimal.Decimal `json:"daily_rate,omitempty"`
}

func (p AccruePayload) asOf(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now, nil
	}

	t, err := time.Parse(time.DateOnly, p.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing as_of: %w", err)
	}

	return t, nil
}

func NewAccrueTask(payload AccruePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskAccrueLateFees, data), nil
}

func NewExpireIntentsTask() *asynq.Task {
	return asynq.NewTask(TaskExpireIntents, nil)
}
