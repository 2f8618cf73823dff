package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QR_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "BOB", cfg.Billing.Currency)
	assert.Equal(t, "R", cfg.Billing.DocumentPrefix)
	assert.Equal(t, "0.001", cfg.Billing.LateFeeDailyRate.String())
	assert.True(t, cfg.Billing.AccrualRecalculate)
	assert.False(t, cfg.Billing.AllowManualValidate)
	assert.Equal(t, 15*time.Minute, cfg.Billing.IntentTTL)
	assert.Equal(t, "0 3 * * *", cfg.Jobs.AccrualCron)
	assert.Equal(t, "postgres://postgres:@localhost:5432/condo_billing?sslmode=disable", cfg.ConnectionString())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QR_SECRET", "s3cret")
	t.Setenv("QR_KEY_VERSION", "3")
	t.Setenv("QR_OLDEST_KEY_VERSION", "2")
	t.Setenv("BILLING_LATE_FEE_DAILY_RATE", "0.0025")
	t.Setenv("BILLING_ACCRUAL_RECALCULATE", "false")
	t.Setenv("BILLING_INTENT_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.QR.KeyVersion)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)

	settings := cfg.BillingSettings()
	assert.False(t, settings.RecalculateAfterAccrual)
	assert.Equal(t, 30*time.Minute, settings.IntentTTL)
	assert.Equal(t, "0.0025", cfg.Billing.LateFeeDailyRate.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing qr secret", env: map[string]string{}, want: "QR_SECRET"},
		{
			name: "negative rate",
			env:  map[string]string{"QR_SECRET": "x", "BILLING_LATE_FEE_DAILY_RATE": "-0.1"},
			want: "BILLING_LATE_FEE_DAILY_RATE",
		},
		{
			name: "key window inverted",
			env:  map[string]string{"QR_SECRET": "x", "QR_OLDEST_KEY_VERSION": "2"},
			want: "QR_OLDEST_KEY_VERSION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QR_SECRET", "")

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var cfg Config
	cfg.App.LogFormat = "json"

	_, ok := NewLogger(&cfg).Handler().(*slog.JSONHandler)
	assert.True(t, ok)

	cfg.App.LogFormat = "text"

	_, ok = NewLogger(&cfg).Handler().(*slog.TextHandler)
	assert.True(t, ok)
}
