package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type Config struct {
	App struct {
		Name      string `envconfig:"APP_NAME" default:"condo-billing"`
		Env       string `envconfig:"APP_ENV" default:"development"`
		Port      int    `envconfig:"PORT" default:"8080"`
		LogFormat string `envconfig:"APP_LOG_FORMAT" default:"text"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"condo_billing"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Redis struct {
		Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		Password string        `envconfig:"REDIS_PASSWORD" default:""`
		DB       int           `envconfig:"REDIS_DB" default:"0"`
		UnitTTL  time.Duration `envconfig:"REDIS_UNIT_TTL" default:"10m"`
	}

	AMQP struct {
		// Empty disables event publishing.
		URL      string `envconfig:"AMQP_URL" default:""`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"billing.events"`
	}

	Billing struct {
		Currency            string          `envconfig:"BILLING_CURRENCY" default:"BOB"`
		DocumentPrefix      string          `envconfig:"BILLING_DOCUMENT_PREFIX" default:"R"`
		LateFeeDailyRate    decimal.Decimal `envconfig:"BILLING_LATE_FEE_DAILY_RATE" default:"0.001"`
		AccrualRecalculate  bool            `envconfig:"BILLING_ACCRUAL_RECALCULATE" default:"true"`
		IntentTTL           time.Duration   `envconfig:"BILLING_INTENT_TTL" default:"15m"`
		AllowManualValidate bool            `envconfig:"BILLING_ALLOW_MANUAL_VALIDATE" default:"false"`
	}

	QR struct {
		Secret           string `envconfig:"QR_SECRET"`
		KeyVersion       int    `envconfig:"QR_KEY_VERSION" default:"1"`
		OldestKeyVersion int    `envconfig:"QR_OLDEST_KEY_VERSION" default:"1"`
	}

	Webhook struct {
		JWTSecret string `envconfig:"WEBHOOK_JWT_SECRET"`
		Issuer    string `envconfig:"WEBHOOK_ISSUER" default:"payment-gateway"`
		// Requests per minute per client IP.
		RateLimit int `envconfig:"WEBHOOK_RATE_LIMIT" default:"60"`
	}

	Jobs struct {
		AccrualCron string `envconfig:"JOBS_ACCRUAL_CRON" default:"0 3 * * *"`
		ExpiryCron  string `envconfig:"JOBS_EXPIRY_CRON" default:"@every 5m"`
		Concurrency int    `envconfig:"JOBS_CONCURRENCY" default:"5"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// BillingSettings is the subset of the configuration the billing service reads.
func (c *Config) BillingSettings() billing.Settings {
	return billing.Settings{
		Currency:                c.Billing.Currency,
		DocumentPrefix:          c.Billing.DocumentPrefix,
		IntentTTL:               c.Billing.IntentTTL,
		RecalculateAfterAccrual: c.Billing.AccrualRecalculate,
	}
}

func (c *Config) validate() error {
	var errs []error

	if c.QR.Secret == "" {
		errs = append(errs, errors.New("QR_SECRET is required"))
	}

	if c.QR.OldestKeyVersion > c.QR.KeyVersion {
		errs = append(errs, errors.New("QR_OLDEST_KEY_VERSION must not exceed QR_KEY_VERSION"))
	}

	if c.Billing.LateFeeDailyRate.IsNegative() {
		errs = append(errs, errors.New("BILLING_LATE_FEE_DAILY_RATE must not be negative"))
	}

	if c.Billing.IntentTTL <= 0 {
		errs = append(errs, errors.New("BILLING_INTENT_TTL must be positive"))
	}

	if len(c.Billing.Currency) != 3 {
		errs = append(errs, errors.New("BILLING_CURRENCY must be a three letter code"))
	}

	return errors.Join(errs...)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
