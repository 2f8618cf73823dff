package billing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Settings holds the billing defaults that come from configuration.
type Settings struct {
	Currency                string
	DocumentPrefix          string
	IntentTTL               time.Duration
	RecalculateAfterAccrual bool
}

func DefaultSettings() Settings {
	return Settings{
		Currency:                "BOB",
		DocumentPrefix:          "R",
		IntentTTL:               15 * time.Minute,
		RecalculateAfterAccrual: true,
	}
}

type Service struct {
	repo      Repository
	units     UnitDirectory
	signer    Signer
	publisher Publisher
	logger    *slog.Logger
	settings  Settings
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithSettings(st Settings) Option {
	return func(s *Service) { s.settings = st }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, units UnitDirectory, signer Signer, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		units:     units,
		signer:    signer,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		settings:  DefaultSettings(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Error("failed to publish event", "type", e.Type, "payment_id", e.PaymentID, "error", err)
		}
	}
}

// sortedIDs orders ids so row locks are always taken in the same order.
func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	return out
}
