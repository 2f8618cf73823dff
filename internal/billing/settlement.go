package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus derives a charge status from what was paid against what is due.
func SettlementStatus(paid, due decimal.Decimal) ChargeStatus {
	switch {
	case paid.Sign() <= 0:
		return ChargePending
	case paid.LessThan(due):
		return ChargePartial
	default:
		return ChargePaid
	}
}

// Recalculate brings a charge's stored status in line with its active allocations.
// Missing and void charges are left alone.
func (s *Service) Recalculate(ctx context.Context, chargeID uuid.UUID) error {
	return s.inTx(ctx, func(tx Tx) error {
		return s.recalculate(ctx, tx, chargeID)
	})
}

func (s *Service) recalculate(ctx context.Context, tx Tx, chargeID uuid.UUID) error {
	c, err := tx.LockCharge(ctx, chargeID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("lock charge: %w", err)
	}

	if c.Status == ChargeVoid {
		return nil
	}

	paid, err := tx.ActiveAllocationSum(ctx, chargeID)
	if err != nil {
		return fmt.Errorf("sum allocations: %w", err)
	}

	due := c.Due()
	if paid.GreaterThan(due) {
		s.logger.Warn("charge overpaid",
			"charge_id", c.ID,
			"paid", paid.StringFixed(2),
			"due", due.StringFixed(2),
		)
	}

	status := SettlementStatus(paid, due)
	if status == c.Status {
		return nil
	}

	if err := tx.SetChargeStatus(ctx, c.ID, status); err != nil {
		return fmt.Errorf("set charge status: %w", err)
	}

	return nil
}

func (s *Service) recalculateAll(ctx context.Context, tx Tx, chargeIDs []uuid.UUID) error {
	for _, id := range sortedIDs(chargeIDs) {
		if err := s.recalculate(ctx, tx, id); err != nil {
			return err
		}
	}

	return nil
}

type RecalculateFilter struct {
	UnitID     *uuid.UUID
	PeriodFrom *time.Time
	PeriodTo   *time.Time
}

// RecalculateCharges re-derives the status of every non-void charge matching
// the filter, one transaction per charge. It returns how many were visited.
func (s *Service) RecalculateCharges(ctx context.Context, filter RecalculateFilter) (int, error) {
	charges, err := s.repo.ListCharges(ctx, ChargeFilter{
		UnitID:     filter.UnitID,
		PeriodFrom: filter.PeriodFrom,
		PeriodTo:   filter.PeriodTo,
	})
	if err != nil {
		return 0, fmt.Errorf("list charges: %w", err)
	}

	var count int

	for _, c := range charges {
		if c.Status == ChargeVoid {
			continue
		}

		if err := s.Recalculate(ctx, c.ID); err != nil {
			return count, fmt.Errorf("recalculate charge %s: %w", c.ID, err)
		}

		count++
	}

	s.logger.Info("charges recalculated", "count", count)

	return count, nil
}
