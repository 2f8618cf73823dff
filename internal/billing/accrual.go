package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LateFee is principal * dailyRate * daysLate rounded half-up to cents.
func LateFee(principal, dailyRate decimal.Decimal, daysLate int) decimal.Decimal {
	if daysLate <= 0 || dailyRate.Sign() <= 0 {
		return decimal.Zero
	}

	return principal.Mul(dailyRate).Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
}

// AccrueLateFees sets the late fee of every open charge due before asOf to
// the fee for the full elapsed period. The fee is overwritten, never added,
// and never lowered, so repeating a run with the same asOf changes nothing.
// It returns the number of charges written.
func (s *Service) AccrueLateFees(ctx context.Context, asOf time.Time, dailyRate decimal.Decimal) (int, error) {
	if dailyRate.IsNegative() {
		return 0, Invalid("daily_rate", "must not be negative")
	}

	if dailyRate.IsZero() {
		return 0, nil
	}

	asOf = DateOnly(asOf)

	var count int

	err := s.inTx(ctx, func(tx Tx) error {
		charges, err := tx.LockOverdueCharges(ctx, asOf)
		if err != nil {
			return fmt.Errorf("lock overdue charges: %w", err)
		}

		for _, c := range charges {
			fee := LateFee(c.Principal, dailyRate, DaysBetween(c.DueDate, asOf))
			if fee.Sign() <= 0 || !fee.GreaterThan(c.LateFee) {
				continue
			}

			if err := tx.SetChargeLateFee(ctx, c.ID, fee); err != nil {
				return fmt.Errorf("set late fee for %s: %w", c.ID, err)
			}

			count++

			if s.settings.RecalculateAfterAccrual {
				if err := s.recalculate(ctx, tx, c.ID); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("accrue late fees: %w", err)
	}

	s.logger.Info("late fees accrued",
		"as_of", asOf.Format(time.DateOnly),
		"daily_rate", dailyRate.String(),
		"updated", count,
	)

	return count, nil
}
