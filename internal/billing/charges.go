package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateConceptParams struct {
	Name string
}

func (s *Service) CreateConcept(ctx context.Context, params CreateConceptParams) (*Concept, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, Invalid("name", "is required")
	}

	c := &Concept{Name: name}
	if err := s.repo.CreateConcept(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) ListConcepts(ctx context.Context) ([]*Concept, error) {
	return s.repo.ListConcepts(ctx)
}

type CreateChargeParams struct {
	UnitID    uuid.UUID
	ConceptID uuid.UUID
	Period    *time.Time // inferred from DueDate when nil
	DueDate   time.Time
	Principal decimal.Decimal
}

func (s *Service) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	fields := map[string]string{}

	if params.UnitID == uuid.Nil {
		fields["unit_id"] = "is required"
	}

	if params.ConceptID == uuid.Nil {
		fields["concept_id"] = "is required"
	}

	if params.DueDate.IsZero() {
		fields["due_date"] = "is required"
	}

	switch {
	case params.Principal.Sign() <= 0:
		fields["principal"] = "must be greater than zero"
	case !HasCents(params.Principal):
		fields["principal"] = "must have at most two decimal places"
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if _, err := s.units.GetUnit(ctx, params.UnitID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Invalid("unit_id", "unit does not exist")
		}

		return nil, fmt.Errorf("get unit: %w", err)
	}

	period := params.DueDate
	if params.Period != nil {
		period = *params.Period
	}

	c := &Charge{
		UnitID:    params.UnitID,
		ConceptID: params.ConceptID,
		Period:    NormalizePeriod(period),
		Principal: params.Principal,
		LateFee:   decimal.Zero,
		DueDate:   DateOnly(params.DueDate),
		Status:    ChargePending,
	}

	if err := s.repo.CreateCharge(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) GetCharge(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.repo.GetCharge(ctx, id)
}

func (s *Service) ListCharges(ctx context.Context, filter ChargeFilter) ([]*Charge, error) {
	return s.repo.ListCharges(ctx, filter)
}

// VoidCharge freezes a charge out of settlement. Voiding twice is a no-op.
func (s *Service) VoidCharge(ctx context.Context, id uuid.UUID) (*Charge, error) {
	var c *Charge

	err := s.inTx(ctx, func(tx Tx) error {
		var err error

		c, err = tx.LockCharge(ctx, id)
		if err != nil {
			return err
		}

		if c.Status == ChargeVoid {
			return nil
		}

		if err := tx.SetChargeStatus(ctx, id, ChargeVoid); err != nil {
			return fmt.Errorf("set charge status: %w", err)
		}

		c.Status = ChargeVoid

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("void charge: %w", err)
	}

	return c, nil
}

// CorrectLateFee is the one path allowed to lower an accrued late fee.
func (s *Service) CorrectLateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal) (*Charge, error) {
	switch {
	case fee.IsNegative():
		return nil, Invalid("late_fee", "must not be negative")
	case !HasCents(fee):
		return nil, Invalid("late_fee", "must have at most two decimal places")
	}

	err := s.inTx(ctx, func(tx Tx) error {
		c, err := tx.LockCharge(ctx, id)
		if err != nil {
			return err
		}

		if c.Status == ChargeVoid {
			return conflictf("charge %s is void", id)
		}

		if err := tx.SetChargeLateFee(ctx, id, fee); err != nil {
			return fmt.Errorf("set late fee: %w", err)
		}

		return s.recalculate(ctx, tx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("correct late fee: %w", err)
	}

	s.logger.Info("late fee corrected", "charge_id", id, "late_fee", fee.StringFixed(2))

	return s.repo.GetCharge(ctx, id)
}
