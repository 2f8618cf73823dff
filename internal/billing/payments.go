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

type AllocationParams struct {
	ChargeID uuid.UUID
	Amount   decimal.Decimal
}

// DocumentParams describes the document minted alongside a payment.
// Number is optional; when empty the next number in the condominium's sequence is used.
type DocumentParams struct {
	Type     DocumentType
	Number   string
	Prefix   string
	Currency string
}

type RegisterParams struct {
	UnitID           uuid.UUID
	Method           Method
	Currency         string
	ExternalRef      string
	Allocations      []AllocationParams
	GenerateDocument bool
	Document         DocumentParams
}

func validateRegister(params RegisterParams) error {
	fields := map[string]string{}

	if params.UnitID == uuid.Nil {
		fields["unit_id"] = "is required"
	}

	if !params.Method.Valid() {
		fields["method"] = "must be one of CASH, TRANSFER, QR, CARD, WALLET"
	}

	if params.Currency != "" && len(params.Currency) != 3 {
		fields["currency"] = "must be a three letter code"
	}

	if len(params.Allocations) == 0 {
		fields["allocations"] = "at least one allocation is required"
	}

	seen := make(map[uuid.UUID]struct{}, len(params.Allocations))

	for i, a := range params.Allocations {
		key := fmt.Sprintf("allocations[%d]", i)

		switch {
		case a.ChargeID == uuid.Nil:
			fields[key+".charge_id"] = "is required"
		case a.Amount.Sign() <= 0:
			fields[key+".amount"] = "must be greater than zero"
		case !HasCents(a.Amount):
			fields[key+".amount"] = "must have at most two decimal places"
		}

		if _, dup := seen[a.ChargeID]; dup {
			fields[key+".charge_id"] = "charge appears more than once"
		}

		seen[a.ChargeID] = struct{}{}
	}

	if params.GenerateDocument {
		switch params.Document.Type {
		case "", DocumentReceipt, DocumentInvoice:
		default:
			fields["document.type"] = "must be RECEIPT or INVOICE"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	return nil
}

// RegisterPayment records a payment and its allocations in one transaction.
// Cash is approved on the spot; every other method waits for Settle or an intent.
func (s *Service) RegisterPayment(ctx context.Context, params RegisterParams) (*Payment, error) {
	if err := validateRegister(params); err != nil {
		return nil, err
	}

	var unit *Unit

	if params.GenerateDocument {
		u, err := s.units.GetUnit(ctx, params.UnitID)
		if errors.Is(err, ErrNotFound) {
			return nil, Invalid("unit_id", "unit does not exist")
		}

		if err != nil {
			return nil, fmt.Errorf("get unit: %w", err)
		}

		unit = u
	}

	now := s.now()

	p := &Payment{
		UnitID:      params.UnitID,
		Method:      params.Method,
		Status:      PaymentPending,
		Currency:    s.currency(params.Currency),
		Amount:      decimal.Zero,
		ExternalRef: strings.TrimSpace(params.ExternalRef),
		Allocations: make([]*Allocation, len(params.Allocations)),
	}

	for i, a := range params.Allocations {
		p.Allocations[i] = &Allocation{ChargeID: a.ChargeID, Amount: a.Amount}
		p.Amount = p.Amount.Add(a.Amount)
	}

	if p.Method == MethodCash {
		p.Status = PaymentApproved
		p.PaidAt = &now
	}

	err := s.inTx(ctx, func(tx Tx) error {
		if err := s.checkAllocatable(ctx, tx, p); err != nil {
			return err
		}

		if params.GenerateDocument {
			doc, err := s.issueDocument(ctx, tx, unit, params.Document, now)
			if err != nil {
				return err
			}

			p.DocumentID = &doc.ID
			p.Document = doc
		}

		if err := tx.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		return s.recalculateAll(ctx, tx, p.ChargeIDs())
	})
	if err != nil {
		return nil, fmt.Errorf("register payment: %w", err)
	}

	s.logger.Info("payment registered",
		"payment_id", p.ID,
		"unit_id", p.UnitID,
		"method", p.Method,
		"status", p.Status,
		"amount", p.Amount.StringFixed(2),
	)

	if p.Status == PaymentApproved {
		s.publish(ctx, paymentEvent(EventPaymentApproved, p, now))
	}

	return p, nil
}

// checkAllocatable locks every charge the payment touches and rejects
// charges that are missing, void or owned by another unit.
func (s *Service) checkAllocatable(ctx context.Context, tx Tx, p *Payment) error {
	for _, id := range sortedIDs(p.ChargeIDs()) {
		c, err := tx.LockCharge(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return Invalid("allocations", fmt.Sprintf("charge %s does not exist", id))
		}

		if err != nil {
			return fmt.Errorf("lock charge: %w", err)
		}

		if c.UnitID != p.UnitID {
			return Invalid("allocations", fmt.Sprintf("charge %s belongs to another unit", id))
		}

		if c.Status == ChargeVoid {
			return Invalid("allocations", fmt.Sprintf("charge %s is void", id))
		}
	}

	return nil
}

// FormatDocumentNumber renders numbers like R-2024-000042.
func FormatDocumentNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

func (s *Service) issueDocument(ctx context.Context, tx Tx, unit *Unit, params DocumentParams, now time.Time) (*Document, error) {
	d := &Document{
		CondominiumID: unit.CondominiumID,
		Type:          params.Type,
		Number:        strings.TrimSpace(params.Number),
		Currency:      s.currency(params.Currency),
		IssuedAt:      now,
	}

	if d.Type == "" {
		d.Type = DocumentReceipt
	}

	if d.Number == "" {
		prefix := params.Prefix
		if prefix == "" {
			prefix = s.settings.DocumentPrefix
		}

		seq, err := tx.NextDocumentSeq(ctx, unit.CondominiumID, prefix, now.Year())
		if err != nil {
			return nil, fmt.Errorf("next document number: %w", err)
		}

		d.Number = FormatDocumentNumber(prefix, now.Year(), seq)
	}

	if err := tx.InsertDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	return d, nil
}

func (s *Service) currency(c string) string {
	if c == "" {
		return s.settings.Currency
	}

	return strings.ToUpper(c)
}

// Settle approves a pending payment. Settling an approved payment is a no-op.
func (s *Service) Settle(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var (
		p       *Payment
		settled bool
	)

	err := s.inTx(ctx, func(tx Tx) error {
		var err error

		p, err = tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}

		switch p.Status {
		case PaymentApproved:
			return nil
		case PaymentVoid, PaymentRejected:
			return conflictf("payment %s is %s", id, strings.ToLower(string(p.Status)))
		}

		settled = true

		return s.approve(ctx, tx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}

	if settled {
		s.logger.Info("payment settled", "payment_id", p.ID)
		s.publish(ctx, paymentEvent(EventPaymentApproved, p, *p.PaidAt))
	}

	return p, nil
}

func (s *Service) approve(ctx context.Context, tx Tx, p *Payment) error {
	now := s.now()

	if err := tx.SetPaymentStatus(ctx, p.ID, PaymentApproved, &now); err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}

	p.Status = PaymentApproved
	p.PaidAt = &now

	return s.recalculateAll(ctx, tx, p.ChargeIDs())
}

// Void reverses a payment by zeroing its allocations. The rows stay for audit.
func (s *Service) Void(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var (
		p      *Payment
		voided bool
	)

	err := s.inTx(ctx, func(tx Tx) error {
		var err error

		p, err = tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}

		if p.Status == PaymentVoid {
			return nil
		}

		if err := tx.ZeroAllocations(ctx, id); err != nil {
			return fmt.Errorf("zero allocations: %w", err)
		}

		if err := tx.SetPaymentStatus(ctx, id, PaymentVoid, p.PaidAt); err != nil {
			return fmt.Errorf("set payment status: %w", err)
		}

		rejected, err := tx.RejectOpenIntents(ctx, id)
		if err != nil {
			return fmt.Errorf("reject open intents: %w", err)
		}

		if rejected > 0 {
			s.logger.Info("open intents rejected with voided payment", "payment_id", id, "count", rejected)
		}

		p.Status = PaymentVoid
		p.Amount = decimal.Zero

		for _, a := range p.Allocations {
			a.Amount = decimal.Zero
		}

		voided = true

		return s.recalculateAll(ctx, tx, p.ChargeIDs())
	})
	if err != nil {
		return nil, fmt.Errorf("void payment: %w", err)
	}

	if voided {
		s.logger.Info("payment voided", "payment_id", p.ID)
		s.publish(ctx, paymentEvent(EventPaymentVoided, p, s.now()))
	}

	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error) {
	return s.repo.ListPayments(ctx, filter)
}
