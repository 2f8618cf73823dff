package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
)

//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=billing
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	CreateConcept(ctx context.Context, c *Concept) error
	ListConcepts(ctx context.Context) ([]*Concept, error)

	CreateCharge(ctx context.Context, c *Charge) error
	GetCharge(ctx context.Context, id uuid.UUID) (*Charge, error)
	ListCharges(ctx context.Context, filter ChargeFilter) ([]*Charge, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error)

	GetIntent(ctx context.Context, id uuid.UUID) (*Intent, error)
	ExpireIntents(ctx context.Context, now time.Time) (int, error)

	ListStatement(ctx context.Context, unitID uuid.UUID, filter StatementFilter) ([]*StatementLine, error)
}

// Tx is a unit of work. Lock* methods take a row lock held until Commit or Rollback.
type Tx interface {
	LockCharge(ctx context.Context, id uuid.UUID) (*Charge, error)
	LockOverdueCharges(ctx context.Context, asOf time.Time) ([]*Charge, error)
	ActiveAllocationSum(ctx context.Context, chargeID uuid.UUID) (decimal.Decimal, error)
	SetChargeStatus(ctx context.Context, id uuid.UUID, status ChargeStatus) error
	SetChargeLateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal) error

	InsertPayment(ctx context.Context, p *Payment) error
	LockPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paidAt *time.Time) error
	// ZeroAllocations sets every allocation of the payment, and the payment amount, to zero.
	ZeroAllocations(ctx context.Context, paymentID uuid.UUID) error

	NextDocumentSeq(ctx context.Context, condominiumID uuid.UUID, prefix string, year int) (int64, error)
	InsertDocument(ctx context.Context, d *Document) error

	InsertIntent(ctx context.Context, in *Intent) error
	LockIntent(ctx context.Context, id uuid.UUID) (*Intent, error)
	UpdateIntent(ctx context.Context, in *Intent) error
	// RejectOpenIntents moves the payment's CREATED and IN_PROGRESS intents to REJECTED.
	RejectOpenIntents(ctx context.Context, paymentID uuid.UUID) (int, error)

	Commit() error
	Rollback() error
}

// UnitDirectory resolves units from the property registry.
type UnitDirectory interface {
	GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error)
}

// Signer produces and checks the tamper-evident QR text for an intent.
type Signer interface {
	Sign(p qrpay.Payload) (string, error)
	Verify(text string) (qrpay.Payload, error)
}

// Publisher delivers domain events after a successful commit.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type ChargeFilter struct {
	UnitID     *uuid.UUID
	Status     *ChargeStatus
	PeriodFrom *time.Time
	PeriodTo   *time.Time
}

type PaymentFilter struct {
	UnitID *uuid.UUID
	Status *PaymentStatus
	Method *Method
}

type StatementFilter struct {
	PeriodFrom *time.Time
	PeriodTo   *time.Time
}

// StatementLine is a charge together with the sum of its active allocations.
type StatementLine struct {
	Charge *Charge
	Paid   decimal.Decimal
}
