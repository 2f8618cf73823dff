package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeStatus is the settlement state of a charge.
type ChargeStatus string

const (
	ChargePending ChargeStatus = "PENDING"
	ChargePartial ChargeStatus = "PARTIAL"
	ChargePaid    ChargeStatus = "PAID"
	// ChargeVoid is an administrative override. Recalculation never touches a void charge.
	ChargeVoid ChargeStatus = "VOID"
)

func (s ChargeStatus) Valid() bool {
	switch s {
	case ChargePending, ChargePartial, ChargePaid, ChargeVoid:
		return true
	}

	return false
}

// Method is how a payment was made.
type Method string

const (
	MethodCash     Method = "CASH"
	MethodTransfer Method = "TRANSFER"
	MethodQR       Method = "QR"
	MethodCard     Method = "CARD"
	MethodWallet   Method = "WALLET"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodQR, MethodCard, MethodWallet:
		return true
	}

	return false
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	// PaymentRejected is written only by gateway integrations outside this
	// service. A rejected intent leaves its payment PENDING so it can be retried.
	PaymentRejected PaymentStatus = "REJECTED"
	PaymentVoid     PaymentStatus = "VOID"
)

// IntentStatus represents the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentCreated    IntentStatus = "CREATED"
	IntentInProgress IntentStatus = "IN_PROGRESS"
	IntentApproved   IntentStatus = "APPROVED"
	IntentRejected   IntentStatus = "REJECTED"
	IntentExpired    IntentStatus = "EXPIRED"
)

func (s IntentStatus) Terminal() bool {
	return s == IntentApproved || s == IntentRejected || s == IntentExpired
}

// Outcome is what an external confirmation reports for an intent.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// DocumentType is the kind of document issued for a payment.
type DocumentType string

const (
	DocumentReceipt DocumentType = "RECEIPT"
	DocumentInvoice DocumentType = "INVOICE"
)

// Concept is a billing category such as the monthly fee or a fine.
type Concept struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Charge is the amount one unit owes for one concept in one period.
type Charge struct {
	ID          uuid.UUID
	UnitID      uuid.UUID
	ConceptID   uuid.UUID
	ConceptName string // Loaded via JOIN
	Period      time.Time
	Principal   decimal.Decimal
	LateFee     decimal.Decimal
	DueDate     time.Time
	Status      ChargeStatus
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Due is principal plus accrued late fee.
func (c *Charge) Due() decimal.Decimal {
	return c.Principal.Add(c.LateFee)
}

// Payment is one settlement event, split over one or more charges.
type Payment struct {
	ID          uuid.UUID
	UnitID      uuid.UUID
	Method      Method
	Status      PaymentStatus
	Currency    string
	Amount      decimal.Decimal
	ExternalRef string
	DocumentID  *uuid.UUID
	Document    *Document // Loaded via JOIN
	Allocations []*Allocation
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// ChargeIDs returns the distinct charges the payment allocates to.
func (p *Payment) ChargeIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.Allocations))

	ids := make([]uuid.UUID, 0, len(p.Allocations))

	for _, a := range p.Allocations {
		if _, ok := seen[a.ChargeID]; ok {
			continue
		}

		seen[a.ChargeID] = struct{}{}
		ids = append(ids, a.ChargeID)
	}

	return ids
}

// Allocation applies part of a payment to a charge.
// Amount is zero only after the parent payment was voided.
type Allocation struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	ChargeID  uuid.UUID
	Amount    decimal.Decimal
}

// Document is a receipt or invoice issued for a payment.
type Document struct {
	ID            uuid.UUID
	CondominiumID uuid.UUID
	Type          DocumentType
	Number        string
	Currency      string
	IssuedAt      time.Time
}

// Intent is an asynchronous attempt to pay a pending payment through a gateway.
type Intent struct {
	ID                uuid.UUID
	PaymentID         uuid.UUID
	UnitID            uuid.UUID
	Method            Method
	Amount            decimal.Decimal
	Currency          string
	Status            IntentStatus
	GatewayRef        string
	Payload           string
	ExpiresAt         time.Time
	ApprovedPaymentID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}

// Expired reports whether a non-terminal intent has outlived its window.
func (i *Intent) Expired(now time.Time) bool {
	return !i.Status.Terminal() && !now.Before(i.ExpiresAt)
}

// Unit is the registry view of an apartment.
type Unit struct {
	ID            uuid.UUID
	CondominiumID uuid.UUID
	Code          string
}
