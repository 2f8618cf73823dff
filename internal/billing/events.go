package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPaymentApproved EventType = "payment.approved"
	EventPaymentVoided   EventType = "payment.voided"
	EventIntentApproved  EventType = "intent.approved"
)

// Event is published once the transaction that produced it has committed.
// Document issuance listens for payment.approved to render receipts.
type Event struct {
	Type           EventType       `json:"type"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	IntentID       *uuid.UUID      `json:"intent_id,omitempty"`
	UnitID         uuid.UUID       `json:"unit_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	DocumentNumber string          `json:"document_number,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func paymentEvent(t EventType, p *Payment, at time.Time) Event {
	e := Event{
		Type:       t,
		PaymentID:  p.ID,
		UnitID:     p.UnitID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: at,
	}

	if p.Document != nil {
		e.DocumentNumber = p.Document.Number
	}

	return e
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
