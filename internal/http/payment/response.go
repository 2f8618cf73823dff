package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type paymentResponse struct {
	ID          uuid.UUID             `json:"id"`
	UnitID      uuid.UUID             `json:"unit_id"`
	Method      billing.Method        `json:"method"`
	Status      billing.PaymentStatus `json:"status"`
	Currency    string                `json:"currency"`
	Amount      string                `json:"amount"`
	ExternalRef string                `json:"external_ref,omitempty"`
	Document    *documentResponse     `json:"document,omitempty"`
	Allocations []allocationResponse  `json:"allocations"`
	PaidAt      *time.Time            `json:"paid_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   *time.Time            `json:"updated_at,omitempty"`
}

type allocationResponse struct {
	ID       uuid.UUID `json:"id"`
	ChargeID uuid.UUID `json:"charge_id"`
	Amount   string    `json:"amount"`
}

type documentResponse struct {
	ID       uuid.UUID            `json:"id"`
	Type     billing.DocumentType `json:"type"`
	Number   string               `json:"number"`
	Currency string               `json:"currency"`
	IssuedAt time.Time            `json:"issued_at"`
}

type intentResponse struct {
	ID                uuid.UUID            `json:"id"`
	PaymentID         uuid.UUID            `json:"payment_id"`
	Status            billing.IntentStatus `json:"status"`
	Amount            string               `json:"amount"`
	Currency          string               `json:"currency"`
	QRPayload         string               `json:"qr_payload"`
	ExpiresAt         time.Time            `json:"expires_at"`
	ApprovedPaymentID *uuid.UUID           `json:"approved_payment_id,omitempty"`
}

func toResponse(p *billing.Payment) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID,
		UnitID:      p.UnitID,
		Method:      p.Method,
		Status:      p.Status,
		Currency:    p.Currency,
		Amount:      p.Amount.StringFixed(2),
		ExternalRef: p.ExternalRef,
		Allocations: make([]allocationResponse, len(p.Allocations)),
		PaidAt:      p.PaidAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	for i, a := range p.Allocations {
		resp.Allocations[i] = allocationResponse{ID: a.ID, ChargeID: a.ChargeID, Amount: a.Amount.StringFixed(2)}
	}

	if d := p.Document; d != nil {
		resp.Document = &documentResponse{
			ID:       d.ID,
			Type:     d.Type,
			Number:   d.Number,
			Currency: d.Currency,
			IssuedAt: d.IssuedAt,
		}
	}

	return resp
}

func toResponseList(payments []*billing.Payment) []paymentResponse {
	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toResponse(p)
	}

	return resp
}

func toIntentResponse(in *billing.Intent) intentResponse {
	return intentResponse{
		ID:                in.ID,
		PaymentID:         in.PaymentID,
		Status:            in.Status,
		Amount:            in.Amount.StringFixed(2),
		Currency:          in.Currency,
		QRPayload:         in.Payload,
		ExpiresAt:         in.ExpiresAt,
		ApprovedPaymentID: in.ApprovedPaymentID,
	}
}
