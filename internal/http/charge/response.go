package charge

import (
	"time"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type conceptResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type chargeResponse struct {
	ID          uuid.UUID            `json:"id"`
	UnitID      uuid.UUID            `json:"unit_id"`
	ConceptID   uuid.UUID            `json:"concept_id"`
	ConceptName string               `json:"concept_name,omitempty"`
	Period      string               `json:"period"`
	DueDate     string               `json:"due_date"`
	Principal   string               `json:"principal"`
	LateFee     string               `json:"late_fee"`
	Total       string               `json:"total"`
	Status      billing.ChargeStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   *time.Time           `json:"updated_at,omitempty"`
}

func toConceptResponse(c *billing.Concept) conceptResponse {
	return conceptResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func toResponse(c *billing.Charge) chargeResponse {
	return chargeResponse{
		ID:          c.ID,
		UnitID:      c.UnitID,
		ConceptID:   c.ConceptID,
		ConceptName: c.ConceptName,
		Period:      c.Period.Format(time.DateOnly),
		DueDate:     c.DueDate.Format(time.DateOnly),
		Principal:   c.Principal.StringFixed(2),
		LateFee:     c.LateFee.StringFixed(2),
		Total:       c.Due().StringFixed(2),
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toResponseList(charges []*billing.Charge) []chargeResponse {
	resp := make([]chargeResponse, len(charges))
	for i, c := range charges {
		resp[i] = toResponse(c)
	}

	return resp
}
