package intent

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
	"github.com/luisfernandobanegasro/parcial/internal/http/webhookauth"
)

type Handler struct {
	svc *billing.Service
}

func NewHandler(svc *billing.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)
}

// WebhookRoutes are mounted behind webhook authentication and rate limiting.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/processing", h.processing)
}

type intentResponse struct {
	ID                uuid.UUID            `json:"id"`
	PaymentID         uuid.UUID            `json:"payment_id"`
	UnitID            uuid.UUID            `json:"unit_id"`
	Method            billing.Method       `json:"method"`
	Status            billing.IntentStatus `json:"status"`
	Amount            string               `json:"amount"`
	Currency          string               `json:"currency"`
	GatewayRef        string               `json:"gateway_ref,omitempty"`
	QRPayload         string               `json:"qr_payload"`
	ExpiresAt         time.Time            `json:"expires_at"`
	ApprovedPaymentID *uuid.UUID           `json:"approved_payment_id,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         *time.Time           `json:"updated_at,omitempty"`
}

func toResponse(in *billing.Intent) intentResponse {
	return intentResponse{
		ID:                in.ID,
		PaymentID:         in.PaymentID,
		UnitID:            in.UnitID,
		Method:            in.Method,
		Status:            in.Status,
		Amount:            in.Amount.StringFixed(2),
		Currency:          in.Currency,
		GatewayRef:        in.GatewayRef,
		QRPayload:         in.Payload,
		ExpiresAt:         in.ExpiresAt,
		ApprovedPaymentID: in.ApprovedPaymentID,
		CreatedAt:         in.CreatedAt,
		UpdatedAt:         in.UpdatedAt,
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	in, err := h.svc.GetIntent(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(in))
}

type confirmRequest struct {
	Outcome    string `json:"outcome" validate:"required,oneof=approved rejected"`
	GatewayRef string `json:"gateway_ref" validate:"max=120"`
	QRPayload  string `json:"qr_payload"`
}

// confirm always answers 200 with the intent's current state, including for
// repeated deliveries, so gateways stop retrying.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req confirmRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	in, err := h.svc.Confirm(r.Context(), billing.ConfirmParams{
		IntentID:   id,
		Outcome:    billing.Outcome(req.Outcome),
		GatewayRef: req.GatewayRef,
		QRText:     req.QRPayload,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	slog.Info("intent confirmation received",
		"intent_id", id,
		"outcome", req.Outcome,
		"status", in.Status,
		"caller", webhookauth.Subject(r.Context()),
	)

	respond.JSON(w, http.StatusOK, toResponse(in))
}

type processingRequest struct {
	GatewayRef string `json:"gateway_ref" validate:"required,max=120"`
}

func (h *Handler) processing(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req processingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	in, err := h.svc.MarkInProgress(r.Context(), id, req.GatewayRef)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(in))
}
