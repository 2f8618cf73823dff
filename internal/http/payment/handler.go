package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
)

type Handler struct {
	svc                 *billing.Service
	allowManualValidate bool
}

func NewHandler(svc *billing.Service, allowManualValidate bool) *Handler {
	return &Handler{svc: svc, allowManualValidate: allowManualValidate}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/register", h.register)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/settle", h.settle)
	r.Patch("/{id}/void", h.void)
	r.Post("/{id}/start-qr-intent", h.startIntent)
	r.Post("/{id}/validate-qr", h.validateIntent)
}

type allocationRequest struct {
	ChargeID uuid.UUID       `json:"charge_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type documentRequest struct {
	Type     string `json:"type" validate:"omitempty,oneof=RECEIPT INVOICE"`
	Number   string `json:"number" validate:"max=40"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type registerRequest struct {
	UnitID           uuid.UUID           `json:"unit_id"`
	Method           string              `json:"method" validate:"required,oneof=CASH TRANSFER QR CARD WALLET"`
	Currency         string              `json:"currency" validate:"omitempty,len=3"`
	ExternalRef      string              `json:"external_ref" validate:"max=120"`
	Allocations      []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
	GenerateDocument bool                `json:"generate_document"`
	Document         *documentRequest    `json:"document"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	params := billing.RegisterParams{
		UnitID:           req.UnitID,
		Method:           billing.Method(req.Method),
		Currency:         req.Currency,
		ExternalRef:      req.ExternalRef,
		Allocations:      make([]billing.AllocationParams, len(req.Allocations)),
		GenerateDocument: req.GenerateDocument,
	}

	for i, a := range req.Allocations {
		params.Allocations[i] = billing.AllocationParams{ChargeID: a.ChargeID, Amount: a.Amount}
	}

	if d := req.Document; d != nil {
		params.Document = billing.DocumentParams{
			Type:     billing.DocumentType(d.Type),
			Number:   d.Number,
			Currency: d.Currency,
		}
	}

	p, err := h.svc.RegisterPayment(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := billing.PaymentFilter{}

	unitID, err := respond.QueryID(r, "unit_id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	filter.UnitID = unitID

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(billing.PaymentStatus(s))
	}

	if s := r.URL.Query().Get("method"); s != "" {
		m := billing.Method(s)
		if !m.Valid() {
			respond.Error(w, r, billing.Invalid("method", "unknown payment method"))
			return
		}

		filter.Method = &m
	}

	payments, err := h.svc.ListPayments(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(payments))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.withPayment(w, r, h.svc.GetPayment)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	h.withPayment(w, r, h.svc.Settle)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	h.withPayment(w, r, h.svc.Void)
}

func (h *Handler) withPayment(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*billing.Payment, error)) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := fn(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

type startIntentRequest struct {
	// TTLSeconds overrides the configured intent lifetime.
	TTLSeconds int `json:"ttl_seconds" validate:"gte=0,lte=86400"`
}

func (h *Handler) startIntent(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req startIntentRequest

	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
	}

	in, err := h.svc.CreateIntent(r.Context(), id, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toIntentResponse(in))
}

type validateIntentRequest struct {
	IntentID uuid.UUID `json:"intent_id"`
}

func (h *Handler) validateIntent(w http.ResponseWriter, r *http.Request) {
	if !h.allowManualValidate {
		respond.WriteProblem(w, respond.Problem{
			Status: http.StatusForbidden,
			Detail: "manual validation is disabled",
		})

		return
	}

	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req validateIntentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	in, err := h.svc.ValidateIntent(r.Context(), id, req.IntentID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toIntentResponse(in))
}
