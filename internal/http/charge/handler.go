package charge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
)

type Handler struct {
	svc         *billing.Service
	defaultRate decimal.Decimal
}

func NewHandler(svc *billing.Service, defaultRate decimal.Decimal) *Handler {
	return &Handler{svc: svc, defaultRate: defaultRate}
}

func (h *Handler) ConceptRoutes(r chi.Router) {
	r.Post("/", h.createConcept)
	r.Get("/", h.listConcepts)
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Post("/recalculate", h.recalculate)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/void", h.void)
	r.Patch("/{id}/late-fee", h.correctLateFee)
}

func (h *Handler) LateFeeRoutes(r chi.Router) {
	r.Post("/accrue", h.accrue)
}

type createConceptRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) createConcept(w http.ResponseWriter, r *http.Request) {
	var req createConceptRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	c, err := h.svc.CreateConcept(r.Context(), billing.CreateConceptParams{Name: req.Name})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toConceptResponse(c))
}

func (h *Handler) listConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := h.svc.ListConcepts(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]conceptResponse, len(concepts))
	for i, c := range concepts {
		resp[i] = toConceptResponse(c)
	}

	respond.JSON(w, http.StatusOK, resp)
}

type createChargeRequest struct {
	UnitID    uuid.UUID       `json:"unit_id"`
	ConceptID uuid.UUID       `json:"concept_id"`
	Period    string          `json:"period" validate:"omitempty,datetime=2006-01-02"`
	DueDate   string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Principal decimal.Decimal `json:"principal"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createChargeRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	params := billing.CreateChargeParams{
		UnitID:    req.UnitID,
		ConceptID: req.ConceptID,
		Principal: req.Principal,
	}

	// Formats were checked by the validator.
	params.DueDate, _ = time.Parse(time.DateOnly, req.DueDate)

	if req.Period != "" {
		period, _ := time.Parse(time.DateOnly, req.Period)
		params.Period = &period
	}

	c, err := h.svc.CreateCharge(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := billing.ChargeFilter{}

	unitID, err := respond.QueryID(r, "unit_id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	filter.UnitID = unitID

	if s := r.URL.Query().Get("status"); s != "" {
		status := billing.ChargeStatus(s)
		if !status.Valid() {
			respond.Error(w, r, billing.Invalid("status", "unknown charge status"))
			return
		}

		filter.Status = new(status)
	}

	charges, err := h.svc.ListCharges(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(charges))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	c, err := h.svc.GetCharge(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	c, err := h.svc.VoidCharge(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}

type lateFeeRequest struct {
	LateFee decimal.Decimal `json:"late_fee"`
}

func (h *Handler) correctLateFee(w http.ResponseWriter, r *http.Request) {
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req lateFeeRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	c, err := h.svc.CorrectLateFee(r.Context(), id, req.LateFee)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}

type recalculateRequest struct {
	UnitID     *uuid.UUID `json:"unit_id"`
	PeriodFrom string     `json:"period_from" validate:"omitempty,datetime=2006-01-02"`
	PeriodTo   string     `json:"period_to" validate:"omitempty,datetime=2006-01-02"`
}

type countResponse struct {
	Updated int `json:"updated"`
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	n, err := h.svc.RecalculateCharges(r.Context(), billing.RecalculateFilter{
		UnitID:     req.UnitID,
		PeriodFrom: optionalDate(req.PeriodFrom),
		PeriodTo:   optionalDate(req.PeriodTo),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, countResponse{Updated: n})
}

type accrueRequest struct {
	AsOf      string           `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	DailyRate *decimal.Decimal `json:"daily_rate"`
}

type accrueResponse struct {
	AsOf      string `json:"as_of"`
	DailyRate string `json:"daily_rate"`
	Updated   int    `json:"updated"`
}

func (h *Handler) accrue(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if d := optionalDate(req.AsOf); d != nil {
		asOf = *d
	}

	rate := h.defaultRate
	if req.DailyRate != nil {
		rate = *req.DailyRate
	}

	n, err := h.svc.AccrueLateFees(r.Context(), asOf, rate)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, accrueResponse{
		AsOf:      asOf.Format(time.DateOnly),
		DailyRate: rate.String(),
		Updated:   n,
	})
}

func optionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}

	return &t
}
