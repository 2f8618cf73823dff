package statement

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
)

type Handler struct {
	svc *billing.Service
}

func NewHandler(svc *billing.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/unit/{unitID}", h.get)
}

type rowResponse struct {
	ChargeID         uuid.UUID              `json:"charge_id"`
	ConceptID        uuid.UUID              `json:"concept_id"`
	Concept          string                 `json:"concept"`
	Period           string                 `json:"period"`
	DueDate          string                 `json:"due_date"`
	Principal        string                 `json:"principal"`
	LateFee          string                 `json:"late_fee"`
	Paid             string                 `json:"paid"`
	Balance          string                 `json:"balance"`
	RegisteredStatus billing.ChargeStatus   `json:"registered_status"`
	Status           billing.ComputedStatus `json:"status"`
}

type pageResponse struct {
	UnitID     uuid.UUID     `json:"unit_id"`
	Rows       []rowResponse `json:"rows"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	unitID, err := respond.PathID(r, "unitID")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	page, err := h.svc.ListStatement(r.Context(), unitID, q)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := pageResponse{
		UnitID:     unitID,
		Rows:       make([]rowResponse, len(page.Rows)),
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}

	for i, row := range page.Rows {
		resp.Rows[i] = rowResponse{
			ChargeID:         row.ChargeID,
			ConceptID:        row.ConceptID,
			Concept:          row.ConceptName,
			Period:           row.Period.Format(time.DateOnly),
			DueDate:          row.DueDate.Format(time.DateOnly),
			Principal:        row.Principal.StringFixed(2),
			LateFee:          row.LateFee.StringFixed(2),
			Paid:             row.Paid.StringFixed(2),
			Balance:          row.Balance.StringFixed(2),
			RegisteredStatus: row.RegisteredStatus,
			Status:           row.ComputedStatus,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

func parseQuery(r *http.Request) (billing.StatementQuery, error) {
	var (
		q   billing.StatementQuery
		err error
	)

	if q.PeriodFrom, err = respond.QueryDate(r, "period_from"); err != nil {
		return q, err
	}

	if q.PeriodTo, err = respond.QueryDate(r, "period_to"); err != nil {
		return q, err
	}

	q.Status = r.URL.Query().Get("status")

	if q.Page, err = queryInt(r, "page"); err != nil {
		return q, err
	}

	if q.PerPage, err = queryInt(r, "per_page"); err != nil {
		return q, err
	}

	return q, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, billing.Invalid(name, "must be a positive integer")
	}

	return n, nil
}
