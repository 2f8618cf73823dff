package reconciliation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
)

type Handler struct {
	svc *reconcile.Service
}

func NewHandler(svc *reconcile.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/bank-statement", h.upload)
}

type lineResponse struct {
	Row             int               `json:"row"`
	Date            string            `json:"date"`
	Description     string            `json:"description"`
	Reference       string            `json:"reference,omitempty"`
	Amount          string            `json:"amount"`
	Credit          bool              `json:"credit"`
	Outcome         reconcile.Outcome `json:"outcome"`
	PaymentID       *uuid.UUID        `json:"payment_id,omitempty"`
	ExpectedAmount  string            `json:"expected_amount,omitempty"`
	SuggestedUnitID *uuid.UUID        `json:"suggested_unit_id,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type reportResponse struct {
	ImportID   uuid.UUID                 `json:"import_id"`
	Filename   string                    `json:"filename"`
	SHA256     string                    `json:"sha256"`
	Profile    string                    `json:"profile"`
	Charset    string                    `json:"charset"`
	ImportedAt time.Time                 `json:"imported_at"`
	Counts     map[reconcile.Outcome]int `json:"counts"`
	Lines      []lineResponse            `json:"lines"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, reconcile.MaxUploadSize+1<<20)

	if err := r.ParseMultipartForm(reconcile.MaxUploadSize); err != nil {
		respond.Error(w, r, billing.Invalid("file", "failed to parse form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, billing.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	report, err := h.svc.Reconcile(r.Context(), header.Filename, file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toReportResponse(report))
}

func toReportResponse(rep *reconcile.Report) reportResponse {
	resp := reportResponse{
		ImportID:   rep.Import.ID,
		Filename:   rep.Import.Filename,
		SHA256:     rep.Import.SHA256,
		Profile:    rep.Profile,
		Charset:    rep.Charset,
		ImportedAt: rep.Import.ImportedAt,
		Counts:     rep.Counts,
		Lines:      make([]lineResponse, len(rep.Results)),
	}

	for i, res := range rep.Results {
		line := lineResponse{
			Row:             res.Line.Row,
			Date:            res.Line.Date.Format(time.DateOnly),
			Description:     res.Line.Description,
			Reference:       res.Line.Reference,
			Amount:          res.Line.Amount.StringFixed(2),
			Credit:          res.Line.Credit,
			Outcome:         res.Outcome,
			PaymentID:       res.PaymentID,
			SuggestedUnitID: res.SuggestedUnitID,
			Error:           res.Error,
		}

		if res.Expected != nil {
			line.ExpectedAmount = res.Expected.StringFixed(2)
		}

		resp.Lines[i] = line
	}

	return resp
}
