package export

import (
	"archive/zip"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/export"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts under /account-statement next to the JSON statement.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/unit/{unitID}/export.csv", h.csv)
	r.Get("/unit/{unitID}/export.zip", h.bundle)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*export.Export, bool) {
	unitID, err := respond.PathID(r, "unitID")
	if err != nil {
		respond.Error(w, r, err)
		return nil, false
	}

	var q billing.StatementQuery

	if q.PeriodFrom, err = respond.QueryDate(r, "period_from"); err != nil {
		respond.Error(w, r, err)
		return nil, false
	}

	if q.PeriodTo, err = respond.QueryDate(r, "period_to"); err != nil {
		respond.Error(w, r, err)
		return nil, false
	}

	q.Status = r.URL.Query().Get("status")

	exp, err := h.svc.Export(r.Context(), unitID, q)
	if err != nil {
		respond.Error(w, r, err)
		return nil, false
	}

	return exp, true
}

func filename(exp *export.Export, ext string) string {
	return fmt.Sprintf("estado_%s_%s.%s", exp.Unit.Code, time.Now().Format("20060102"), ext)
}

func (h *Handler) csv(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.load(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(exp, "csv")))

	if err := export.WriteCSV(w, exp.Rows); err != nil {
		slog.ErrorContext(r.Context(), "failed to write statement csv", "unit_id", exp.Unit.ID, "error", err)
	}
}

// bundle zips the CSV together with the plain-text summary for the owner.
func (h *Handler) bundle(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.load(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(exp, "zip")))

	zw := zip.NewWriter(w)

	if err := writeBundle(zw, exp); err != nil {
		slog.ErrorContext(r.Context(), "failed to create zip", "unit_id", exp.Unit.ID, "error", err)
	}

	if err := zw.Close(); err != nil {
		slog.ErrorContext(r.Context(), "failed to finish zip", "unit_id", exp.Unit.ID, "error", err)
	}
}

func writeBundle(zw *zip.Writer, exp *export.Export) error {
	f, err := zw.Create("estado_de_cuenta.csv")
	if err != nil {
		return err
	}

	if err := export.WriteCSV(f, exp.Rows); err != nil {
		return err
	}

	f, err = zw.Create("resumen.txt")
	if err != nil {
		return err
	}

	_, err = f.Write([]byte(export.Summary(exp.Unit.Code, exp.Rows)))

	return err
}
