package matching

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
	"github.com/luisfernandobanegasro/parcial/internal/matching"
)

type Handler struct {
	svc *matching.Service
}

func NewHandler(svc *matching.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/suggest", h.suggest)
	r.Post("/", h.learn)
}

type suggestResponse struct {
	RawDescription string     `json:"raw_description"`
	UnitID         *uuid.UUID `json:"unit_id"`
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	rawDesc := r.URL.Query().Get("raw_description")
	if rawDesc == "" {
		respond.Error(w, r, billing.Invalid("raw_description", "is required"))
		return
	}

	unitID, err := h.svc.Suggest(r.Context(), rawDesc)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, suggestResponse{
		RawDescription: rawDesc,
		UnitID:         unitID,
	})
}

type learnRequest struct {
	RawPattern string    `json:"raw_pattern" validate:"required,max=200"`
	UnitID     uuid.UUID `json:"unit_id"`
}

type mappingResponse struct {
	ID         uuid.UUID `json:"id"`
	RawPattern string    `json:"raw_pattern"`
	UnitID     uuid.UUID `json:"unit_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) learn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	m, err := h.svc.Learn(r.Context(), req.RawPattern, req.UnitID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, mappingResponse{
		ID:         m.ID,
		RawPattern: m.RawPattern,
		UnitID:     m.UnitID,
		CreatedAt:  m.CreatedAt,
	})
}
