package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type ModelHandler struct {
	analyticsService *service.AnalyticsService
}

func NewModelHandler(analyticsService *service.AnalyticsService) *ModelHandler {
	return &ModelHandler{analyticsService: analyticsService}
}

func (h *ModelHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/weights", h.Weights)
	r.Post("/train", h.Train)

	return r
}

type trainRequest struct {
	Samples []prediction.Sample `json:"samples"`
}

// GET /api/model/weights
func (h *ModelHandler) Weights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"weights": h.analyticsService.Weights()})
}

// POST /api/model/train
func (h *ModelHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	weights := h.analyticsService.Train(r.Context(), req.Samples)

	writeJSON(w, http.StatusOK, map[string]any{
		"samples": len(req.Samples),
		"weights": weights,
	})
}
