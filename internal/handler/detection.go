package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type DetectionHandler struct {
	eventService *service.EventService
}

func NewDetectionHandler(eventService *service.EventService) *DetectionHandler {
	return &DetectionHandler{eventService: eventService}
}

func (h *DetectionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Ingest)
	return r
}

// POST /api/detection-event
func (h *DetectionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var in model.DetectionEvent
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.eventService.Ingest(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch result.Outcome {
	case service.OutcomeStored:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  string(result.Outcome),
			"eventId": result.Event.ID,
		})
	case service.OutcomeSkippedNormal:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(result.Outcome)})
	default:
		writeError(w, r, apperrors.NoActiveSession())
	}
}
