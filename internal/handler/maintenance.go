package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type MaintenanceHandler struct {
	eventService *service.EventService
	retention    time.Duration
	now          func() time.Time
}

func NewMaintenanceHandler(eventService *service.EventService, retention time.Duration) *MaintenanceHandler {
	return &MaintenanceHandler{
		eventService: eventService,
		retention:    retention,
		now:          time.Now,
	}
}

func (h *MaintenanceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/purge-preview", h.PurgePreview)
	return r
}

// GET /api/maintenance/purge-preview?days=&limit=
func (h *MaintenanceHandler) PurgePreview(w http.ResponseWriter, r *http.Request) {
	retention := h.retention
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, r, apperrors.InvalidInput("days", "must be a positive integer"))
			return
		}
		retention = time.Duration(days) * 24 * time.Hour
	}

	limit, err := ParseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	preview, err := h.eventService.PurgePreview(r.Context(), h.now().Add(-retention), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}
