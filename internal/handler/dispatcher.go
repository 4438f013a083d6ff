package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type DispatcherHandler struct {
	analyticsService *service.AnalyticsService
	stream           *StreamHandler
}

func NewDispatcherHandler(analyticsService *service.AnalyticsService, stream *StreamHandler) *DispatcherHandler {
	return &DispatcherHandler{
		analyticsService: analyticsService,
		stream:           stream,
	}
}

func (h *DispatcherHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Get("/drivers", h.Overview)
		r.Get("/drivers/{driverId}/stats", h.Stats)
		r.Get("/drivers/{driverId}/metadata", h.Metadata)
	})

	if h.stream != nil {
		r.Get("/stream", h.stream.Dispatcher)
	}

	return r
}

// GET /api/dispatcher/drivers
func (h *DispatcherHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.analyticsService.DispatcherOverview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"drivers": emptyIfNil(overview)})
}

// GET /api/dispatcher/drivers/{driverId}/stats
func (h *DispatcherHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.DriverStats(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /api/dispatcher/drivers/{driverId}/metadata
func (h *DispatcherHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analyticsService.MetadataSummary(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
