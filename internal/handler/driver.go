package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type DriverHandler struct {
	driverService    *service.DriverService
	sessionService   *service.SessionService
	eventService     *service.EventService
	analyticsService *service.AnalyticsService
	stream           *StreamHandler
}

func NewDriverHandler(
	driverService *service.DriverService,
	sessionService *service.SessionService,
	eventService *service.EventService,
	analyticsService *service.AnalyticsService,
	stream *StreamHandler,
) *DriverHandler {
	return &DriverHandler{
		driverService:    driverService,
		sessionService:   sessionService,
		eventService:     eventService,
		analyticsService: analyticsService,
		stream:           stream,
	}
}

func (h *DriverHandler) Routes() chi.Router {
	r := chi.NewRouter()
	timeout := chimiddleware.Timeout(config.ServerRequestTimeout)

	r.With(timeout).Post("/login", h.Login)
	r.With(timeout).Get("/", h.List)

	r.Route("/{driverId}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/", h.Get)
			r.Post("/sessions", h.StartSession)
			r.Post("/sessions/end", h.EndSession)
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/active", h.ActiveSession)
			r.Get("/events", h.RecentEvents)
			r.Get("/prediction", h.Prediction)
			r.Get("/features", h.Features)
		})

		// Streams outlive the request timeout.
		if h.stream != nil {
			r.Get("/stream", h.stream.Driver)
		}
	})

	return r
}

type loginRequest struct {
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
}

// POST /api/drivers/login
func (h *DriverHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	driver, err := h.driverService.Login(r.Context(), req.DriverID, req.DriverName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, driver)
}

// GET /api/drivers
func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.driverService.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"drivers": emptyIfNil(drivers),
		"total":   len(drivers),
	})
}

// GET /api/drivers/{driverId}
func (h *DriverHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID := driverIDParam(r)

	driver, err := h.driverService.Get(ctx, driverID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rating, err := h.analyticsService.DriverRating(ctx, driverID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"driverId":   driver.ID,
		"driverName": driver.Name,
		"createdAt":  driver.CreatedAt,
		"rating":     rating,
	})
}

// POST /api/drivers/{driverId}/sessions
func (h *DriverHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.StartSession(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// POST /api/drivers/{driverId}/sessions/end
func (h *DriverHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.EndSession(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if session == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No active session found"})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /api/drivers/{driverId}/sessions
func (h *DriverHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.GetSessionsForDriver(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": emptyIfNil(sessions)})
}

// GET /api/drivers/{driverId}/sessions/active
func (h *DriverHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.GetActiveSession(r.Context(), driverIDParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if session == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No active session found"})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /api/drivers/{driverId}/events?limit=
func (h *DriverHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.eventService.GetRecentEventsForDriver(r.Context(), driverIDParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": emptyIfNil(events)})
}

// GET /api/drivers/{driverId}/prediction?period=
func (h *DriverHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	window, err := parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	driverID := driverIDParam(r)
	assessment, err := h.analyticsService.GetFatiguePrediction(r.Context(), driverID, window)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Debug().
		Str("driverId", driverID).
		Str("riskLevel", string(assessment.RiskLevel)).
		Float64("probability", assessment.Probability).
		Msg("fatigue prediction served")

	writeJSON(w, http.StatusOK, assessment)
}

// GET /api/drivers/{driverId}/features?period=
func (h *DriverHandler) Features(w http.ResponseWriter, r *http.Request) {
	window, err := parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vector, err := h.analyticsService.GetFeatures(r.Context(), driverIDParam(r), window)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"driverId": driverIDParam(r),
		"features": vector,
	})
}
