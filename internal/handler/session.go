package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	eventService   *service.EventService
}

func NewSessionHandler(sessionService *service.SessionService, eventService *service.EventService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		eventService:   eventService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListActive)
	r.Get("/{sessionId}", h.Get)
	r.Get("/{sessionId}/events", h.Events)
	r.Get("/{sessionId}/summary", h.Summary)

	return r
}

// GET /api/sessions
func (h *SessionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.GetAllActiveSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": emptyIfNil(sessions),
		"total":    len(sessions),
	})
}

// GET /api/sessions/{sessionId}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.sessionService.GetSessionByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /api/sessions/{sessionId}/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.eventService.GetEventsForSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": emptyIfNil(events)})
}

// GET /api/sessions/{sessionId}/summary
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.eventService.SessionSummary(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
