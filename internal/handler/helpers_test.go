package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Nekit-S/drowsiness-detection/internal/features"
	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/syncutil"
)

const testDriverID = "123456"

type testServer struct {
	router   chi.Router
	broker   *sse.Broker
	store    *repository.MemoryStore
	sessions *service.SessionService
	events   *service.EventService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	locker := syncutil.NewKeyedMutex()
	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	driverService := service.NewDriverService(store.Drivers(), locker)
	sessionService := service.NewSessionService(store.Drivers(), store.Sessions(), store, locker, broker)
	eventService := service.NewEventService(store.Events(), sessionService, broker)
	analyticsService := service.NewAnalyticsService(
		store.Drivers(), store.Events(), store.Sessions(), sessionService,
		features.NewExtractor(store.Events(), time.UTC), prediction.NewRuleModel(), features.DefaultWindow,
	)

	stream := NewStreamHandler(broker)
	driverHandler := NewDriverHandler(driverService, sessionService, eventService, analyticsService, stream)
	detectionHandler := NewDetectionHandler(eventService)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Mount("/drivers", driverHandler.Routes())
		r.Get("/driver/{driverId}/prediction", driverHandler.Prediction)
		r.Mount("/sessions", NewSessionHandler(sessionService, eventService).Routes())
		r.Post("/detection-event", detectionHandler.Ingest)
		r.Post("/driver-state", detectionHandler.Ingest)
		r.Mount("/dispatcher", NewDispatcherHandler(analyticsService, stream).Routes())
		r.Mount("/model", NewModelHandler(analyticsService).Routes())
		r.Mount("/maintenance", NewMaintenanceHandler(eventService, 30*24*time.Hour).Routes())
	})

	return &testServer{
		router:   r,
		broker:   broker,
		store:    store,
		sessions: sessionService,
		events:   eventService,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, driverID string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/drivers/login", map[string]string{
		"driverId":   driverID,
		"driverName": "Driver " + driverID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) startSession(t *testing.T, driverID string) map[string]any {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/drivers/"+driverID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) serveWith(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}
