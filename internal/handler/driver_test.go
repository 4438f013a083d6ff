package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
)

func TestDriverHandler_Login(t *testing.T) {
	t.Run("registers a driver", func(t *testing.T) {
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/api/drivers/login", map[string]string{
			"driverId":   testDriverID,
			"driverName": "  Ivan Petrov ",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, testDriverID, body["driverId"])
		assert.Equal(t, "Ivan Petrov", body["driverName"])
	})

	t.Run("rejects a different name for a known id", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t, testDriverID)

		rec := srv.do(t, http.MethodPost, "/api/drivers/login", map[string]string{
			"driverId":   testDriverID,
			"driverName": "Someone Else",
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/api/drivers/login", map[string]string{
			"driverId":   "12345",
			"driverName": "Short Id",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, rec)["code"])

		rec = srv.do(t, http.MethodPost, "/api/drivers/login", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDriverHandler_Get(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.login(t, testDriverID)

	rec = srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reliable", decode(t, rec)["rating"])

	rec = srv.do(t, http.MethodGet, "/api/drivers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])
}

func TestDriverHandler_Sessions(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t, testDriverID)

	t.Run("end without a session is 404", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/drivers/"+testDriverID+"/sessions/end", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "No active session found", decode(t, rec)["error"])

		rec = srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/sessions/active", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("start then end", func(t *testing.T) {
		started := srv.startSession(t, testDriverID)
		assert.Equal(t, true, started["active"])

		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/sessions/active", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, started["sessionId"], decode(t, rec)["sessionId"])

		rec = srv.do(t, http.MethodPost, "/api/drivers/"+testDriverID+"/sessions/end", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		ended := decode(t, rec)
		assert.Equal(t, false, ended["active"])
		assert.Equal(t, "driver_ended", ended["endReason"])
	})

	t.Run("lists all sessions", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/sessions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["sessions"], 1)
	})

	t.Run("start for an unknown driver is 404", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/drivers/654321/sessions", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDriverHandler_RecentEvents(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t, testDriverID)
	srv.startSession(t, testDriverID)

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodPost, "/api/detection-event", map[string]any{
			"driverId": testDriverID,
			"state":    "DROWSY",
			"duration": 2,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?limit=2", 2},
		{"?limit=0", 0},
		{"?limit=-4", 0},
		{"?limit=1000", 3},
	}

	for _, tt := range tests {
		t.Run("limit "+tt.query, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/events"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			events, ok := decode(t, rec)["events"].([]any)
			require.True(t, ok, "events must be a list, never null")
			assert.Len(t, events, tt.want)
		})
	}

	t.Run("rejects a non-integer limit", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/events?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, rec)["code"])
	})

	t.Run("rejects a malformed driver id", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/12ab56/events", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, rec)["code"])
	})
}

func TestDriverHandler_Prediction(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t, testDriverID)

	t.Run("no active session", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/prediction", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, string(prediction.LevelLow), body["riskLevel"])
		assert.Equal(t, prediction.RecommendationNoSession, body["recommendation"])
	})

	t.Run("long drowsy spell through the alias", func(t *testing.T) {
		srv.startSession(t, testDriverID)
		rec := srv.do(t, http.MethodPost, "/api/driver-state", map[string]any{
			"driverId": testDriverID,
			"state":    "drowsy",
			"duration": 400,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = srv.do(t, http.MethodGet, "/api/driver/"+testDriverID+"/prediction?period=30", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, string(prediction.LevelHigh), body["riskLevel"])
		assert.Equal(t, prediction.RecommendationAsleep, body["recommendation"])
	})

	t.Run("features", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/features", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		vector, ok := decode(t, rec)["features"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), vector["drowsyEventsCount"])
	})

	t.Run("rejects a bad period", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/prediction?period=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = srv.do(t, http.MethodGet, "/api/drivers/"+testDriverID+"/features?period=0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
