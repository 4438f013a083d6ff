package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceHandler_PurgePreview(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t, testDriverID)
	srv.startSession(t, testDriverID)

	rec := srv.do(t, http.MethodPost, "/api/detection-event", map[string]any{
		"driverId": testDriverID,
		"state":    "DROWSY",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("nothing is old enough by default", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/maintenance/purge-preview", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, float64(0), body["total"])
		assert.Equal(t, []any{}, body["events"])
	})

	t.Run("threshold moves with days", func(t *testing.T) {
		h := NewMaintenanceHandler(srv.events, 30*24*time.Hour)
		h.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

		rec := srv.serveWith(t, h.Routes(), "/purge-preview?days=1&limit=5")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, float64(1), body["total"])
		assert.Len(t, body["events"], 1)
	})

	t.Run("rejects bad days", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/maintenance/purge-preview?days=-2", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
