package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:      EventSessionSuperseded,
		DriverID:  "123456",
		SessionID: 7,
		Details:   map[string]interface{}{"newSessionId": int64(8), "ageSeconds": 12.5},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "anomaly", entry["audit"])
	assert.Equal(t, "session_superseded", entry["event_type"])
	assert.Equal(t, "123456", entry["driver_id"])
	assert.Equal(t, float64(7), entry["session_id"])
	assert.Equal(t, float64(8), entry["newSessionId"])
	assert.Equal(t, 12.5, entry["ageSeconds"])
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/api/detection-event", nil)
	req.Header.Set("User-Agent", "pipeline/1.0")
	LogFromRequest(req, Event{Type: EventRateLimitExceed})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pipeline/1.0", entry["user_agent"])
	assert.Equal(t, "192.0.2.1:1234", entry["ip"])
	assert.NotContains(t, entry, "driver_id")
}

func TestClientIP(t *testing.T) {
	t.Run("first forwarded hop", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		assert.Equal(t, "10.0.0.1", ClientIP(req))
	})

	t.Run("real ip header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.3")
		assert.Equal(t, "10.0.0.3", ClientIP(req))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		assert.Equal(t, "192.0.2.1:1234", ClientIP(req))
	})
}
