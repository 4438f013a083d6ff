package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/util"
)

type StreamHandler struct {
	broker    *sse.Broker
	heartbeat time.Duration
}

func NewStreamHandler(broker *sse.Broker) *StreamHandler {
	return &StreamHandler{
		broker:    broker,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /api/drivers/{driverId}/stream
func (h *StreamHandler) Driver(w http.ResponseWriter, r *http.Request) {
	driverID := driverIDParam(r)
	if !util.IsValidDriverID(driverID) {
		writeError(w, r, apperrors.InvalidInput("driverId", "must be exactly 6 digits"))
		return
	}
	h.serve(w, r, driverID)
}

// GET /api/dispatcher/stream
func (h *StreamHandler) Dispatcher(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, sse.DispatcherTopic)
}

func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("topic", topic).Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"topic": topic}); err != nil {
		log.Debug().Err(err).Str("topic", topic).Msg("failed to send connected event")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("topic", topic).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("topic", topic).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("topic", topic).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *StreamHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
