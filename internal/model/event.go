package model

import (
	"encoding/json"
	"time"
)

type Event struct {
	ID            int64       `db:"event_id" json:"eventId"`
	SessionID     int64       `db:"session_id" json:"sessionId"`
	DriverID      string      `db:"driver_id" json:"driverId"`
	StartTime     time.Time   `db:"start_time" json:"startTime"`
	Duration      float64     `db:"duration" json:"duration"`
	EventType     DriverState `db:"event_type" json:"eventType"`
	Metadata      string      `db:"metadata" json:"metadata"`
	EarValue      *float64    `db:"ear_value" json:"earValue,omitempty"`
	LeftEar       *float64    `db:"left_ear" json:"leftEar,omitempty"`
	RightEar      *float64    `db:"right_ear" json:"rightEar,omitempty"`
	HeadDirection *string     `db:"head_direction" json:"headDirection,omitempty"`
	FaceDetected  *bool       `db:"face_detected" json:"faceDetected,omitempty"`
	FeatureSource *string     `db:"feature_source" json:"featureSource,omitempty"`
}

// EndTime is the start time plus the event duration.
func (e *Event) EndTime() time.Time {
	return e.StartTime.Add(time.Duration(e.Duration * float64(time.Second)))
}

// ToSSEEventData returns JSON data for SSE event_logged events
func (e *Event) ToSSEEventData() json.RawMessage {
	var metadata json.RawMessage
	if json.Valid([]byte(e.Metadata)) {
		metadata = json.RawMessage(e.Metadata)
	}
	data, _ := json.Marshal(map[string]any{
		"eventId":   e.ID,
		"sessionId": e.SessionID,
		"driverId":  e.DriverID,
		"eventType": e.EventType,
		"startTime": e.StartTime,
		"duration":  e.Duration,
		"earValue":  e.EarValue,
		"metadata":  metadata,
	})
	return data
}

type CreateEventParams struct {
	SessionID     int64
	DriverID      string
	StartTime     time.Time
	Duration      float64
	EventType     DriverState
	Metadata      string
	EarValue      *float64
	LeftEar       *float64
	RightEar      *float64
	HeadDirection *string
	FaceDetected  *bool
	FeatureSource *string
}

// DetectionEvent is the inbound payload produced by the client perception pipeline.
type DetectionEvent struct {
	DriverID  string         `json:"driverId"`
	SessionID *int64         `json:"sessionId,omitempty"`
	State     string         `json:"state"`
	Duration  *float64       `json:"duration,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
