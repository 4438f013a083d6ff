// Package metadata turns the free-form metadata map sent with a detection
// event into promoted scalar columns plus an opaque JSON remainder.
package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Well-known keys lifted out of the map into dedicated fields.
const (
	KeyEarValue      = "earValue"
	KeyLeftEar       = "leftEar"
	KeyRightEar      = "rightEar"
	KeyHeadDirection = "headDirection"
	KeyFaceDetected  = "faceDetected"
	KeyFeatureSource = "featureSource"
)

// Keys filled in when the caller did not supply them.
const (
	KeyTimestamp = "timestamp"
	KeySessionID = "sessionId"
	KeyEventType = "eventType"
	KeySource    = "source"
)

const (
	DefaultSource = "MediaPipe"

	// maxTagLength matches the width of the head_direction and feature_source columns.
	maxTagLength = 32
)

var promotedKeys = []string{
	KeyEarValue, KeyLeftEar, KeyRightEar, KeyHeadDirection, KeyFaceDetected, KeyFeatureSource,
}

type Promoted struct {
	EarValue      *float64
	LeftEar       *float64
	RightEar      *float64
	HeadDirection *string
	FaceDetected  *bool
	FeatureSource *string
}

type Defaults struct {
	Timestamp time.Time
	SessionID int64
	EventType string
}

type Result struct {
	Promoted
	// JSON is the serialized remainder, never empty.
	JSON string
}

// Normalize extracts the promoted fields and serializes what is left. The
// input map is not modified. A malformed promoted value resolves to absent
// and never fails the call.
func Normalize(raw map[string]any, defaults Defaults) Result {
	rest := make(map[string]any, len(raw)+4)
	for k, v := range raw {
		rest[k] = v
	}

	var res Result
	res.EarValue = parseFloat(KeyEarValue, rest[KeyEarValue])
	res.LeftEar = parseFloat(KeyLeftEar, rest[KeyLeftEar])
	res.RightEar = parseFloat(KeyRightEar, rest[KeyRightEar])
	res.HeadDirection = parseTag(KeyHeadDirection, rest[KeyHeadDirection])
	res.FaceDetected = parseBool(KeyFaceDetected, rest[KeyFaceDetected])
	res.FeatureSource = parseTag(KeyFeatureSource, rest[KeyFeatureSource])

	for _, k := range promotedKeys {
		delete(rest, k)
	}

	putIfAbsent(rest, KeyTimestamp, defaults.Timestamp.UnixMilli())
	putIfAbsent(rest, KeySessionID, defaults.SessionID)
	putIfAbsent(rest, KeyEventType, defaults.EventType)
	putIfAbsent(rest, KeySource, DefaultSource)

	data, err := json.Marshal(rest)
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize event metadata, storing empty object")
		res.JSON = "{}"
		return res
	}
	res.JSON = string(data)
	return res
}

// Decode parses a stored metadata blob. Malformed blobs decode to nil.
func Decode(blob string) map[string]any {
	if blob == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil
	}
	return m
}

// Float reads a numeric metadata value the same way promoted fields are read.
func Float(m map[string]any, key string) (float64, bool) {
	v := toFloat(m[key])
	if v == nil {
		return 0, false
	}
	return *v, true
}

func putIfAbsent(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func parseFloat(key string, v any) *float64 {
	if v == nil {
		return nil
	}
	f := toFloat(v)
	if f == nil {
		logMalformed(key, v)
	}
	return f
}

func toFloat(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseBool(key string, v any) *bool {
	switch b := v.(type) {
	case nil:
		return nil
	case bool:
		return &b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			logMalformed(key, v)
			return nil
		}
		return &parsed
	default:
		logMalformed(key, v)
		return nil
	}
}

func parseTag(key string, v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(t)
	case bool, float64, float32, int, int64, json.Number:
		s = fmt.Sprint(t)
	default:
		logMalformed(key, v)
		return nil
	}
	if s == "" {
		return nil
	}
	if len(s) > maxTagLength {
		logMalformed(key, v)
		return nil
	}
	return &s
}

func logMalformed(key string, v any) {
	log.Warn().
		Str("key", key).
		Str("valueType", fmt.Sprintf("%T", v)).
		Msg("ignoring malformed metadata field")
}
