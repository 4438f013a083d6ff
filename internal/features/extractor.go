package features

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

// Feature names.
const (
	EarValue               = "earValue"
	MinEar                 = "minEar"
	DrowsyEvents           = "drowsyEvents"
	DrowsyEventsCount      = "drowsyEventsCount"
	DistractionCount       = "distractionCount"
	DistractionEventsCount = "distractionEventsCount"
	DrivingDuration        = "drivingDuration"
	TimeOfDay              = "timeOfDay"
	BlinkRate              = "blinkRate"
	DrowsyTimeFraction     = "drowsyTimeFraction"
	DistractedTimeFraction = "distractedTimeFraction"
)

const (
	DefaultWindow = 30 * time.Minute

	// DefaultEar is the open-eye baseline used when no EAR was observed.
	DefaultEar = 0.3

	// countNormalizer is fixed at 30 regardless of the window length; the
	// classifier thresholds are calibrated against this scaling.
	countNormalizer = 30.0

	// shiftMinutes normalizes driving time to a two-hour reference shift.
	shiftMinutes = 120.0

	blinkMarker = "blink"
)

// Vector is a derived, never-persisted set of named features.
type Vector map[string]float64

// Get returns the named feature or 0 when absent.
func (v Vector) Get(name string) float64 {
	return v[name]
}

type EventSource interface {
	FindByDriverSince(ctx context.Context, driverID string, since time.Time) ([]model.Event, error)
}

type Extractor struct {
	events   EventSource
	location *time.Location
}

// NewExtractor reads events from source and evaluates time of day in loc.
func NewExtractor(source EventSource, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{events: source, location: loc}
}

// Extract loads the driver's events in [now-window, now] and reduces them.
func (x *Extractor) Extract(ctx context.Context, driverID string, sessionStart, now time.Time, window time.Duration) (Vector, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	events, err := x.events.FindByDriverSince(ctx, driverID, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", driverID, err)
	}

	return Compute(events, sessionStart, now, window, x.location), nil
}

// Compute is the pure reduction behind Extract. Events outside
// [now-window, now] are ignored.
func Compute(events []model.Event, sessionStart, now time.Time, window time.Duration, loc *time.Location) Vector {
	windowStart := now.Add(-window)

	var (
		earSum, earMin      float64
		earCount            int
		drowsy, distracted  int
		blinks              int
		drowsyDur, distrDur float64
	)

	for i := range events {
		e := &events[i]
		if e.StartTime.Before(windowStart) || e.StartTime.After(now) {
			continue
		}

		if e.EarValue != nil {
			if earCount == 0 || *e.EarValue < earMin {
				earMin = *e.EarValue
			}
			earSum += *e.EarValue
			earCount++
		}

		switch e.EventType {
		case model.DriverStateDrowsy:
			drowsy++
			drowsyDur += e.Duration
		case model.DriverStateDistracted:
			distracted++
			distrDur += e.Duration
		}

		if strings.Contains(e.Metadata, blinkMarker) {
			blinks++
		}
	}

	v := Vector{
		EarValue:               DefaultEar,
		MinEar:                 DefaultEar,
		DrowsyEvents:           float64(drowsy) / countNormalizer,
		DrowsyEventsCount:      float64(drowsy),
		DistractionCount:       float64(distracted) / countNormalizer,
		DistractionEventsCount: float64(distracted),
		DrivingDuration:        drivingMinutes(sessionStart, now) / shiftMinutes,
		TimeOfDay:              TimeOfDayFactor(now.In(loc).Hour()),
		BlinkRate:              float64(blinks) / countNormalizer,
	}
	if earCount > 0 {
		v[EarValue] = earSum / float64(earCount)
		v[MinEar] = earMin
	}

	if periodSeconds := window.Seconds(); periodSeconds > 0 {
		v[DrowsyTimeFraction] = drowsyDur / periodSeconds
		v[DistractedTimeFraction] = distrDur / periodSeconds
	} else {
		v[DrowsyTimeFraction] = 0
		v[DistractedTimeFraction] = 0
	}

	return v
}

func drivingMinutes(sessionStart, now time.Time) float64 {
	if sessionStart.IsZero() || now.Before(sessionStart) {
		return 0
	}
	return float64(int64(now.Sub(sessionStart) / time.Minute))
}

// TimeOfDayFactor maps a wall-clock hour to a risk amplification factor.
func TimeOfDayFactor(hour int) float64 {
	switch {
	case hour >= 2 && hour < 6:
		return 1.0
	case hour >= 14 && hour < 16:
		return 0.7
	case hour >= 20 || hour < 2:
		return 0.5
	case hour >= 6 && hour < 10:
		return 0.2
	default:
		return 0.1
	}
}
