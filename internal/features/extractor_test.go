package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

type fakeSource struct {
	events []model.Event
	since  time.Time
	err    error
}

func (f *fakeSource) FindByDriverSince(_ context.Context, _ string, since time.Time) ([]model.Event, error) {
	f.since = since
	return f.events, f.err
}

func ptr[T any](v T) *T { return &v }

// 11:00 UTC falls in the 0.1 time-of-day band.
var now = time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)

func event(state model.DriverState, offset time.Duration, duration float64) model.Event {
	return model.Event{
		DriverID:  "123456",
		StartTime: now.Add(-offset),
		Duration:  duration,
		EventType: state,
		Metadata:  "{}",
	}
}

func TestCompute(t *testing.T) {
	t.Run("empty window", func(t *testing.T) {
		v := Compute(nil, now.Add(-time.Hour), now, DefaultWindow, time.UTC)

		assert.Equal(t, DefaultEar, v.Get(EarValue))
		assert.Equal(t, DefaultEar, v.Get(MinEar))
		assert.Zero(t, v.Get(DrowsyEvents))
		assert.Zero(t, v.Get(DrowsyTimeFraction))
		assert.Zero(t, v.Get(DistractedTimeFraction))
		assert.Equal(t, 0.5, v.Get(DrivingDuration))
		assert.Equal(t, 0.1, v.Get(TimeOfDay))
	})

	t.Run("single long drowsy event", func(t *testing.T) {
		events := []model.Event{event(model.DriverStateDrowsy, 10*time.Minute, 400)}
		v := Compute(events, now.Add(-20*time.Minute), now, DefaultWindow, time.UTC)

		assert.InDelta(t, 0.2222, v.Get(DrowsyTimeFraction), 1e-4)
		assert.Equal(t, 1.0, v.Get(DrowsyEventsCount))
		assert.InDelta(t, 1.0/30, v.Get(DrowsyEvents), 1e-9)
	})

	t.Run("counts and fractions", func(t *testing.T) {
		events := []model.Event{
			event(model.DriverStateDrowsy, time.Minute, 2),
			event(model.DriverStateDrowsy, 2*time.Minute, 3),
			event(model.DriverStateDistracted, 3*time.Minute, 9),
			event(model.DriverStateNormal, 4*time.Minute, 1),
		}
		v := Compute(events, time.Time{}, now, 10*time.Minute, time.UTC)

		assert.Equal(t, 2.0, v.Get(DrowsyEventsCount))
		assert.Equal(t, 1.0, v.Get(DistractionEventsCount))
		assert.InDelta(t, 1.0/30, v.Get(DistractionCount), 1e-9)
		assert.InDelta(t, 5.0/600, v.Get(DrowsyTimeFraction), 1e-9)
		assert.InDelta(t, 9.0/600, v.Get(DistractedTimeFraction), 1e-9)
		assert.Zero(t, v.Get(DrivingDuration))
	})

	t.Run("ear mean and minimum", func(t *testing.T) {
		a := event(model.DriverStateNormal, time.Minute, 1)
		a.EarValue = ptr(0.30)
		b := event(model.DriverStateDrowsy, 2*time.Minute, 1)
		b.EarValue = ptr(0.10)
		c := event(model.DriverStateNormal, 3*time.Minute, 1)

		v := Compute([]model.Event{a, b, c}, time.Time{}, now, DefaultWindow, time.UTC)

		assert.InDelta(t, 0.20, v.Get(EarValue), 1e-9)
		assert.InDelta(t, 0.10, v.Get(MinEar), 1e-9)
	})

	t.Run("blink markers in metadata", func(t *testing.T) {
		a := event(model.DriverStateNormal, time.Minute, 1)
		a.Metadata = `{"blink":true}`
		b := event(model.DriverStateNormal, 2*time.Minute, 1)
		b.Metadata = `{"blinkRate":14}`
		c := event(model.DriverStateNormal, 3*time.Minute, 1)

		v := Compute([]model.Event{a, b, c}, time.Time{}, now, DefaultWindow, time.UTC)

		assert.InDelta(t, 2.0/30, v.Get(BlinkRate), 1e-9)
	})

	t.Run("events outside the window are ignored", func(t *testing.T) {
		events := []model.Event{
			event(model.DriverStateDrowsy, 31*time.Minute, 100),
			event(model.DriverStateDrowsy, -time.Minute, 100),
		}
		v := Compute(events, time.Time{}, now, DefaultWindow, time.UTC)

		assert.Zero(t, v.Get(DrowsyEventsCount))
		assert.Zero(t, v.Get(DrowsyTimeFraction))
	})

	t.Run("non-positive window yields zero fractions", func(t *testing.T) {
		v := Compute(nil, time.Time{}, now, 0, time.UTC)

		assert.Zero(t, v.Get(DrowsyTimeFraction))
		assert.Zero(t, v.Get(DistractedTimeFraction))
	})

	t.Run("driving duration uses whole minutes", func(t *testing.T) {
		v := Compute(nil, now.Add(-(59*time.Minute + 59*time.Second)), now, DefaultWindow, time.UTC)
		assert.InDelta(t, 59.0/120, v.Get(DrivingDuration), 1e-9)
	})

	t.Run("time of day follows the configured zone", func(t *testing.T) {
		loc := time.FixedZone("UTC-8", -8*3600)
		v := Compute(nil, time.Time{}, now, DefaultWindow, loc)
		// 11:00 UTC is 03:00 at UTC-8
		assert.Equal(t, 1.0, v.Get(TimeOfDay))
	})
}

func TestTimeOfDayFactor(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 0.5},
		{1, 0.5},
		{2, 1.0},
		{5, 1.0},
		{6, 0.2},
		{9, 0.2},
		{10, 0.1},
		{13, 0.1},
		{14, 0.7},
		{15, 0.7},
		{16, 0.1},
		{19, 0.1},
		{20, 0.5},
		{23, 0.5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeOfDayFactor(tt.hour), "hour %d", tt.hour)
	}
}

func TestExtractor(t *testing.T) {
	t.Run("queries from window start", func(t *testing.T) {
		src := &fakeSource{events: []model.Event{event(model.DriverStateDrowsy, time.Minute, 30)}}
		x := NewExtractor(src, time.UTC)

		v, err := x.Extract(context.Background(), "123456", now.Add(-time.Hour), now, 0)
		require.NoError(t, err)

		assert.Equal(t, now.Add(-DefaultWindow), src.since)
		assert.Equal(t, 1.0, v.Get(DrowsyEventsCount))
	})

	t.Run("propagates store errors", func(t *testing.T) {
		src := &fakeSource{err: errors.New("boom")}
		x := NewExtractor(src, nil)

		_, err := x.Extract(context.Background(), "123456", now, now, DefaultWindow)
		assert.Error(t, err)
	})
}
