package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nekit-S/drowsiness-detection/internal/features"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/syncutil"
)

const testDriverID = "123456"

type published struct {
	DriverID string
	Event    sse.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, driverID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{DriverID: driverID, Event: event})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event.Type
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store     *repository.MemoryStore
	clock     *fakeClock
	pub       *recordingPublisher
	drivers   *DriverService
	sessions  *SessionService
	events    *EventService
	analytics *AnalyticsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	locker := syncutil.NewKeyedMutex()

	sessions := NewSessionService(store.Drivers(), store.Sessions(), store, locker, pub)
	sessions.now = clock.Now

	events := NewEventService(store.Events(), sessions, pub)
	events.now = clock.Now

	extractor := features.NewExtractor(store.Events(), time.UTC)
	analytics := NewAnalyticsService(
		store.Drivers(), store.Events(), store.Sessions(), sessions,
		extractor, prediction.NewRuleModel(), features.DefaultWindow,
	)
	analytics.now = clock.Now

	return &testEnv{
		store:     store,
		clock:     clock,
		pub:       pub,
		drivers:   NewDriverService(store.Drivers(), locker),
		sessions:  sessions,
		events:    events,
		analytics: analytics,
	}
}

func (e *testEnv) register(t *testing.T, driverID string) {
	t.Helper()
	_, err := e.drivers.Login(context.Background(), driverID, "Driver "+driverID)
	require.NoError(t, err)
}

func (e *testEnv) start(t *testing.T, driverID string) *model.Session {
	t.Helper()
	s, err := e.sessions.StartSession(context.Background(), driverID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) log(t *testing.T, driverID string, state model.DriverState, duration float64, meta map[string]any) *model.Event {
	t.Helper()
	ev, err := e.events.LogEventWithMetadata(context.Background(), driverID, state, duration, meta)
	require.NoError(t, err)
	return ev
}

func ptr[T any](v T) *T { return &v }
