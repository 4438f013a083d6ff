package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

// MemoryStore is an in-process implementation of the driver, session and
// event repositories. Every read returns copies, so callers never share
// state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	drivers       map[string]model.Driver
	sessions      map[int64]model.Session
	events        map[int64]model.Event
	nextSessionID int64
	nextEventID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:  make(map[string]model.Driver),
		sessions: make(map[int64]model.Session),
		events:   make(map[int64]model.Event),
	}
}

func (s *MemoryStore) Drivers() DriverRepository {
	return &memDriverRepo{s: s}
}

func (s *MemoryStore) Sessions() SessionRepository {
	return &memSessionRepo{s: s}
}

func (s *MemoryStore) Events() EventRepository {
	return &memEventRepo{s: s}
}

// RunInTx has no rollback: each repository call is atomic on its own and
// the session service already serializes per driver.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(sessions SessionRepository) error) error {
	return fn(s.Sessions())
}

type memDriverRepo struct {
	s *MemoryStore
}

func (r *memDriverRepo) FindByID(ctx context.Context, id string) (*model.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	driver, ok := r.s.drivers[id]
	if !ok {
		return nil, nil
	}
	return &driver, nil
}

func (r *memDriverRepo) FindAll(ctx context.Context) ([]model.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	drivers := make([]model.Driver, 0, len(r.s.drivers))
	for _, d := range r.s.drivers {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	return drivers, nil
}

func (r *memDriverRepo) Upsert(ctx context.Context, params model.UpsertDriverParams) (*model.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	driver, ok := r.s.drivers[params.ID]
	if !ok {
		driver = model.Driver{ID: params.ID, CreatedAt: time.Now()}
	}
	driver.Name = params.Name
	r.s.drivers[params.ID] = driver
	return &driver, nil
}

func (r *memDriverRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.drivers[id]
	return ok, nil
}

type memSessionRepo struct {
	s *MemoryStore
}

func (r *memSessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return r
}

func (r *memSessionRepo) FindByID(ctx context.Context, id int64) (*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(session), nil
}

func (r *memSessionRepo) FindActiveByDriver(ctx context.Context, driverID string) ([]model.Session, error) {
	return r.filter(func(s model.Session) bool { return s.Active && s.DriverID == driverID }, newestSessionFirst), nil
}

func (r *memSessionRepo) FindByDriver(ctx context.Context, driverID string) ([]model.Session, error) {
	return r.filter(func(s model.Session) bool { return s.DriverID == driverID }, newestSessionFirst), nil
}

func (r *memSessionRepo) FindAllActive(ctx context.Context) ([]model.Session, error) {
	return r.filter(func(s model.Session) bool { return s.Active }, newestSessionFirst), nil
}

func (r *memSessionRepo) FindActiveStartedBefore(ctx context.Context, threshold time.Time) ([]model.Session, error) {
	return r.filter(func(s model.Session) bool {
		return s.Active && s.StartTime.Before(threshold)
	}, func(a, b model.Session) bool {
		return a.StartTime.Before(b.StartTime)
	}), nil
}

func (r *memSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextSessionID++
	session := model.Session{
		ID:        r.s.nextSessionID,
		DriverID:  params.DriverID,
		StartTime: params.StartTime,
		Active:    true,
	}
	r.s.sessions[session.ID] = session
	return copySession(session), nil
}

func (r *memSessionRepo) End(ctx context.Context, params model.EndSessionParams) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[params.ID]
	if !ok || !session.Active {
		return nil, nil
	}

	endTime := params.EndTime
	duration := params.DurationSeconds
	reason := params.Reason
	session.EndTime = &endTime
	session.TotalDuration = &duration
	session.EndReason = &reason
	session.Active = false
	r.s.sessions[session.ID] = session
	return copySession(session), nil
}

func (r *memSessionRepo) filter(keep func(model.Session) bool, less func(a, b model.Session) bool) []model.Session {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var sessions []model.Session
	for _, s := range r.s.sessions {
		if keep(s) {
			sessions = append(sessions, *copySession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return less(sessions[i], sessions[j]) })
	return sessions
}

func newestSessionFirst(a, b model.Session) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID > b.ID
	}
	return a.StartTime.After(b.StartTime)
}

func copySession(s model.Session) *model.Session {
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	if s.TotalDuration != nil {
		d := *s.TotalDuration
		s.TotalDuration = &d
	}
	if s.EndReason != nil {
		reason := *s.EndReason
		s.EndReason = &reason
	}
	return &s
}

type memEventRepo struct {
	s *MemoryStore
}

func (r *memEventRepo) Create(ctx context.Context, params model.CreateEventParams) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextEventID++
	event := model.Event{
		ID:            r.s.nextEventID,
		SessionID:     params.SessionID,
		DriverID:      params.DriverID,
		StartTime:     params.StartTime,
		Duration:      params.Duration,
		EventType:     params.EventType,
		Metadata:      params.Metadata,
		EarValue:      params.EarValue,
		LeftEar:       params.LeftEar,
		RightEar:      params.RightEar,
		HeadDirection: params.HeadDirection,
		FaceDetected:  params.FaceDetected,
		FeatureSource: params.FeatureSource,
	}
	if event.Metadata == "" {
		event.Metadata = "{}"
	}
	r.s.events[event.ID] = event
	return &event, nil
}

func (r *memEventRepo) FindBySession(ctx context.Context, sessionID int64) ([]model.Event, error) {
	return r.filter(func(e model.Event) bool { return e.SessionID == sessionID }, oldestEventFirst, 0), nil
}

func (r *memEventRepo) FindByDriver(ctx context.Context, driverID string, limit int) ([]model.Event, error) {
	return r.filter(func(e model.Event) bool { return e.DriverID == driverID }, newestEventFirst, limit), nil
}

func (r *memEventRepo) FindByDriverSince(ctx context.Context, driverID string, since time.Time) ([]model.Event, error) {
	return r.filter(func(e model.Event) bool {
		return e.DriverID == driverID && !e.StartTime.Before(since)
	}, newestEventFirst, 0), nil
}

func (r *memEventRepo) FindBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) ([]model.Event, error) {
	return r.filter(func(e model.Event) bool {
		return e.SessionID == sessionID && e.EventType == eventType
	}, oldestEventFirst, 0), nil
}

func (r *memEventRepo) FindBefore(ctx context.Context, threshold time.Time, limit int) ([]model.Event, error) {
	return r.filter(func(e model.Event) bool { return e.StartTime.Before(threshold) }, oldestEventFirst, limit), nil
}

func (r *memEventRepo) CountBefore(ctx context.Context, threshold time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var count int64
	for _, e := range r.s.events {
		if e.StartTime.Before(threshold) {
			count++
		}
	}
	return count, nil
}

func (r *memEventRepo) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	for id, e := range r.s.events {
		if e.StartTime.Before(threshold) {
			delete(r.s.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memEventRepo) CountBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var count int64
	for _, e := range r.s.events {
		if e.SessionID == sessionID && e.EventType == eventType {
			count++
		}
	}
	return count, nil
}

func (r *memEventRepo) filter(keep func(model.Event) bool, less func(a, b model.Event) bool, limit int) []model.Event {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var events []model.Event
	for _, e := range r.s.events {
		if keep(e) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return less(events[i], events[j]) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

func oldestEventFirst(a, b model.Event) bool {
	if a.StartTime.Equal(b.StartTime) {
		return a.ID < b.ID
	}
	return a.StartTime.Before(b.StartTime)
}

func newestEventFirst(a, b model.Event) bool {
	return oldestEventFirst(b, a)
}
