package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/audit"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/metadata"
	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/util"
)

// DefaultEventDuration applies when a detection event carries no duration.
const DefaultEventDuration = 1.0

type IngestOutcome string

const (
	OutcomeStored          IngestOutcome = "stored"
	OutcomeSkippedNormal   IngestOutcome = "skipped_normal"
	OutcomeNoActiveSession IngestOutcome = "no_active_session"
)

type IngestResult struct {
	Outcome IngestOutcome
	Event   *model.Event
}

// SessionLookup is the slice of SessionService the event path depends on.
type SessionLookup interface {
	GetActiveSession(ctx context.Context, driverID string) (*model.Session, error)
	GetSessionByID(ctx context.Context, id int64) (*model.Session, error)
}

type TypeSummary struct {
	Count         int64   `json:"count"`
	TotalDuration float64 `json:"totalDuration"`
}

type SessionSummary struct {
	Session *model.Session                    `json:"session"`
	ByType  map[model.DriverState]TypeSummary `json:"byType"`
}

type PurgePreview struct {
	Threshold time.Time     `json:"threshold"`
	Total     int64         `json:"total"`
	Events    []model.Event `json:"events"`
}

type EventService struct {
	eventRepo repository.EventRepository
	sessions  SessionLookup
	publisher Publisher
	now       func() time.Time
}

func NewEventService(
	eventRepo repository.EventRepository,
	sessions SessionLookup,
	publisher Publisher,
) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		sessions:  sessions,
		publisher: publisher,
		now:       time.Now,
	}
}

// LogEvent stores a deviation for the driver's active session. NORMAL
// states and drivers without a session yield nil without error.
func (s *EventService) LogEvent(ctx context.Context, driverID string, state model.DriverState, duration float64) (*model.Event, error) {
	return s.LogEventWithMetadata(ctx, driverID, state, duration, nil)
}

func (s *EventService) LogEventWithMetadata(
	ctx context.Context,
	driverID string,
	state model.DriverState,
	duration float64,
	meta map[string]any,
) (*model.Event, error) {
	res, err := s.logEvent(ctx, driverID, state, duration, meta, nil)
	if err != nil {
		return nil, err
	}
	return res.Event, nil
}

// Ingest validates a raw detection payload and logs it.
func (s *EventService) Ingest(ctx context.Context, in model.DetectionEvent) (*IngestResult, error) {
	res, err := s.ingest(ctx, in)
	if err != nil {
		if apperrors.IsAppError(err) && apperrors.GetCode(err) != apperrors.ErrCodeDatabase {
			metrics.EventsIngested.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}
	metrics.EventsIngested.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (s *EventService) ingest(ctx context.Context, in model.DetectionEvent) (*IngestResult, error) {
	driverID := strings.TrimSpace(in.DriverID)
	if driverID == "" {
		return nil, apperrors.MissingRequired("driverId")
	}
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}
	if strings.TrimSpace(in.State) == "" {
		return nil, apperrors.MissingRequired("state")
	}

	state, err := model.ParseDriverState(in.State)
	if err != nil {
		return nil, apperrors.InvalidInput("state", err.Error())
	}

	duration := DefaultEventDuration
	if in.Duration != nil {
		duration = *in.Duration
	}

	return s.logEvent(ctx, driverID, state, duration, in.Metadata, in.SessionID)
}

func (s *EventService) logEvent(
	ctx context.Context,
	driverID string,
	state model.DriverState,
	duration float64,
	meta map[string]any,
	claimedSessionID *int64,
) (*IngestResult, error) {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return nil, apperrors.InvalidInput("duration", "must be a non-negative number")
	}

	if !state.Storable() {
		log.Debug().Str("driverId", driverID).Msg("normal state, event not stored")
		return &IngestResult{Outcome: OutcomeSkippedNormal}, nil
	}

	session, err := s.sessions.GetActiveSession(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		log.Warn().
			Str("driverId", driverID).
			Str("state", string(state)).
			Msg("no active session, event dropped")
		return &IngestResult{Outcome: OutcomeNoActiveSession}, nil
	}

	if claimedSessionID != nil && *claimedSessionID != session.ID {
		log.Warn().
			Str("driverId", driverID).
			Int64("claimedSessionId", *claimedSessionID).
			Int64("sessionId", session.ID).
			Msg("event session mismatch, attaching to active session")
	}

	now := s.now()
	norm := metadata.Normalize(meta, metadata.Defaults{
		Timestamp: now,
		SessionID: session.ID,
		EventType: string(state),
	})

	event, err := s.eventRepo.Create(ctx, model.CreateEventParams{
		SessionID:     session.ID,
		DriverID:      driverID,
		StartTime:     now,
		Duration:      duration,
		EventType:     state,
		Metadata:      norm.JSON,
		EarValue:      norm.EarValue,
		LeftEar:       norm.LeftEar,
		RightEar:      norm.RightEar,
		HeadDirection: norm.HeadDirection,
		FaceDetected:  norm.FaceDetected,
		FeatureSource: norm.FeatureSource,
	})
	if err != nil {
		log.Error().Err(err).Str("driverId", driverID).Msg("failed to store event")
		return nil, apperrors.Database(fmt.Errorf("create event: %w", err))
	}

	log.Info().
		Str("driverId", driverID).
		Int64("sessionId", session.ID).
		Int64("eventId", event.ID).
		Str("eventType", string(state)).
		Msg("event logged")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, driverID, sse.Event{Type: sse.EventLogged, Data: event.ToSSEEventData()}); err != nil {
			log.Error().Err(err).Int64("eventId", event.ID).Msg("failed to publish event")
		}
	}

	return &IngestResult{Outcome: OutcomeStored, Event: event}, nil
}

func (s *EventService) GetEventsForSession(ctx context.Context, sessionID int64) ([]model.Event, error) {
	events, err := s.eventRepo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session events: %w", err))
	}
	return events, nil
}

// GetRecentEventsForDriver returns up to limit events, newest first. A
// non-positive limit yields an empty list.
func (s *EventService) GetRecentEventsForDriver(ctx context.Context, driverID string, limit int) ([]model.Event, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}
	if limit <= 0 {
		return []model.Event{}, nil
	}

	events, err := s.eventRepo.FindByDriver(ctx, driverID, limit)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find driver events: %w", err))
	}
	return events, nil
}

func (s *EventService) SessionSummary(ctx context.Context, sessionID int64) (*SessionSummary, error) {
	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary := &SessionSummary{
		Session: session,
		ByType:  make(map[model.DriverState]TypeSummary, 2),
	}

	for _, state := range []model.DriverState{model.DriverStateDrowsy, model.DriverStateDistracted} {
		count, err := s.eventRepo.CountBySessionAndType(ctx, sessionID, state)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("count %s events: %w", state, err))
		}

		events, err := s.eventRepo.FindBySessionAndType(ctx, sessionID, state)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("find %s events: %w", state, err))
		}

		var total float64
		for i := range events {
			total += events[i].Duration
		}
		summary.ByType[state] = TypeSummary{Count: count, TotalDuration: total}
	}

	return summary, nil
}

// PurgeBefore deletes every event older than threshold. Running it again
// with no new old events removes nothing.
func (s *EventService) PurgeBefore(ctx context.Context, threshold time.Time) (int64, error) {
	deleted, err := s.eventRepo.DeleteBefore(ctx, threshold)
	if err != nil {
		return 0, apperrors.Database(fmt.Errorf("delete old events: %w", err))
	}

	metrics.EventsPurged.Add(float64(deleted))
	if deleted > 0 {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventEventsPurged,
			Details: map[string]interface{}{"deleted": deleted, "threshold": threshold},
		})
	}
	log.Info().
		Int64("deleted", deleted).
		Time("threshold", threshold).
		Msg("event retention purge complete")

	return deleted, nil
}

// PurgePreview reports how many events a purge at threshold would remove
// and lists up to limit of them, oldest first.
func (s *EventService) PurgePreview(ctx context.Context, threshold time.Time, limit int) (*PurgePreview, error) {
	total, err := s.eventRepo.CountBefore(ctx, threshold)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("count old events: %w", err))
	}

	preview := &PurgePreview{Threshold: threshold, Total: total, Events: []model.Event{}}
	if limit <= 0 || total == 0 {
		return preview, nil
	}

	events, err := s.eventRepo.FindBefore(ctx, threshold, limit)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find old events: %w", err))
	}
	if events != nil {
		preview.Events = events
	}
	return preview, nil
}
