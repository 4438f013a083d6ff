package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/audit"
	"github.com/Nekit-S/drowsiness-detection/internal/config"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/util"
)

// Locker serializes work per key. syncutil.KeyedMutex serves a single
// process; redis.Locker serves a fleet.
type Locker interface {
	LockContext(ctx context.Context, key string) (func(), error)
}

// Publisher pushes live updates to stream subscribers.
type Publisher interface {
	Publish(ctx context.Context, driverID string, event sse.Event) error
}

type SessionService struct {
	driverRepo  repository.DriverRepository
	sessionRepo repository.SessionRepository
	txRunner    repository.SessionTxRunner
	locker      Locker
	publisher   Publisher
	now         func() time.Time
}

func NewSessionService(
	driverRepo repository.DriverRepository,
	sessionRepo repository.SessionRepository,
	txRunner repository.SessionTxRunner,
	locker Locker,
	publisher Publisher,
) *SessionService {
	return &SessionService{
		driverRepo:  driverRepo,
		sessionRepo: sessionRepo,
		txRunner:    txRunner,
		locker:      locker,
		publisher:   publisher,
		now:         time.Now,
	}
}

func sessionLockKey(driverID string) string {
	return "session:" + driverID
}

func (s *SessionService) lockDriver(ctx context.Context, driverID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, config.SessionLockTimeout)
	defer cancel()

	unlock, err := s.locker.LockContext(lockCtx, sessionLockKey(driverID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConflict, "session operation already in progress", err)
	}
	return unlock, nil
}

// StartSession opens a new session for a registered driver. Any session
// still active for the driver is ended first with reason superseded, in the
// same transaction that creates the new one.
func (s *SessionService) StartSession(ctx context.Context, driverID string) (*model.Session, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	exists, err := s.driverRepo.Exists(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("check driver: %w", err))
	}
	if !exists {
		return nil, apperrors.NotFound("driver")
	}

	unlock, err := s.lockDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	var superseded []model.Session
	var created *model.Session

	err = s.txRunner.RunInTx(ctx, func(sessions repository.SessionRepository) error {
		active, err := sessions.FindActiveByDriver(ctx, driverID)
		if err != nil {
			return fmt.Errorf("find active sessions: %w", err)
		}

		for i := range active {
			ended, err := sessions.End(ctx, endParams(&active[i], now, model.EndReasonSuperseded))
			if err != nil {
				return fmt.Errorf("end superseded session: %w", err)
			}
			if ended != nil {
				superseded = append(superseded, *ended)
			}
		}

		created, err = sessions.Create(ctx, model.CreateSessionParams{
			DriverID:  driverID,
			StartTime: now,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	for i := range superseded {
		prev := &superseded[i]
		log.Warn().
			Str("driverId", driverID).
			Int64("sessionId", prev.ID).
			Int64("newSessionId", created.ID).
			Msg("active session superseded by new session")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionSuperseded,
			DriverID:  driverID,
			SessionID: prev.ID,
			Details:   map[string]interface{}{"newSessionId": created.ID},
		})
		metrics.SessionsEnded.WithLabelValues(string(model.EndReasonSuperseded)).Inc()
		s.publish(ctx, driverID, sse.EventSessionEnded, prev)
	}

	metrics.SessionsStarted.Inc()
	log.Info().
		Str("driverId", driverID).
		Int64("sessionId", created.ID).
		Msg("session started")
	s.publish(ctx, driverID, sse.EventSessionStarted, created)

	return created, nil
}

// EndSession closes the driver's active session. It returns nil without
// error when there is nothing to end.
func (s *SessionService) EndSession(ctx context.Context, driverID string) (*model.Session, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	unlock, err := s.lockDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := s.sessionRepo.FindActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find active sessions: %w", err))
	}
	if len(active) == 0 {
		log.Warn().Str("driverId", driverID).Msg("no active session to end")
		return nil, nil
	}

	now := s.now()
	var result *model.Session
	for i := range active {
		ended, err := s.sessionRepo.End(ctx, endParams(&active[i], now, model.EndReasonDriverEnded))
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("end session: %w", err))
		}
		if ended == nil {
			continue
		}
		if result == nil {
			result = ended
		}

		metrics.SessionsEnded.WithLabelValues(string(model.EndReasonDriverEnded)).Inc()
		log.Info().
			Str("driverId", driverID).
			Int64("sessionId", ended.ID).
			Int64("durationSeconds", *ended.TotalDuration).
			Msg("session ended")
		s.publish(ctx, driverID, sse.EventSessionEnded, ended)
	}

	return result, nil
}

// GetActiveSession takes no lock; it reflects whatever the store holds.
func (s *SessionService) GetActiveSession(ctx context.Context, driverID string) (*model.Session, error) {
	active, err := s.sessionRepo.FindActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find active session: %w", err))
	}
	if len(active) == 0 {
		return nil, nil
	}
	if len(active) > 1 {
		log.Warn().
			Str("driverId", driverID).
			Int("count", len(active)).
			Msg("multiple active sessions found, using newest")
	}
	return &active[0], nil
}

func (s *SessionService) GetAllActiveSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.sessionRepo.FindAllActive(ctx)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find active sessions: %w", err))
	}
	return sessions, nil
}

func (s *SessionService) GetSessionsForDriver(ctx context.Context, driverID string) ([]model.Session, error) {
	if !util.IsValidDriverID(driverID) {
		return nil, apperrors.InvalidInput("driverId", "must be exactly 6 digits")
	}

	sessions, err := s.sessionRepo.FindByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find driver sessions: %w", err))
	}
	return sessions, nil
}

func (s *SessionService) GetSessionByID(ctx context.Context, id int64) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	return session, nil
}

// CloseStale force-ends every session still active that started before the
// threshold. Sessions ended concurrently by their driver are skipped.
func (s *SessionService) CloseStale(ctx context.Context, before time.Time) (int, error) {
	stale, err := s.sessionRepo.FindActiveStartedBefore(ctx, before)
	if err != nil {
		return 0, apperrors.Database(fmt.Errorf("find stale sessions: %w", err))
	}

	closed := 0
	for i := range stale {
		ok, err := s.closeStale(ctx, &stale[i])
		if err != nil {
			return closed, err
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (s *SessionService) closeStale(ctx context.Context, session *model.Session) (bool, error) {
	unlock, err := s.lockDriver(ctx, session.DriverID)
	if err != nil {
		log.Warn().Err(err).
			Str("driverId", session.DriverID).
			Int64("sessionId", session.ID).
			Msg("skipping stale session, driver is locked")
		return false, nil
	}
	defer unlock()

	ended, err := s.sessionRepo.End(ctx, endParams(session, s.now(), model.EndReasonStale))
	if err != nil {
		return false, apperrors.Database(fmt.Errorf("end stale session: %w", err))
	}
	if ended == nil {
		return false, nil
	}

	log.Warn().
		Str("driverId", ended.DriverID).
		Int64("sessionId", ended.ID).
		Time("startTime", ended.StartTime).
		Msg("stale session force-ended")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionReaped,
		DriverID:  ended.DriverID,
		SessionID: ended.ID,
		Details:   map[string]interface{}{"durationSeconds": *ended.TotalDuration},
	})
	metrics.SessionsEnded.WithLabelValues(string(model.EndReasonStale)).Inc()
	s.publish(ctx, ended.DriverID, sse.EventSessionEnded, ended)

	return true, nil
}

func (s *SessionService) publish(ctx context.Context, driverID, eventType string, session *model.Session) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(session)
	if err != nil {
		log.Error().Err(err).Int64("sessionId", session.ID).Msg("failed to encode session event")
		return
	}

	if err := s.publisher.Publish(ctx, driverID, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Error().Err(err).
			Str("driverId", driverID).
			Str("type", eventType).
			Msg("failed to publish session event")
	}
}

func endParams(session *model.Session, now time.Time, reason model.EndReason) model.EndSessionParams {
	return model.EndSessionParams{
		ID:              session.ID,
		EndTime:         now,
		DurationSeconds: session.DurationUntil(now),
		Reason:          reason,
	}
}
