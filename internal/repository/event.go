package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nekit-S/drowsiness-detection/internal/database"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

type EventRepository interface {
	Create(ctx context.Context, params model.CreateEventParams) (*model.Event, error)
	FindBySession(ctx context.Context, sessionID int64) ([]model.Event, error)
	// FindByDriver returns the newest events first. A non-positive limit returns all.
	FindByDriver(ctx context.Context, driverID string, limit int) ([]model.Event, error)
	FindByDriverSince(ctx context.Context, driverID string, since time.Time) ([]model.Event, error)
	FindBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) ([]model.Event, error)
	// FindBefore returns the oldest events first. A non-positive limit returns all.
	FindBefore(ctx context.Context, threshold time.Time, limit int) ([]model.Event, error)
	CountBefore(ctx context.Context, threshold time.Time) (int64, error)
	DeleteBefore(ctx context.Context, threshold time.Time) (int64, error)
	CountBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) (int64, error)
}

type eventRepo struct {
	db database.DBTX
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, params model.CreateEventParams) (*model.Event, error) {
	var event model.Event
	err := r.db.GetContext(ctx, &event, `
		INSERT INTO events (
			session_id, driver_id, start_time, duration, event_type, metadata,
			ear_value, left_ear, right_ear, head_direction, face_detected, feature_source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING *
	`, params.SessionID, params.DriverID, params.StartTime, params.Duration, params.EventType, params.Metadata,
		params.EarValue, params.LeftEar, params.RightEar, params.HeadDirection, params.FaceDetected, params.FeatureSource)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) FindBySession(ctx context.Context, sessionID int64) ([]model.Event, error) {
	var events []model.Event
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE session_id = $1
		ORDER BY start_time, event_id
	`, sessionID)
	return events, err
}

func (r *eventRepo) FindByDriver(ctx context.Context, driverID string, limit int) ([]model.Event, error) {
	var events []model.Event
	if limit <= 0 {
		err := r.db.SelectContext(ctx, &events, `
			SELECT * FROM events
			WHERE driver_id = $1
			ORDER BY start_time DESC, event_id DESC
		`, driverID)
		return events, err
	}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE driver_id = $1
		ORDER BY start_time DESC, event_id DESC
		LIMIT $2
	`, driverID, limit)
	return events, err
}

func (r *eventRepo) FindByDriverSince(ctx context.Context, driverID string, since time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE driver_id = $1 AND start_time >= $2
		ORDER BY start_time DESC, event_id DESC
	`, driverID, since)
	return events, err
}

func (r *eventRepo) FindBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) ([]model.Event, error) {
	var events []model.Event
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE session_id = $1 AND event_type = $2
		ORDER BY start_time, event_id
	`, sessionID, eventType)
	return events, err
}

func (r *eventRepo) FindBefore(ctx context.Context, threshold time.Time, limit int) ([]model.Event, error) {
	var events []model.Event
	if limit <= 0 {
		err := r.db.SelectContext(ctx, &events, `
			SELECT * FROM events
			WHERE start_time < $1
			ORDER BY start_time, event_id
		`, threshold)
		return events, err
	}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE start_time < $1
		ORDER BY start_time, event_id
		LIMIT $2
	`, threshold, limit)
	return events, err
}

func (r *eventRepo) CountBefore(ctx context.Context, threshold time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM events WHERE start_time < $1
	`, threshold)
	return count, err
}

func (r *eventRepo) DeleteBefore(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM events WHERE start_time < $1
	`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *eventRepo) CountBySessionAndType(ctx context.Context, sessionID int64, eventType model.DriverState) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM events WHERE session_id = $1 AND event_type = $2
	`, sessionID, eventType)
	return count, err
}
