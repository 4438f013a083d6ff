package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nekit-S/drowsiness-detection/internal/database"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

// SessionRepository stores driving sessions. It does not enforce the
// one-active-session-per-driver rule; callers serialize per driver.
type SessionRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Session, error)
	FindActiveByDriver(ctx context.Context, driverID string) ([]model.Session, error)
	FindByDriver(ctx context.Context, driverID string) ([]model.Session, error)
	FindAllActive(ctx context.Context) ([]model.Session, error)
	FindActiveStartedBefore(ctx context.Context, threshold time.Time) ([]model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// End closes the session only if it is still active. It returns nil
	// without error when the session was already ended.
	End(ctx context.Context, params model.EndSessionParams) (*model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM driver_sessions WHERE session_id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByDriver(ctx context.Context, driverID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM driver_sessions
		WHERE driver_id = $1 AND active
		ORDER BY start_time DESC, session_id DESC
	`, driverID)
	return sessions, err
}

func (r *sessionRepo) FindByDriver(ctx context.Context, driverID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM driver_sessions
		WHERE driver_id = $1
		ORDER BY start_time DESC, session_id DESC
	`, driverID)
	return sessions, err
}

func (r *sessionRepo) FindAllActive(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM driver_sessions
		WHERE active
		ORDER BY start_time DESC, session_id DESC
	`)
	return sessions, err
}

func (r *sessionRepo) FindActiveStartedBefore(ctx context.Context, threshold time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM driver_sessions
		WHERE active AND start_time < $1
		ORDER BY start_time
	`, threshold)
	return sessions, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO driver_sessions (driver_id, start_time, active)
		VALUES ($1, $2, TRUE)
		RETURNING *
	`, params.DriverID, params.StartTime)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) End(ctx context.Context, params model.EndSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE driver_sessions SET
			end_time = $2,
			total_duration = $3,
			end_reason = $4,
			active = FALSE
		WHERE session_id = $1 AND active
		RETURNING *
	`, params.ID, params.EndTime, params.DurationSeconds, params.Reason)
	return HandleNotFound(&session, err)
}
