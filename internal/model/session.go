package model

import "time"

type Session struct {
	ID            int64      `db:"session_id" json:"sessionId"`
	DriverID      string     `db:"driver_id" json:"driverId"`
	StartTime     time.Time  `db:"start_time" json:"startTime"`
	EndTime       *time.Time `db:"end_time" json:"endTime,omitempty"`
	TotalDuration *int64     `db:"total_duration" json:"totalDuration,omitempty"`
	Active        bool       `db:"active" json:"active"`
	EndReason     *EndReason `db:"end_reason" json:"endReason,omitempty"`
}

// State returns the lifecycle state of this session instance.
func (s *Session) State() SessionState {
	switch {
	case s == nil:
		return SessionStateNone
	case s.Active:
		return SessionStateActive
	default:
		return SessionStateEnded
	}
}

// DurationUntil returns whole seconds elapsed between start and end, never negative.
func (s *Session) DurationUntil(end time.Time) int64 {
	d := int64(end.Sub(s.StartTime) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

type CreateSessionParams struct {
	DriverID  string
	StartTime time.Time
}

type EndSessionParams struct {
	ID              int64
	EndTime         time.Time
	DurationSeconds int64
	Reason          EndReason
}
