package model

import (
	"fmt"
	"strings"
)

type DriverState string

const (
	DriverStateNormal     DriverState = "NORMAL"
	DriverStateDistracted DriverState = "DISTRACTED"
	DriverStateDrowsy     DriverState = "DROWSY"
)

// ParseDriverState accepts a state name in any case.
func ParseDriverState(s string) (DriverState, error) {
	state := DriverState(strings.ToUpper(strings.TrimSpace(s)))
	switch state {
	case DriverStateNormal, DriverStateDistracted, DriverStateDrowsy:
		return state, nil
	case "":
		return "", fmt.Errorf("driver state is empty")
	default:
		return "", fmt.Errorf("unknown driver state %q", s)
	}
}

// Storable reports whether events in this state are persisted.
func (s DriverState) Storable() bool {
	return s == DriverStateDistracted || s == DriverStateDrowsy
}

type SessionState string

const (
	SessionStateNone   SessionState = "none"
	SessionStateActive SessionState = "active"
	SessionStateEnded  SessionState = "ended"
)

type EndReason string

const (
	EndReasonDriverEnded EndReason = "driver_ended"
	EndReasonSuperseded  EndReason = "superseded"
	EndReasonStale       EndReason = "stale"
)

type DriverRating string

const (
	DriverRatingReliable       DriverRating = "reliable"
	DriverRatingNeedsAttention DriverRating = "needs_attention"
	DriverRatingRisky          DriverRating = "risky"
)
