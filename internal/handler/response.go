package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError renders an AppError. Anything that is not one, or that maps to a
// server-side failure, is logged here so handlers do not log twice.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeDatabase, apperrors.ErrCodeInternal:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	httputil.WriteError(w, err)
}

// decodeJSON reads the request body into v. A body cut off by the size cap
// becomes PAYLOAD_TOO_LARGE, anything else unreadable a validation error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.PayloadTooLarge(tooLarge.Limit)
		}
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func driverIDParam(r *http.Request) string {
	return chi.URLParam(r, "driverId")
}

func sessionIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "sessionId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("sessionId", "must be a positive integer")
	}
	return id, nil
}

// parsePeriod reads ?period= in minutes. Zero means the configured window.
func parsePeriod(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, apperrors.InvalidInput("period", "must be a positive number of minutes")
	}
	return time.Duration(minutes) * time.Minute, nil
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
