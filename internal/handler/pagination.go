package handler

import (
	"net/http"
	"strconv"

	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ParseLimit reads ?limit=. A missing value gives DefaultLimit, anything
// above MaxLimit is clamped and a non-positive value yields zero. A value
// that is not an integer is rejected.
func ParseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput("limit", "must be an integer")
	}

	switch {
	case limit <= 0:
		return 0, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	}
	return limit, nil
}
