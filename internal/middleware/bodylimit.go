package middleware

import (
	"net/http"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/httputil"
)

// BodyLimitMiddleware caps request bodies at the detection payload size.
// Bodies that declare a larger length are refused up front. Undeclared
// lengths are cut off while reading, and handlers turn the resulting
// *http.MaxBytesError into the same PAYLOAD_TOO_LARGE response.
type BodyLimitMiddleware struct {
	maxBytes int64
}

func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBytes {
			httputil.WriteError(w, apperrors.PayloadTooLarge(m.maxBytes))
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
