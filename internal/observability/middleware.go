package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

const httpStatusServerError = 500

// errPanic is a sentinel error for recovered panics.
var errPanic = errors.New("panic recovered")

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}

	n, err := sw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// HTTPMiddleware returns a handler that emits a one-line access log per
// request and recovers panics as a 500, wrapping next.
func HTTPMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: rw}

		defer func() {
			if r := recover(); r != nil {
				logger.Error("http handler panic",
					"error", fmt.Errorf("%w: %v", errPanic, r),
					"stack", string(debug.Stack()),
				)
				sw.WriteHeader(http.StatusInternalServerError)
			}

			status := sw.statusCode
			level := slog.LevelInfo

			if status >= httpStatusServerError {
				level = slog.LevelError
			}

			logger.Log(hr.Context(), level, "http.request",
				"method", hr.Method,
				"path", hr.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()

		next.ServeHTTP(sw, hr)
	})
}
