// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// LogMiddleware logs every request with its status and duration. Polling
// endpoints are hit every couple of seconds per client, so successful GETs
// are logged at Debug and everything else at Info.
func LogMiddleware(logger logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    status,
				"bytes":     ww.BytesWritten(),
				"duration":  time.Since(start),
				"remote":    r.RemoteAddr,
				"requestId": chimw.GetReqID(r.Context()),
			})
			switch {
			case status >= 500:
				entry.Error("HTTP Request")
			case r.Method == http.MethodGet && status < 400:
				entry.Debug("HTTP Request")
			default:
				entry.Info("HTTP Request")
			}
		})
	}
}
