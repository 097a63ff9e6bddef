// logging/requestmw.go
package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger returns a middleware that logs HTTP requests with method,
// path, status, latency, and the CORS-relevant view of the exchange: the
// request Origin, the preflight triple, and the Access-Control-Allow-Origin
// the response ended up carrying (empty when the origin was not granted).
//
// Place it outside the CORS middleware so the emitted allow-origin header is
// visible when the log record is written.
func RequestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote_ip", r.RemoteAddr),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if origin := r.Header.Get("Origin"); origin != "" {
				fields = append(fields,
					zap.String("origin", origin),
					zap.String("allow_origin", ww.Header().Get("Access-Control-Allow-Origin")),
				)
			}
			if acrm := r.Header.Get("Access-Control-Request-Method"); acrm != "" {
				fields = append(fields,
					zap.String("preflight_method", acrm),
					zap.String("preflight_headers", r.Header.Get("Access-Control-Request-Headers")),
				)
			}

			logger.Info("http_request", fields...)
		})
	}
}
