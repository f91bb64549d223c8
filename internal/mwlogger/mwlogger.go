// Package mwlogger tags every request with an id and a request-scoped logger
package mwlogger

import (
	"context"
	"net/http"
	"time"

	"github.com/wb-go/wbf/helpers"
	"github.com/wb-go/wbf/zlog"
)

const HeaderRequestID = "X-Request-Id"

type loggerWithRequestID struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// NewMWLogger - берет X-Request-Id из запроса или генерирует, кладет логгер в контекст и пишет итог запроса
func NewMWLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = helpers.CreateUUID()
		}
		w.Header().Set(HeaderRequestID, reqID)

		logger := zlog.Logger.With().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		r = r.WithContext(context.WithValue(r.Context(), loggerWithRequestID{}, logger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		// /job опрашивается воркерами постоянно - в debug
		ev := logger.Info()
		if r.URL.Path == "/job" && rec.status == http.StatusNoContent {
			ev = logger.Debug()
		}
		ev.Int("status", rec.status).Dur("took", time.Since(start)).Msg("request served")
	})
}

// LoggerFromContext extracts logger from context - used in service-layer
func LoggerFromContext(ctx context.Context) zlog.Zerolog {
	if l, ok := ctx.Value(loggerWithRequestID{}).(zlog.Zerolog); ok {
		return l
	}
	return zlog.Logger
}
