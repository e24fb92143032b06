package logging

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey struct{}

// scope holds the logger of one request. Middlewares running deeper in the
// chain enrich it in place so the completion entry carries their fields.
type scope struct {
	mu     sync.Mutex
	logger *zap.Logger
}

func (s *scope) get() *zap.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// WithLogger stores logger on ctx as the request logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &scope{logger: logger})
}

// FromContext returns the request logger, if any.
func FromContext(ctx context.Context) (*zap.Logger, bool) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return nil, false
	}
	return s.get(), true
}

// FromRequest returns the request logger of r, or fallback.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := FromContext(r.Context()); ok {
		return logger
	}
	return fallback
}

// AddFields attaches fields to the request logger of ctx. It reports false
// when ctx carries none.
func AddFields(ctx context.Context, fields ...zap.Field) bool {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.logger = s.logger.With(fields...)
	s.mu.Unlock()
	return true
}

// RequestLogger stores a request scoped logger on the context and logs one
// completion entry per request, at error level for 5xx answers.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base
			if requestID := middleware.GetReqID(r.Context()); requestID != "" {
				logger = logger.With(zap.String("request_id", requestID))
			}
			ctx := WithLogger(r.Context(), logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			done, _ := FromContext(ctx)
			entry := done.Info
			if status >= http.StatusInternalServerError {
				entry = done.Error
			}
			entry("request completed",
				zap.Dict("httpRequest",
					zap.String("requestMethod", r.Method),
					zap.String("requestUrl", r.URL.RequestURI()),
					zap.Int("status", status),
					zap.Int("responseSize", ww.BytesWritten()),
					zap.String("remoteIp", r.RemoteAddr),
					zap.String("userAgent", r.UserAgent()),
					zap.String("latency", latency(time.Since(start))),
				),
			)
		})
	}
}

// latency formats d the way Cloud Logging expects, e.g. "0.012s".
func latency(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
