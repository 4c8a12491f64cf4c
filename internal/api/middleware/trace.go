package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/platform/logger"
)

// NewTraceMiddleware adds a trace ID to each request and places a logger
// carrying it in the request context. It should run early in the chain.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)
			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithContext(ctx, log)

			w.Header().Set("X-Trace-ID", traceID)
			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
