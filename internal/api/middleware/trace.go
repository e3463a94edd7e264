package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/sprint-planner-api/internal/api/shared"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
)

// Trace adds a trace ID and a logger carrying it to the request context.
// Apply it early so every later handler can log with the trace ID.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With(slog.String("trace_id", shared.GetTraceID(ctx)))

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
		})
	}
}
