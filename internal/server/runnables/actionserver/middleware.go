package actionserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/robbyt/go-supervisor/runnables/httpserver"
	supervisorHeaders "github.com/robbyt/go-supervisor/runnables/httpserver/middleware/headers"
)

// accessLog logs one line per request once the handler returns.
func accessLog(logger *slog.Logger) httpserver.HandlerFunc {
	return func(rp *httpserver.RequestProcessor) {
		start := time.Now()
		rp.Next()

		r := rp.Request()
		rw := rp.Writer()
		level := slog.LevelInfo
		if rw.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.LogAttrs(r.Context(), level, "HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.Status()),
			slog.Int("size", rw.Size()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// responseHeaders strips server identification and disables caching of
// run results.
func responseHeaders() httpserver.HandlerFunc {
	return supervisorHeaders.NewWithOperations(
		supervisorHeaders.WithRemove("Server", "X-Powered-By"),
		supervisorHeaders.WithSet(http.Header{"Cache-Control": []string{"no-store"}}),
	)
}
