package actionserver

import (
	"log/slog"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the Runner instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLogHandler sets a custom log handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler)
		}
	}
}

// WithTimeouts sets the HTTP server timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(r *Runner) {
		r.timeouts = t
	}
}
