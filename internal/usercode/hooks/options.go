package hooks

import (
	"log/slog"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithLogHandler sets the log handler for the runner.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler)
		}
	}
}

// WithLifecycle overrides the policy of a lifecycle or adds a new one. A zero
// timeout keeps DefaultTimeout.
func WithLifecycle(name string, opts Options) Option {
	return func(r *Runner) {
		if opts.Timeout <= 0 {
			opts.Timeout = DefaultTimeout
		}
		r.lifecycles[name] = opts
	}
}
